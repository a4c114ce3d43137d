package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"krishi/internal/config"
	"krishi/internal/types"
)

// MaxImageBytes caps uploads forwarded to the vision endpoint.
const MaxImageBytes = 8 << 20

// VisionResult is the inference response. The body is passed through
// unchanged; the advisor does not interpret vision labels.
type VisionResult struct {
	Raw json.RawMessage `json:"result"`
}

// VisionClient forwards leaf images to an image-diagnosis endpoint.
type VisionClient struct {
	base     *BaseClient
	endpoint string
	apiKey   types.SecretString
}

// NewVisionClient builds a client for cfg. A client with no endpoint is valid
// and reports the service as unavailable.
func NewVisionClient(cfg config.VisionConfig, observer BreakerObserver, opts ...Option) *VisionClient {
	return &VisionClient{
		base:     NewBaseClient("vision", &http.Client{Timeout: cfg.Timeout}, DefaultRetryPolicy(), "krishi-advisor", observer, opts...),
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
	}
}

// Configured reports whether an endpoint is set.
func (c *VisionClient) Configured() bool {
	return c.endpoint != ""
}

// Diagnose posts image for crop and returns the raw inference result.
func (c *VisionClient) Diagnose(ctx context.Context, crop types.CropType, image []byte, contentType string) (*VisionResult, error) {
	if !c.Configured() {
		return nil, types.NewAppError(types.ErrCodeUpstreamVision, "image diagnosis is not configured", nil)
	}
	if len(image) == 0 || len(image) > MaxImageBytes {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationPayload,
			fmt.Sprintf("image must be 1-%d bytes", MaxImageBytes), nil,
			map[string]any{"size": len(image)})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/diagnose?"+url.Values{"crop": {string(crop)}}.Encode(), bytes.NewReader(image))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build vision request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey.IsSet() {
		req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamVision, "image diagnosis is unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamVision,
			fmt.Sprintf("vision endpoint returned %d", resp.StatusCode), nil,
			map[string]any{"status": resp.StatusCode, "body": string(msg)})
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamVision, "failed to read vision response", err)
	}
	if !json.Valid(raw) {
		return nil, types.NewAppError(types.ErrCodeUpstreamVision, "vision endpoint returned invalid JSON", nil)
	}
	return &VisionResult{Raw: raw}, nil
}
