package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"krishi/internal/core"
	"krishi/internal/external"
	"krishi/internal/types"
)

// symptomCheckerPath is offered when image diagnosis cannot be used.
const symptomCheckerPath = "/v1/advisories/health"

// ImageDiagnoser classifies a leaf image remotely.
type ImageDiagnoser interface {
	Configured() bool
	Diagnose(ctx context.Context, crop types.CropType, image []byte, contentType string) (*external.VisionResult, error)
}

// VisionHandler serves /v1/advisories/image.
type VisionHandler struct {
	vision ImageDiagnoser
	farm   FarmReader
	logger *slog.Logger
}

// NewVisionHandler creates a VisionHandler.
func NewVisionHandler(vision ImageDiagnoser, farm FarmReader, logger *slog.Logger) *VisionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VisionHandler{vision: vision, farm: farm, logger: logger}
}

// RegisterRoutes mounts the image endpoint.
func (h *VisionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/image", h.HandleImage)
}

// HandleImage forwards the raw request body to the vision service. The crop
// defaults to the active farm's and may be overridden with ?crop=.
func (h *VisionHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	if !h.vision.Configured() {
		core.Error(w, r, withFallback(types.NewAppError(types.ErrCodeUpstreamVision, "image diagnosis is not configured", nil)))
		return
	}

	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, external.MaxImageBytes))
	if err != nil {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationPayload, "image too large or unreadable", err,
			map[string]any{"max_bytes": external.MaxImageBytes}))
		return
	}

	crop := h.farm.Get().Crop
	if q := r.URL.Query().Get("crop"); q != "" {
		crop = types.CropType(q)
	}

	result, err := h.vision.Diagnose(r.Context(), crop, image, r.Header.Get("Content-Type"))
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamVision {
			h.logger.WarnContext(r.Context(), "image diagnosis failed", "error", err)
			err = withFallback(appErr)
		}
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, result)
}

func withFallback(err *types.AppError) *types.AppError {
	return err.WithDetails(map[string]any{"fallback": symptomCheckerPath})
}
