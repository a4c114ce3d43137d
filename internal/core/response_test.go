package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"krishi/internal/types"
)

func readError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Error
}

func TestOK_WrapsDataAndNotes(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, httptest.NewRequest(http.MethodGet, "/", nil), map[string]int{"days": 66}, "demo reading")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	want := `{"data":{"days":66},"meta":{"notes":["demo reading"]}}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestJSON_UnencodableFallsBackTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, map[string]any{"bad": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := readError(t, rec).Code; got != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("unexpected code %q", got)
	}
}

func TestError_StatusFromCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", types.NewAppError(types.ErrCodeValidationMoisture, "moisture out of range", nil), 400, "validation_moisture_out_of_range"},
		{"not found", types.NewAppError(types.ErrCodeNotFoundDevice, "no such device", nil), 404, "not_found_device"},
		{"upstream", types.NewAppError(types.ErrCodeUpstreamVision, "vision down", nil), 502, "upstream_vision_unavailable"},
		{"rate limited", types.NewAppError(types.ErrCodeUpstreamRateLimited, "slow down", nil), 429, "upstream_rate_limited"},
		{"wrapped", errors.Join(errors.New("ctx"), types.NewAppError(types.ErrCodeNotFoundCrop, "no crop", nil)), 404, "not_found_crop"},
		{"plain", errors.New("secret internals"), 500, "internal_unexpected_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r = r.WithContext(types.WithRequestID(r.Context(), "req-1"))
			Error(rec, r, tt.err)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			detail := readError(t, rec)
			if detail.Code != tt.code {
				t.Errorf("code = %q, want %q", detail.Code, tt.code)
			}
			if detail.RequestID != "req-1" {
				t.Errorf("request id = %q", detail.RequestID)
			}
			if strings.Contains(detail.Message, "secret") {
				t.Errorf("internal message leaked: %q", detail.Message)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Crop string `json:"crop"`
		Days int    `json:"days"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"crop":"wheat","days":10}`, ""},
		{"empty", ``, "must not be empty"},
		{"syntax", `{"crop":`, "malformed"},
		{"unknown field", `{"crop":"wheat","colour":"red"}`, "unknown field"},
		{"wrong type", `{"days":"ten"}`, "invalid value"},
		{"two values", `{"crop":"wheat"}{"crop":"rice"}`, "single JSON object"},
		{"too large", `{"crop":"` + strings.Repeat("a", maxRequestBodySize) + `"}`, "1MB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSON(rec, r, &dst)

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if dst.Crop != "wheat" || dst.Days != 10 {
					t.Errorf("decoded %+v", dst)
				}
				return
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != errCodeValidationInvalidJSON {
				t.Errorf("code = %q", appErr.Code)
			}
			if !strings.Contains(appErr.Message, tt.wantErr) {
				t.Errorf("message %q does not contain %q", appErr.Message, tt.wantErr)
			}
		})
	}
}
