package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishi/internal/types"
)

func TestFarmHandler(t *testing.T) {
	app := newTestApp(t, nil, nil)

	rec, env := app.do(t, http.MethodGet, "/v1/farm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[farmView](t, env)
	assert.Equal(t, types.CropWheat, got.Crop)
	assert.Equal(t, "2025-05-06", got.SowingDate)
	assert.Equal(t, 70, got.DaysSinceSowing)

	rec, env = app.do(t, http.MethodPut, "/v1/farm", map[string]any{
		"crop": "wheat", "soil": "sandy", "sowing_date": "2025-07-01", "plot_size_m2": 2000,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	got = decodeData[farmView](t, env)
	assert.Equal(t, types.SoilType("sandy"), got.Soil)
	assert.Equal(t, 14, got.DaysSinceSowing)
	assert.Equal(t, types.SoilType("sandy"), app.farm.Get().Soil)
}

func TestFarmHandler_UpdateRejected(t *testing.T) {
	app := newTestApp(t, nil, nil)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"unknown crop", map[string]any{"crop": "barley", "soil": "loamy", "sowing_date": "2025-07-01", "plot_size_m2": 100},
			http.StatusNotFound, types.ErrCodeNotFoundCrop},
		{"bad date", map[string]any{"crop": "wheat", "soil": "loamy", "sowing_date": "01/07/2025", "plot_size_m2": 100},
			http.StatusBadRequest, types.ErrCodeValidationFarmContext},
		{"future sowing", map[string]any{"crop": "wheat", "soil": "loamy", "sowing_date": "2025-08-01", "plot_size_m2": 100},
			http.StatusBadRequest, types.ErrCodeValidationFarmContext},
		{"no plot size", map[string]any{"crop": "wheat", "soil": "loamy", "sowing_date": "2025-07-01"},
			http.StatusBadRequest, types.ErrCodeValidationFarmContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := app.do(t, http.MethodPut, "/v1/farm", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, string(tt.wantCode), env.Error.Code)
		})
	}
	assert.Equal(t, types.SoilLoamy, app.farm.Get().Soil)
}
