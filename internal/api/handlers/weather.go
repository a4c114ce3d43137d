package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"krishi/internal/core"
	"krishi/internal/types"
	"krishi/internal/weather"
)

// WeatherService is the weather engine surface used over HTTP.
type WeatherService interface {
	GetWeatherData(live *types.WeatherReading) *weather.Advisory
	CacheWeatherData(r types.WeatherReading) error
}

// WeatherHandler serves /v1/weather.
type WeatherHandler struct {
	weather   WeatherService
	validator *core.Validator
	logger    *slog.Logger
}

// NewWeatherHandler creates a WeatherHandler.
func NewWeatherHandler(svc WeatherService, val *core.Validator, logger *slog.Logger) *WeatherHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherHandler{weather: svc, validator: val, logger: logger}
}

// RegisterRoutes mounts the weather endpoints.
func (h *WeatherHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleGet)
	r.Post("/", h.HandleObserve)
}

// HandleGet resolves the current advisory from cache or seasonal normals.
func (h *WeatherHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	adv := h.weather.GetWeatherData(nil)
	core.OK(w, r, adv, provenanceNotes("", adv.Source)...)
}

// HandleObserve accepts a fresh observation, typically pushed by the app when
// it is online. The reading is cached and the live advisory is returned.
func (h *WeatherHandler) HandleObserve(w http.ResponseWriter, r *http.Request) {
	var reading types.WeatherReading
	if err := core.DecodeJSON(w, r, &reading); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(reading, types.ErrCodeValidationPayload); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.weather.CacheWeatherData(reading); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "weather observation cached", "observed_at", reading.ObservedAt)
	core.OK(w, r, h.weather.GetWeatherData(&reading))
}
