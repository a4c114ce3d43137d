// Package handlers exposes the advisory engines, the sensor service and the
// voice router over HTTP for the UI layer.
package handlers

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"krishi/internal/core"
	"krishi/internal/fertilizer"
	"krishi/internal/health"
	"krishi/internal/irrigation"
	"krishi/internal/types"
	"krishi/internal/weather"
)

// IrrigationEngine computes irrigation advice.
type IrrigationEngine interface {
	Calculate(in irrigation.Input) (*irrigation.Recommendation, error)
}

// FertilizerEngine computes fertilizer advice.
type FertilizerEngine interface {
	Calculate(in fertilizer.Input) (*fertilizer.Recommendation, error)
}

// HealthEngine ranks diseases for observed symptoms.
type HealthEngine interface {
	Diagnose(symptoms []string) *health.Diagnosis
	InferSymptoms(text string) []string
}

// WeatherReader resolves the weather advisory.
type WeatherReader interface {
	GetWeatherData(live *types.WeatherReading) *weather.Advisory
}

// SensorReader resolves the current field reading.
type SensorReader interface {
	GetSensorData() types.SensorReading
}

// FarmReader returns the active farm context.
type FarmReader interface {
	Get() types.FarmContext
}

// AdvisoryDeps groups the engines behind the advisory endpoints.
type AdvisoryDeps struct {
	Irrigation IrrigationEngine
	Fertilizer FertilizerEngine
	Health     HealthEngine
	Weather    WeatherReader
	Sensors    SensorReader
	Farm       FarmReader
	Clock      types.Clock
}

// AdvisoryHandler serves /v1/advisories.
type AdvisoryHandler struct {
	deps      AdvisoryDeps
	validator *core.Validator
	logger    *slog.Logger
}

// NewAdvisoryHandler creates an AdvisoryHandler.
func NewAdvisoryHandler(deps AdvisoryDeps, val *core.Validator, logger *slog.Logger) *AdvisoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}
	return &AdvisoryHandler{deps: deps, validator: val, logger: logger}
}

// RegisterRoutes mounts the advisory endpoints.
func (h *AdvisoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/irrigation", h.HandleIrrigation)
	r.Get("/fertilizer", h.HandleFertilizer)
	r.Post("/health", h.HandleHealth)
	r.Get("/weather", h.HandleWeather)
}

type irrigationAdvice struct {
	Recommendation *irrigation.Recommendation `json:"recommendation"`
	Sensor         types.SensorReading        `json:"sensor"`
	Weather        *weather.Advisory          `json:"weather"`
}

// HandleIrrigation handles GET /v1/advisories/irrigation for the active farm.
func (h *AdvisoryHandler) HandleIrrigation(w http.ResponseWriter, r *http.Request) {
	now := h.deps.Clock.Now()
	fc := h.deps.Farm.Get()
	reading := h.deps.Sensors.GetSensorData()
	adv := h.deps.Weather.GetWeatherData(nil)

	rec, err := h.deps.Irrigation.Calculate(irrigation.Input{
		Crop:            fc.Crop,
		Soil:            fc.Soil,
		DaysSinceSowing: fc.DaysSinceSowing(now),
		MoisturePct:     reading.MoisturePct,
		Month:           int(now.Month()),
		IsRaining:       adv.Reading.IsRaining,
		WeatherFactor:   adv.WeatherFactor,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, irrigationAdvice{Recommendation: rec, Sensor: reading, Weather: adv},
		provenanceNotes(reading.Source, adv.Source)...)
}

// HandleFertilizer handles GET /v1/advisories/fertilizer for the active farm.
func (h *AdvisoryHandler) HandleFertilizer(w http.ResponseWriter, r *http.Request) {
	fc := h.deps.Farm.Get()
	rec, err := h.deps.Fertilizer.Calculate(fertilizer.Input{
		Crop:            fc.Crop,
		Soil:            fc.Soil,
		DaysSinceSowing: fc.DaysSinceSowing(h.deps.Clock.Now()),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, rec)
}

type healthRequest struct {
	Symptoms []string `json:"symptoms" validate:"max=32,dive,required,max=64"`
	Text     string   `json:"text" validate:"max=1000"`
}

// HandleHealth handles POST /v1/advisories/health. Symptoms may be given as
// tags, as free text, or both.
func (h *AdvisoryHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	var req healthRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req, types.ErrCodeValidationPayload); err != nil {
		core.Error(w, r, err)
		return
	}
	if len(req.Symptoms) == 0 && req.Text == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationEmptyQuery, "provide symptoms or a description", nil))
		return
	}

	set := make(map[string]struct{}, len(req.Symptoms))
	for _, s := range req.Symptoms {
		set[s] = struct{}{}
	}
	if req.Text != "" {
		for _, s := range h.deps.Health.InferSymptoms(req.Text) {
			set[s] = struct{}{}
		}
	}
	symptoms := make([]string, 0, len(set))
	for s := range set {
		symptoms = append(symptoms, s)
	}
	sort.Strings(symptoms)

	core.OK(w, r, h.deps.Health.Diagnose(symptoms))
}

// HandleWeather handles GET /v1/advisories/weather.
func (h *AdvisoryHandler) HandleWeather(w http.ResponseWriter, r *http.Request) {
	adv := h.deps.Weather.GetWeatherData(nil)
	core.OK(w, r, adv, provenanceNotes("", adv.Source)...)
}

func provenanceNotes(sensor types.ReadingSource, wx types.WeatherSource) []string {
	var notes []string
	switch sensor {
	case types.SourceCached:
		notes = append(notes, "soil moisture is from the last saved sensor reading")
	case types.SourceDemo:
		notes = append(notes, "no sensor connected; soil moisture is the seasonal typical value")
	}
	switch wx {
	case types.WeatherCached:
		notes = append(notes, "weather is from the last saved observation")
	case types.WeatherSeasonal:
		notes = append(notes, "weather is the seasonal normal for this month")
	}
	return notes
}
