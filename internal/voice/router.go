// Package voice routes transcribed farmer queries to exactly one advisory
// engine and composes a bilingual reply.
package voice

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"krishi/internal/fertilizer"
	"krishi/internal/health"
	"krishi/internal/irrigation"
	"krishi/internal/knowledge"
	"krishi/internal/types"
	"krishi/internal/weather"
)

// Actions attached to responses for the UI layer.
const (
	ActionStartIrrigation   = "start_irrigation"
	ActionStopIrrigation    = "stop_irrigation"
	ActionApplyFertilizer   = "apply_fertilizer"
	ActionPlanFertilizer    = "plan_fertilizer"
	ActionShowDiagnosis     = "show_diagnosis"
	ActionOpenSymptomCheck  = "open_symptom_checker"
	ActionShowWeather       = "show_weather"
	ActionShowHelp          = "show_help"
	ActionCheckFarmSettings = "check_farm_settings"
	ActionNone              = "none"
)

// IntentTable supplies the declarative intent patterns.
type IntentTable interface {
	IntentTable() []knowledge.IntentEntry
}

// IrrigationEngine computes irrigation advice.
type IrrigationEngine interface {
	Calculate(in irrigation.Input) (*irrigation.Recommendation, error)
}

// FertilizerEngine computes fertilizer advice.
type FertilizerEngine interface {
	Calculate(in fertilizer.Input) (*fertilizer.Recommendation, error)
}

// HealthEngine diagnoses symptoms.
type HealthEngine interface {
	Diagnose(symptoms []string) *health.Diagnosis
	InferSymptoms(text string) []string
}

// WeatherProvider resolves the weather advisory.
type WeatherProvider interface {
	GetWeatherData(live *types.WeatherReading) *weather.Advisory
}

// SensorProvider resolves the current field reading.
type SensorProvider interface {
	GetSensorData() types.SensorReading
}

// Observer records classification outcomes.
type Observer interface {
	ObserveIntent(intent types.Intent, confidence float64)
}

// Config wires a Router.
type Config struct {
	Intents       IntentTable
	Irrigation    IrrigationEngine
	Fertilizer    FertilizerEngine
	Health        HealthEngine
	Weather       WeatherProvider
	Sensors       SensorProvider
	Clock         types.Clock
	MinConfidence float64
	Observer      Observer
	Logger        *slog.Logger
}

// Router classifies a query and dispatches it to one engine. Every call
// returns a response; engine failures become advisories.
type Router struct {
	classifier *Classifier
	irrigation IrrigationEngine
	fertilizer FertilizerEngine
	health     HealthEngine
	weather    WeatherProvider
	sensors    SensorProvider
	clock      types.Clock
	observer   Observer
	logger     *slog.Logger
}

// NewRouter builds a Router.
func NewRouter(cfg Config) *Router {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		classifier: NewClassifier(cfg.Intents.IntentTable(), cfg.MinConfidence),
		irrigation: cfg.Irrigation,
		fertilizer: cfg.Fertilizer,
		health:     cfg.Health,
		weather:    cfg.Weather,
		sensors:    cfg.Sensors,
		clock:      cfg.Clock,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
	}
}

// Classify exposes intent detection without dispatching.
func (r *Router) Classify(text string) types.VoiceCommand {
	return r.classifier.Classify(text)
}

// ProcessVoiceCommand answers a free-text query for the given farm.
func (r *Router) ProcessVoiceCommand(text string, fc types.FarmContext) (*types.VoiceResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.NewAppError(types.ErrCodeValidationEmptyQuery, "query text is empty", nil)
	}
	cmd := r.classifier.Classify(text)
	if r.observer != nil {
		r.observer.ObserveIntent(cmd.Intent, cmd.Confidence)
	}
	r.logger.Debug("voice query classified", "intent", cmd.Intent, "confidence", cmd.Confidence, "normalized", cmd.Normalized)

	resp := r.dispatch(cmd.Intent, text, fc)
	resp.Confidence = cmd.Confidence
	return resp, nil
}

// ProcessQuickCommand runs a predefined action without parsing text.
func (r *Router) ProcessQuickCommand(cmd types.QuickCommand, fc types.FarmContext) (*types.VoiceResponse, error) {
	var intent types.Intent
	switch cmd {
	case types.QuickIrrigationCheck:
		intent = types.IntentIrrigation
	case types.QuickFertilizerPlan:
		intent = types.IntentFertilizer
	case types.QuickHealthCheck:
		intent = types.IntentHealth
	case types.QuickWeatherUpdate:
		intent = types.IntentWeather
	default:
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationCommand, "unknown quick command", nil,
			map[string]any{"command": string(cmd)})
	}
	if r.observer != nil {
		r.observer.ObserveIntent(intent, 1)
	}
	resp := r.dispatch(intent, "", fc)
	resp.Confidence = 1
	return resp, nil
}

func (r *Router) dispatch(intent types.Intent, text string, fc types.FarmContext) *types.VoiceResponse {
	var (
		resp *types.VoiceResponse
		err  error
	)
	switch intent {
	case types.IntentIrrigation:
		resp, err = r.irrigationResponse(fc)
	case types.IntentFertilizer:
		resp, err = r.fertilizerResponse(fc)
	case types.IntentHealth:
		resp = r.healthResponse(text)
	case types.IntentWeather:
		resp = r.weatherResponse()
	default:
		resp = helpResponse()
	}
	if err != nil {
		resp = r.errorResponse(intent, err)
	}
	resp.Intent = intent
	resp.Text = resp.Message.Joined()
	return resp
}

func (r *Router) irrigationResponse(fc types.FarmContext) (*types.VoiceResponse, error) {
	now := r.clock.Now()
	reading := r.sensors.GetSensorData()
	adv := r.weather.GetWeatherData(nil)

	rec, err := r.irrigation.Calculate(irrigation.Input{
		Crop:            fc.Crop,
		Soil:            fc.Soil,
		DaysSinceSowing: fc.DaysSinceSowing(now),
		MoisturePct:     reading.MoisturePct,
		Month:           int(now.Month()),
		IsRaining:       adv.Reading.IsRaining,
		WeatherFactor:   adv.WeatherFactor,
	})
	if err != nil {
		return nil, err
	}

	action := ActionNone
	switch rec.Status {
	case types.IrrigationIrrigate:
		action = ActionStartIrrigation
	case types.IrrigationStop:
		action = ActionStopIrrigation
	}
	msg := rec.Reason
	note := sourceNote(reading.Source)
	msg.EN += note.EN
	msg.HI += note.HI

	return &types.VoiceResponse{
		Message: msg,
		Action:  action,
		Data: map[string]any{
			"recommendation": rec,
			"sensor":         reading,
			"weather_source": adv.Source,
		},
	}, nil
}

func (r *Router) fertilizerResponse(fc types.FarmContext) (*types.VoiceResponse, error) {
	rec, err := r.fertilizer.Calculate(fertilizer.Input{
		Crop:            fc.Crop,
		Soil:            fc.Soil,
		DaysSinceSowing: fc.DaysSinceSowing(r.clock.Now()),
	})
	if err != nil {
		return nil, err
	}
	action := ActionNone
	switch rec.Action {
	case types.FertilizerApply:
		action = ActionApplyFertilizer
	case types.FertilizerUpcoming:
		action = ActionPlanFertilizer
	}
	return &types.VoiceResponse{
		Message: rec.Reason,
		Action:  action,
		Data:    map[string]any{"recommendation": rec},
	}, nil
}

func (r *Router) healthResponse(text string) *types.VoiceResponse {
	symptoms := r.health.InferSymptoms(text)
	diagnosis := r.health.Diagnose(symptoms)

	if len(symptoms) == 0 {
		return &types.VoiceResponse{
			Message: types.Bilingual{
				EN: "Describe what you see on the plant, such as yellow leaves, spots, insects or wilting. " + diagnosis.Advice.EN,
				HI: "पौधे पर क्या दिख रहा है बताइए, जैसे पीले पत्ते, धब्बे, कीड़े या मुरझाना। " + diagnosis.Advice.HI,
			},
			Action: ActionOpenSymptomCheck,
			Data:   map[string]any{"diagnosis": diagnosis},
		}
	}

	top, ok := diagnosis.Top()
	if !ok {
		return &types.VoiceResponse{
			Message: diagnosis.Advice,
			Action:  ActionOpenSymptomCheck,
			Data:    map[string]any{"diagnosis": diagnosis},
		}
	}
	msg := types.Bilingual{
		EN: fmt.Sprintf("Likely %s (%.0f%% match). %s", top.Disease.EN, top.Confidence*100, top.Advice.EN),
		HI: fmt.Sprintf("संभवतः %s (%.0f%% मेल)। %s", top.Disease.HI, top.Confidence*100, top.Advice.HI),
	}
	if len(diagnosis.Candidates) > 1 {
		alt := diagnosis.Candidates[1].Disease
		msg.EN += fmt.Sprintf(" It could also be %s.", alt.EN)
		msg.HI += fmt.Sprintf(" यह %s भी हो सकता है।", alt.HI)
	}
	return &types.VoiceResponse{
		Message: msg,
		Action:  ActionShowDiagnosis,
		Data:    map[string]any{"diagnosis": diagnosis},
	}
}

func (r *Router) weatherResponse() *types.VoiceResponse {
	adv := r.weather.GetWeatherData(nil)
	return &types.VoiceResponse{
		Message: adv.Advice,
		Action:  ActionShowWeather,
		Data:    map[string]any{"weather": adv},
	}
}

func helpResponse() *types.VoiceResponse {
	return &types.VoiceResponse{
		Message: types.Bilingual{
			EN: "I can help with irrigation, fertilizer, crop diseases and weather. Try asking: should I water today?",
			HI: "मैं सिंचाई, खाद, फसल रोग और मौसम की जानकारी दे सकता हूँ। पूछिए: क्या आज पानी देना है?",
		},
		Action: ActionShowHelp,
	}
}

func (r *Router) errorResponse(intent types.Intent, err error) *types.VoiceResponse {
	code := types.ErrCodeInternalUnexpected
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	r.logger.Warn("engine failed, returning advisory", "intent", intent, "error", err)
	return &types.VoiceResponse{
		Message: types.Bilingual{
			EN: "I could not work this out for your farm. Please check the crop, soil and sowing date in your farm settings.",
			HI: "आपके खेत के लिए यह गणना नहीं हो सकी। कृपया खेत की सेटिंग में फसल, मिट्टी और बुवाई की तारीख जाँचें।",
		},
		Action: ActionCheckFarmSettings,
		Data:   map[string]any{"error_code": string(code)},
	}
}

func sourceNote(source types.ReadingSource) types.Bilingual {
	switch source {
	case types.SourceCached:
		return types.Bilingual{
			EN: " (Based on the last saved sensor reading.)",
			HI: " (पिछली सहेजी गई सेंसर रीडिंग के आधार पर।)",
		}
	case types.SourceDemo:
		return types.Bilingual{
			EN: " (No sensor connected, using typical values for this season.)",
			HI: " (कोई सेंसर जुड़ा नहीं है, इस मौसम के सामान्य मान उपयोग किए गए।)",
		}
	}
	return types.Bilingual{}
}
