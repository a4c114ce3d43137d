// Package irrigation decides whether a plot needs water using the FAO-56
// single crop coefficient method.
package irrigation

import (
	"fmt"
	"math"

	"krishi/internal/knowledge"
	"krishi/internal/types"
)

// KnowledgeBase is the subset of the reference tables the engine reads.
type KnowledgeBase interface {
	GetStage(crop types.CropType, daysSinceSowing int) (knowledge.StageLookup, error)
	GetSoil(soil types.SoilType) (knowledge.SoilProfile, error)
	GetMonthlyETo(month int) float64
}

// Policy holds the deficit-to-depth scaling. Both values are tunable through
// configuration.
type Policy struct {
	// ReplenishFraction is the share of the root-zone deficit refilled per
	// irrigation.
	ReplenishFraction float64
	// ETcCarryDays is how many days of crop water use are added on top.
	ETcCarryDays float64
}

// DefaultPolicy refills 80% of the deficit plus one day of crop water use.
var DefaultPolicy = Policy{ReplenishFraction: 0.8, ETcCarryDays: 1}

// Input is one irrigation question.
type Input struct {
	Crop            types.CropType `json:"crop" validate:"required"`
	Soil            types.SoilType `json:"soil" validate:"required"`
	DaysSinceSowing int            `json:"days_since_sowing" validate:"gte=0"`
	MoisturePct     float64        `json:"soil_moisture_pct"`
	Month           int            `json:"month"`
	IsRaining       bool           `json:"is_raining"`
	// WeatherFactor dampens the depth when rain is expected. Zero means 1.
	WeatherFactor float64 `json:"weather_factor,omitempty" validate:"gte=0,lte=1"`
}

// Recommendation is the decision with the water balance that produced it.
type Recommendation struct {
	Status         types.IrrigationStatus `json:"status"`
	DepthMM        *float64               `json:"depth_mm,omitempty"`
	ETcMM          float64                `json:"etc_mm_per_day"`
	TAWMM          float64                `json:"taw_mm"`
	RAWThresholdMM float64                `json:"raw_threshold_mm"`
	DepletionMM    float64                `json:"depletion_mm"`
	MoisturePct    float64                `json:"soil_moisture_pct"`
	Stage          string                 `json:"stage"`
	PastSeason     bool                   `json:"past_season,omitempty"`
	Reason         types.Bilingual        `json:"reason"`
}

// Engine computes irrigation decisions. It holds no mutable state.
type Engine struct {
	kb     KnowledgeBase
	policy Policy
}

// NewEngine builds an Engine. Non-positive policy values fall back to
// DefaultPolicy.
func NewEngine(kb KnowledgeBase, policy Policy) *Engine {
	if policy.ReplenishFraction <= 0 || policy.ReplenishFraction > 1 {
		policy.ReplenishFraction = DefaultPolicy.ReplenishFraction
	}
	if policy.ETcCarryDays < 0 {
		policy.ETcCarryDays = DefaultPolicy.ETcCarryDays
	}
	return &Engine{kb: kb, policy: policy}
}

// Calculate applies the decision order: rain, season end, saturation, then
// depletion against the readily available water threshold.
func (e *Engine) Calculate(in Input) (*Recommendation, error) {
	lookup, err := e.kb.GetStage(in.Crop, in.DaysSinceSowing)
	if err != nil {
		return nil, err
	}
	soil, err := e.kb.GetSoil(in.Soil)
	if err != nil {
		return nil, err
	}
	factor := in.WeatherFactor
	if factor <= 0 || factor > 1 {
		factor = 1
	}

	stage := lookup.Stage
	moisture := types.ClampPercent(in.MoisturePct)
	etc := stage.Kc * e.kb.GetMonthlyETo(in.Month)
	taw := (soil.FieldCapacityPct - soil.WiltingPointPct) / 100 * stage.RootDepthM * 1000
	threshold := taw * (1 - stage.MAD)
	depletion := (soil.FieldCapacityPct - moisture) / 100 * stage.RootDepthM * 1000

	rec := &Recommendation{
		ETcMM:          round1(etc),
		TAWMM:          round1(taw),
		RAWThresholdMM: round1(threshold),
		DepletionMM:    round1(depletion),
		MoisturePct:    moisture,
		Stage:          stage.Name,
		PastSeason:     lookup.PastSeason,
	}

	switch {
	case in.IsRaining:
		rec.Status = types.IrrigationSkip
		rec.Reason = types.Bilingual{
			EN: "It is raining. Natural rainfall will replenish the soil, skip irrigation today.",
			HI: "बारिश हो रही है। प्राकृतिक वर्षा से मिट्टी में नमी आएगी, आज सिंचाई न करें।",
		}
	case lookup.PastSeason:
		rec.Status = types.IrrigationSkip
		rec.Reason = types.Bilingual{
			EN: "The crop has completed its season and is ready for harvest. No irrigation needed.",
			HI: "फसल का मौसम पूरा हो चुका है और कटाई के लिए तैयार है। सिंचाई की आवश्यकता नहीं है।",
		}
	case moisture > soil.SaturationPct:
		rec.Status = types.IrrigationStop
		rec.Reason = types.Bilingual{
			EN: fmt.Sprintf("Soil moisture %.0f%% is above the %.0f%% saturation limit for %s soil. Stop irrigation to avoid waterlogging.", moisture, soil.SaturationPct, soil.Name.EN),
			HI: fmt.Sprintf("मिट्टी की नमी %.0f%% है, जो %s मिट्टी की %.0f%% सीमा से अधिक है। जलभराव से बचने के लिए सिंचाई बंद करें।", moisture, soil.Name.HI, soil.SaturationPct),
		}
	case depletion > threshold:
		depth := math.Min(depletion, depletion*e.policy.ReplenishFraction+etc*e.policy.ETcCarryDays) * factor
		depth = round1(depth)
		rec.Status = types.IrrigationIrrigate
		rec.DepthMM = &depth
		rec.Reason = types.Bilingual{
			EN: fmt.Sprintf("Root zone deficit is %.0f mm, above the %.0f mm trigger for the %s stage. Apply about %.0f mm of water.", depletion, threshold, stage.Name, depth),
			HI: fmt.Sprintf("जड़ क्षेत्र में %.0f मिमी पानी की कमी है, जो %.0f मिमी की सीमा से अधिक है। लगभग %.0f मिमी सिंचाई करें।", depletion, threshold, depth),
		}
	default:
		rec.Status = types.IrrigationNormal
		rec.Reason = types.Bilingual{
			EN: fmt.Sprintf("Soil moisture %.0f%% is adequate for the %s stage. No irrigation needed now.", moisture, stage.Name),
			HI: fmt.Sprintf("मिट्टी की नमी %.0f%% इस अवस्था के लिए पर्याप्त है। अभी सिंचाई की आवश्यकता नहीं है।", moisture),
		}
	}
	return rec, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
