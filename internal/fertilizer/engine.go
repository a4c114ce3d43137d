// Package fertilizer schedules the next nutrient dose for a crop from its
// growth stage, adjusted for soil.
package fertilizer

import (
	"fmt"
	"math"

	"krishi/internal/knowledge"
	"krishi/internal/types"
)

// KnowledgeBase is the subset of the reference tables the engine reads.
type KnowledgeBase interface {
	GetCrop(crop types.CropType) (knowledge.CropProfile, error)
	GetSoil(soil types.SoilType) (knowledge.SoilProfile, error)
	GetStage(crop types.CropType, daysSinceSowing int) (knowledge.StageLookup, error)
	GetFertilizerSchedule(crop types.CropType, stage string) (knowledge.FertilizerEntry, bool)
}

// Input is one fertilizer question.
type Input struct {
	Crop            types.CropType `json:"crop" validate:"required"`
	Soil            types.SoilType `json:"soil" validate:"required"`
	DaysSinceSowing int            `json:"days_since_sowing" validate:"gte=0"`
}

// Recommendation describes the next due dose. Window days count from sowing.
type Recommendation struct {
	Action          types.FertilizerAction `json:"action"`
	Stage           string                 `json:"stage"`
	CurrentStage    string                 `json:"current_stage"`
	Dose            knowledge.Dose         `json:"dose"`
	BaseDose        knowledge.Dose         `json:"base_dose"`
	Splits          int                    `json:"splits,omitempty"`
	PerApplicationN float64                `json:"per_application_n_kg_ha,omitempty"`
	WindowStartDay  int                    `json:"window_start_day,omitempty"`
	WindowEndDay    int                    `json:"window_end_day,omitempty"`
	DueInDays       int                    `json:"due_in_days"`
	Window          types.Bilingual        `json:"window"`
	Reason          types.Bilingual        `json:"reason"`
}

// Engine computes fertilizer recommendations. It holds no mutable state.
type Engine struct {
	kb KnowledgeBase
}

// NewEngine builds an Engine over kb.
func NewEngine(kb KnowledgeBase) *Engine {
	return &Engine{kb: kb}
}

// Calculate finds the first scheduled dose whose window has not closed,
// starting at the current stage.
func (e *Engine) Calculate(in Input) (*Recommendation, error) {
	crop, err := e.kb.GetCrop(in.Crop)
	if err != nil {
		return nil, err
	}
	soil, err := e.kb.GetSoil(in.Soil)
	if err != nil {
		return nil, err
	}
	current, err := e.kb.GetStage(in.Crop, in.DaysSinceSowing)
	if err != nil {
		return nil, err
	}

	if !current.PastSeason {
		start := current.StartDay
		for i := current.Index; i < len(crop.Stages); i++ {
			stage := crop.Stages[i]
			entry, ok := e.kb.GetFertilizerSchedule(in.Crop, stage.Name)
			stageStart := start
			start += stage.Days
			if !ok || entry.Dose.IsZero() {
				continue
			}
			windowStart := stageStart + entry.WindowStartDay
			windowEnd := stageStart + entry.WindowEndDay
			if in.DaysSinceSowing > windowEnd {
				continue
			}
			return e.recommend(in, current.Stage.Name, soil, entry, windowStart, windowEnd), nil
		}
	}

	return &Recommendation{
		Action:       types.FertilizerNone,
		Stage:        current.Stage.Name,
		CurrentStage: current.Stage.Name,
		Reason: types.Bilingual{
			EN: fmt.Sprintf("No further fertilizer is scheduled for %s this season.", crop.Name.EN),
			HI: fmt.Sprintf("इस मौसम में %s के लिए और खाद निर्धारित नहीं है।", crop.Name.HI),
		},
	}, nil
}

func (e *Engine) recommend(in Input, currentStage string, soil knowledge.SoilProfile, entry knowledge.FertilizerEntry, windowStart, windowEnd int) *Recommendation {
	dose, splits := adjustForSoil(entry.Dose, soil.Fertilizer)
	rec := &Recommendation{
		Stage:          entry.Stage,
		CurrentStage:   currentStage,
		Dose:           dose,
		BaseDose:       entry.Dose,
		Splits:         splits,
		WindowStartDay: windowStart,
		WindowEndDay:   windowEnd,
		Window:         entry.Window,
	}
	if splits > 0 {
		rec.PerApplicationN = round1(dose.N / float64(splits))
	}

	npk := fmt.Sprintf("N %.0f, P %.0f, K %.0f kg/ha", dose.N, dose.P, dose.K)
	splitEN, splitHI := "", ""
	if splits > 1 {
		splitEN = fmt.Sprintf(" Split nitrogen into %d applications of %.0f kg/ha on %s soil.", splits, rec.PerApplicationN, soil.Name.EN)
		splitHI = fmt.Sprintf(" %s मिट्टी में नाइट्रोजन को %d भागों में %.0f किग्रा/हे की दर से दें।", soil.Name.HI, splits, rec.PerApplicationN)
	}

	if in.DaysSinceSowing >= windowStart {
		rec.Action = types.FertilizerApply
		rec.Reason = types.Bilingual{
			EN: fmt.Sprintf("Apply %s now (%s), by day %d.%s", npk, entry.Window.EN, windowEnd, splitEN),
			HI: fmt.Sprintf("अभी %s दें (%s), दिन %d तक।%s", npk, entry.Window.HI, windowEnd, splitHI),
		}
		return rec
	}

	rec.Action = types.FertilizerUpcoming
	rec.DueInDays = windowStart - in.DaysSinceSowing
	rec.Reason = types.Bilingual{
		EN: fmt.Sprintf("Next dose of %s is due in %d days (%s).%s", npk, rec.DueInDays, entry.Window.EN, splitEN),
		HI: fmt.Sprintf("अगली खुराक %s, %d दिन बाद (%s)।%s", npk, rec.DueInDays, entry.Window.HI, splitHI),
	}
	return rec
}

// adjustForSoil scales nitrogen by the soil multiplier and raises the split
// count until no single application exceeds the soil's limit.
func adjustForSoil(base knowledge.Dose, adj knowledge.SoilFertilizer) (knowledge.Dose, int) {
	dose := knowledge.Dose{
		N: round1(base.N * adj.NMultiplier),
		P: base.P,
		K: base.K,
	}
	if dose.N == 0 {
		return dose, 0
	}
	splits := max(adj.Splits, 1)
	if adj.MaxSingleNKgHa > 0 {
		splits = max(splits, int(math.Ceil(dose.N/adj.MaxSingleNKgHa)))
	}
	return dose, splits
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
