package knowledge

import (
	"fmt"
	"sort"

	"krishi/internal/lexicon"
	"krishi/internal/types"
)

// StageLookup is the growth stage containing a given day since sowing.
type StageLookup struct {
	Stage StageProfile
	Index int
	// StartDay is the day since sowing on which the stage begins.
	StartDay int
	// PastSeason is set when the day lies beyond the crop's season; Stage is
	// then the final (harvest-ready) stage.
	PastSeason bool
}

// EndDay is the last day since sowing that belongs to the stage.
func (s StageLookup) EndDay() int { return s.StartDay + s.Stage.Days - 1 }

// SeasonalClimate is the climatological normal used when no observation is
// available.
type SeasonalClimate struct {
	Month           int
	Season          string
	SeasonName      types.Bilingual
	RainMM          float64
	RainProbability float64
	TemperatureC    float64
	SoilMoisturePct float64
}

// SymptomTerm holds the compiled keywords that indicate one symptom tag.
type SymptomTerm struct {
	Tag      string
	Patterns []lexicon.Pattern
}

// IntentEntry holds the compiled, weighted patterns that vote for an intent.
type IntentEntry struct {
	Intent   types.Intent
	Patterns []lexicon.Pattern
}

// GetCrop returns the profile for crop.
func (b *Base) GetCrop(crop types.CropType) (CropProfile, error) {
	c, ok := b.crops[crop]
	if !ok {
		return CropProfile{}, types.NewAppErrorWithDetails(types.ErrCodeNotFoundCrop,
			fmt.Sprintf("unknown crop %q", crop), nil, map[string]any{"crop": string(crop)})
	}
	return c, nil
}

// GetSoil returns the profile for soil.
func (b *Base) GetSoil(soil types.SoilType) (SoilProfile, error) {
	s, ok := b.soils[soil]
	if !ok {
		return SoilProfile{}, types.NewAppErrorWithDetails(types.ErrCodeNotFoundSoil,
			fmt.Sprintf("unknown soil %q", soil), nil, map[string]any{"soil": string(soil)})
	}
	return s, nil
}

// GetStage walks the cumulative stage durations of crop and returns the stage
// whose window contains daysSinceSowing.
func (b *Base) GetStage(crop types.CropType, daysSinceSowing int) (StageLookup, error) {
	c, err := b.GetCrop(crop)
	if err != nil {
		return StageLookup{}, err
	}
	if daysSinceSowing < 0 {
		return StageLookup{}, types.NewAppErrorWithDetails(types.ErrCodeValidationDays,
			"days since sowing cannot be negative", nil, map[string]any{"days_since_sowing": daysSinceSowing})
	}

	start := 0
	for i, st := range c.Stages {
		if daysSinceSowing < start+st.Days {
			return StageLookup{Stage: st, Index: i, StartDay: start}, nil
		}
		start += st.Days
	}
	last := len(c.Stages) - 1
	return StageLookup{
		Stage:      c.Stages[last],
		Index:      last,
		StartDay:   start - c.Stages[last].Days,
		PastSeason: true,
	}, nil
}

// StageStart returns the day since sowing on which the named stage begins.
func (b *Base) StageStart(crop types.CropType, stage string) (StageLookup, error) {
	c, err := b.GetCrop(crop)
	if err != nil {
		return StageLookup{}, err
	}
	start := 0
	for i, st := range c.Stages {
		if st.Name == stage {
			return StageLookup{Stage: st, Index: i, StartDay: start}, nil
		}
		start += st.Days
	}
	return StageLookup{}, types.NewAppErrorWithDetails(types.ErrCodeNotFoundStage,
		fmt.Sprintf("crop %s has no stage %q", crop, stage), nil,
		map[string]any{"crop": string(crop), "stage": stage})
}

// GetMonthlyETo returns reference evapotranspiration in mm/day. A month with
// no entry resolves to the nearest month that has one.
func (b *Base) GetMonthlyETo(month int) float64 {
	if v, ok := b.eto[month]; ok {
		return v
	}
	best, bestDist := 0.0, 13
	for m, v := range b.eto {
		d := monthDistance(month, m)
		if d < bestDist || (d == bestDist && v > best) {
			best, bestDist = v, d
		}
	}
	return best
}

// monthDistance is the distance on the calendar circle; out-of-range months
// are clamped first.
func monthDistance(a, b int) int {
	a = min(max(a, 1), 12)
	d := a - b
	if d < 0 {
		d = -d
	}
	return min(d, 12-d)
}

// GetFertilizerSchedule returns the scheduled dose for a crop stage.
func (b *Base) GetFertilizerSchedule(crop types.CropType, stage string) (FertilizerEntry, bool) {
	f, ok := b.schedule[scheduleKey{crop, stage}]
	return f, ok
}

// HealthRules returns the rule table in declaration order. The slice is a
// copy; the table itself cannot be modified.
func (b *Base) HealthRules() []HealthRule {
	out := make([]HealthRule, len(b.rules))
	copy(out, b.rules)
	return out
}

// GeneralAdvice is the crop care advice given when no rule qualifies.
func (b *Base) GeneralAdvice() types.Bilingual { return b.generalAdvice }

// SeasonalClimate returns the climatological normal for month, falling back
// to the nearest declared month.
func (b *Base) SeasonalClimate(month int) SeasonalClimate {
	c, ok := b.climate[month]
	if !ok {
		bestDist := 13
		for m, candidate := range b.climate {
			if d := monthDistance(month, m); d < bestDist || (d == bestDist && m < c.Month) {
				c, bestDist = candidate, d
			}
		}
	}
	return SeasonalClimate{
		Month:           c.Month,
		Season:          c.Season,
		SeasonName:      b.seasons[c.Season],
		RainMM:          c.RainMM,
		RainProbability: c.RainProbability,
		TemperatureC:    c.TemperatureC,
		SoilMoisturePct: c.SoilMoisturePct,
	}
}

// SymptomLexicon returns the keyword table sorted by tag.
func (b *Base) SymptomLexicon() []SymptomTerm { return b.symptoms }

// IntentTable returns the declarative intent patterns.
func (b *Base) IntentTable() []IntentEntry { return b.intents }

// Crops lists the known crop ids in sorted order.
func (b *Base) Crops() []types.CropType {
	out := make([]types.CropType, 0, len(b.crops))
	for id := range b.crops {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Soils lists the known soil ids in sorted order.
func (b *Base) Soils() []types.SoilType {
	out := make([]types.SoilType, 0, len(b.soils))
	for id := range b.soils {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
