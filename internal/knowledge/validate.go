package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"krishi/internal/lexicon"
	"krishi/internal/types"
)

var knownIntents = map[types.Intent]bool{
	types.IntentIrrigation: true,
	types.IntentFertilizer: true,
	types.IntentHealth:     true,
	types.IntentWeather:    true,
	types.IntentGeneral:    true,
}

// validate checks the structural invariants of the tables. All problems are
// collected so a broken file can be fixed in one pass.
func validate(doc *document) error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	stages := make(map[scheduleKey]StageProfile)
	crops := make(map[types.CropType]bool)
	for _, c := range doc.Crops {
		if c.ID == "" {
			addf("crop with empty id")
			continue
		}
		if crops[c.ID] {
			addf("crop %s declared twice", c.ID)
		}
		crops[c.ID] = true
		if len(c.Stages) == 0 {
			addf("crop %s has no stages", c.ID)
			continue
		}
		total := 0
		for _, st := range c.Stages {
			if st.Days <= 0 {
				addf("crop %s stage %s: days must be positive", c.ID, st.Name)
			}
			if st.Kc <= 0 {
				addf("crop %s stage %s: kc must be positive", c.ID, st.Name)
			}
			if st.RootDepthM <= 0 {
				addf("crop %s stage %s: root depth must be positive", c.ID, st.Name)
			}
			if st.MAD <= 0 || st.MAD >= 1 {
				addf("crop %s stage %s: mad must be within (0,1)", c.ID, st.Name)
			}
			stages[scheduleKey{c.ID, st.Name}] = st
			total += st.Days
		}
		if total != c.SeasonDays {
			addf("crop %s: stage days sum to %d, season is %d", c.ID, total, c.SeasonDays)
		}
	}
	if len(crops) == 0 {
		addf("no crops declared")
	}

	soils := make(map[types.SoilType]bool)
	for _, s := range doc.Soils {
		if s.ID == "" {
			addf("soil with empty id")
			continue
		}
		if soils[s.ID] {
			addf("soil %s declared twice", s.ID)
		}
		soils[s.ID] = true
		if s.FieldCapacityPct <= s.WiltingPointPct {
			addf("soil %s: field capacity %.1f must exceed wilting point %.1f", s.ID, s.FieldCapacityPct, s.WiltingPointPct)
		}
		if s.WiltingPointPct < 0 || s.FieldCapacityPct > 100 {
			addf("soil %s: moisture bounds outside 0-100", s.ID)
		}
		if s.SaturationPct <= s.FieldCapacityPct || s.SaturationPct > 100 {
			addf("soil %s: saturation bound %.1f must lie above field capacity and at most 100", s.ID, s.SaturationPct)
		}
		if s.Fertilizer.NMultiplier <= 0 {
			addf("soil %s: n multiplier must be positive", s.ID)
		}
		if s.Fertilizer.Splits < 1 {
			addf("soil %s: splits must be at least 1", s.ID)
		}
		if s.Fertilizer.MaxSingleNKgHa < 0 {
			addf("soil %s: max single N dose cannot be negative", s.ID)
		}
	}
	if len(soils) == 0 {
		addf("no soils declared")
	}

	for m := 1; m <= 12; m++ {
		v, ok := doc.ETo[m]
		if !ok {
			addf("eto: month %d missing", m)
			continue
		}
		if v <= 0 {
			addf("eto: month %d must be positive", m)
		}
	}
	for m := range doc.ETo {
		if !types.ValidMonth(m) {
			addf("eto: month %d outside 1-12", m)
		}
	}

	months := make(map[int]bool)
	for _, c := range doc.Climate {
		if !types.ValidMonth(c.Month) {
			addf("climate: month %d outside 1-12", c.Month)
			continue
		}
		if months[c.Month] {
			addf("climate: month %d declared twice", c.Month)
		}
		months[c.Month] = true
		if c.RainProbability < 0 || c.RainProbability > 1 {
			addf("climate: month %d rain probability must be within 0-1", c.Month)
		}
		if _, ok := doc.Seasons[c.Season]; !ok {
			addf("climate: month %d references unknown season %q", c.Month, c.Season)
		}
	}
	if len(months) == 0 {
		addf("no climate months declared")
	}

	seen := make(map[scheduleKey]bool)
	for _, f := range doc.Fertilizer {
		key := scheduleKey{f.Crop, f.Stage}
		st, ok := stages[key]
		if !ok {
			addf("fertilizer: %s/%s is not a known crop stage", f.Crop, f.Stage)
			continue
		}
		if seen[key] {
			addf("fertilizer: %s/%s declared twice", f.Crop, f.Stage)
		}
		seen[key] = true
		if f.Dose.N < 0 || f.Dose.P < 0 || f.Dose.K < 0 {
			addf("fertilizer: %s/%s has a negative dose", f.Crop, f.Stage)
		}
		if f.WindowStartDay < 0 || f.WindowEndDay < f.WindowStartDay || f.WindowEndDay >= st.Days {
			addf("fertilizer: %s/%s window %d-%d outside stage of %d days", f.Crop, f.Stage, f.WindowStartDay, f.WindowEndDay, st.Days)
		}
	}

	ruleIDs := make(map[string]bool)
	requiredSets := make(map[string]string)
	for _, r := range doc.HealthRules {
		if r.ID == "" {
			addf("health rule with empty id")
			continue
		}
		if ruleIDs[r.ID] {
			addf("health rule %s declared twice", r.ID)
		}
		ruleIDs[r.ID] = true
		if len(r.Required) == 0 {
			addf("health rule %s has no required symptoms", r.ID)
			continue
		}
		for _, tag := range append(append([]string{}, r.Required...), r.Contributing...) {
			if _, ok := doc.Symptoms[tag]; !ok {
				addf("health rule %s references unknown symptom %q", r.ID, tag)
			}
		}
		set := append([]string{}, r.Required...)
		sort.Strings(set)
		key := strings.Join(set, ",")
		if other, dup := requiredSets[key]; dup {
			addf("health rules %s and %s share the required set {%s}", other, r.ID, key)
		}
		requiredSets[key] = r.ID
	}

	for tag, keywords := range doc.Symptoms {
		if len(keywords) == 0 {
			addf("symptom %s has no keywords", tag)
		}
		for _, kw := range keywords {
			if lexicon.Compile(kw, 1).Empty() {
				addf("symptom %s has a blank keyword", tag)
			}
		}
	}

	declared := make(map[types.Intent]bool)
	for _, spec := range doc.Intents {
		if !knownIntents[spec.Intent] {
			addf("intent %q is not supported", spec.Intent)
			continue
		}
		if declared[spec.Intent] {
			addf("intent %s declared twice", spec.Intent)
		}
		declared[spec.Intent] = true
		if len(spec.Patterns) == 0 {
			addf("intent %s has no patterns", spec.Intent)
		}
		for _, p := range spec.Patterns {
			if p.Weight <= 0 {
				addf("intent %s pattern %q: weight must be positive", spec.Intent, p.Pattern)
			}
			if lexicon.Compile(p.Pattern, p.Weight).Empty() {
				addf("intent %s has a blank pattern", spec.Intent)
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationKnowledgeBase,
		fmt.Sprintf("knowledge tables failed validation (%d problems)", len(problems)),
		nil,
		map[string]any{"problems": problems},
	)
}
