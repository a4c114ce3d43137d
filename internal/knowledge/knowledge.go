// Package knowledge holds the static agronomy reference tables used by the
// advisory engines: crop stage profiles, soil profiles, monthly reference
// evapotranspiration, seasonal climatology, fertilizer schedules, symptom
// rules and the intent pattern table.
//
// Tables are parsed once from YAML and validated; a Base is immutable after
// construction and safe for concurrent use.
package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"krishi/internal/lexicon"
	"krishi/internal/types"
)

//go:embed knowledge.yaml
var embedded []byte

// StageProfile describes one growth stage of a crop.
type StageProfile struct {
	Name       string  `yaml:"name" json:"name"`
	Days       int     `yaml:"days" json:"days"`
	Kc         float64 `yaml:"kc" json:"kc"`
	RootDepthM float64 `yaml:"root_depth_m" json:"root_depth_m"`
	MAD        float64 `yaml:"mad" json:"mad"`
}

// CropProfile is the ordered stage table of a crop, contiguous from sowing.
type CropProfile struct {
	ID         types.CropType  `yaml:"id" json:"id"`
	Name       types.Bilingual `yaml:"name" json:"name"`
	SeasonDays int             `yaml:"season_days" json:"season_days"`
	Stages     []StageProfile  `yaml:"stages" json:"stages"`
}

// SoilFertilizer adjusts nutrient doses for a soil.
type SoilFertilizer struct {
	NMultiplier    float64 `yaml:"n_multiplier" json:"n_multiplier"`
	Splits         int     `yaml:"splits" json:"splits"`
	MaxSingleNKgHa float64 `yaml:"max_single_n_kg_ha" json:"max_single_n_kg_ha"`
}

// SoilProfile describes the water holding behaviour of a soil.
type SoilProfile struct {
	ID               types.SoilType          `yaml:"id" json:"id"`
	Name             types.Bilingual         `yaml:"name" json:"name"`
	FieldCapacityPct float64                 `yaml:"field_capacity_pct" json:"field_capacity_pct"`
	WiltingPointPct  float64                 `yaml:"wilting_point_pct" json:"wilting_point_pct"`
	Infiltration     types.InfiltrationClass `yaml:"infiltration" json:"infiltration"`
	SaturationPct    float64                 `yaml:"saturation_pct" json:"saturation_pct"`
	Fertilizer       SoilFertilizer          `yaml:"fertilizer" json:"fertilizer"`
}

// Climate is the long-term normal for a calendar month.
type Climate struct {
	Month           int     `yaml:"month" json:"month"`
	Season          string  `yaml:"season" json:"season"`
	RainMM          float64 `yaml:"rain_mm" json:"rain_mm"`
	RainProbability float64 `yaml:"rain_probability" json:"rain_probability"`
	TemperatureC    float64 `yaml:"temperature_c" json:"temperature_c"`
	SoilMoisturePct float64 `yaml:"soil_moisture_pct" json:"soil_moisture_pct"`
}

// Dose is a nutrient quantity in kg/ha.
type Dose struct {
	N float64 `yaml:"n" json:"n_kg_ha"`
	P float64 `yaml:"p" json:"p_kg_ha"`
	K float64 `yaml:"k" json:"k_kg_ha"`
}

// IsZero reports whether no nutrient is applied.
func (d Dose) IsZero() bool { return d.N == 0 && d.P == 0 && d.K == 0 }

// FertilizerEntry is the scheduled dose for a crop stage.
type FertilizerEntry struct {
	Crop           types.CropType  `yaml:"crop"`
	Stage          string          `yaml:"stage"`
	Dose           Dose            `yaml:"dose"`
	WindowStartDay int             `yaml:"window_start_day"`
	WindowEndDay   int             `yaml:"window_end_day"`
	Window         types.Bilingual `yaml:"window"`
}

// HealthRule maps a symptom set to a diagnosis.
type HealthRule struct {
	ID           string          `yaml:"id" json:"id"`
	Disease      types.Bilingual `yaml:"disease" json:"disease"`
	Required     []string        `yaml:"required" json:"required"`
	Contributing []string        `yaml:"contributing" json:"contributing,omitempty"`
	Advice       types.Bilingual `yaml:"advice" json:"advice"`
	Order        int             `yaml:"-" json:"-"`
}

// Specificity ranks qualifying rules; a rule requiring more tags is more specific.
func (r HealthRule) Specificity() int { return len(r.Required) }

// IntentPattern is one keyword or phrase that votes for an intent.
type IntentPattern struct {
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
}

// IntentSpec is the pattern set of one intent.
type IntentSpec struct {
	Intent   types.Intent    `yaml:"intent"`
	Patterns []IntentPattern `yaml:"patterns"`
}

// document is the YAML shape of the tables.
type document struct {
	Crops         []CropProfile              `yaml:"crops"`
	Soils         []SoilProfile              `yaml:"soils"`
	ETo           map[int]float64            `yaml:"eto_mm_per_day"`
	Climate       []Climate                  `yaml:"climate"`
	Seasons       map[string]types.Bilingual `yaml:"seasons"`
	Fertilizer    []FertilizerEntry          `yaml:"fertilizer"`
	HealthRules   []HealthRule               `yaml:"health_rules"`
	GeneralAdvice types.Bilingual            `yaml:"general_advice"`
	Symptoms      map[string][]string        `yaml:"symptoms"`
	Intents       []IntentSpec               `yaml:"intents"`
}

type scheduleKey struct {
	crop  types.CropType
	stage string
}

// Base is the validated, immutable knowledge base.
type Base struct {
	crops         map[types.CropType]CropProfile
	soils         map[types.SoilType]SoilProfile
	eto           map[int]float64
	climate       map[int]Climate
	seasons       map[string]types.Bilingual
	schedule      map[scheduleKey]FertilizerEntry
	rules         []HealthRule
	generalAdvice types.Bilingual
	symptoms      []SymptomTerm
	intents       []IntentEntry
}

var (
	defaultOnce sync.Once
	defaultBase *Base
	defaultErr  error
)

// Default returns the knowledge base built from the embedded tables. It is
// parsed on first use and shared afterwards.
func Default() (*Base, error) {
	defaultOnce.Do(func() {
		defaultBase, defaultErr = Parse(embedded)
	})
	return defaultBase, defaultErr
}

// LoadFile parses a replacement table from disk.
func LoadFile(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML table.
func Parse(data []byte) (*Base, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationKnowledgeBase, "knowledge tables are not valid YAML", err)
	}
	if err := validate(&doc); err != nil {
		return nil, err
	}
	return build(&doc), nil
}

func build(doc *document) *Base {
	b := &Base{
		crops:         make(map[types.CropType]CropProfile, len(doc.Crops)),
		soils:         make(map[types.SoilType]SoilProfile, len(doc.Soils)),
		eto:           make(map[int]float64, len(doc.ETo)),
		climate:       make(map[int]Climate, len(doc.Climate)),
		seasons:       doc.Seasons,
		schedule:      make(map[scheduleKey]FertilizerEntry, len(doc.Fertilizer)),
		rules:         make([]HealthRule, len(doc.HealthRules)),
		generalAdvice: doc.GeneralAdvice,
		symptoms:      make([]SymptomTerm, 0, len(doc.Symptoms)),
		intents:       make([]IntentEntry, 0, len(doc.Intents)),
	}
	for _, c := range doc.Crops {
		b.crops[c.ID] = c
	}
	for _, s := range doc.Soils {
		b.soils[s.ID] = s
	}
	for m, v := range doc.ETo {
		b.eto[m] = v
	}
	for _, c := range doc.Climate {
		b.climate[c.Month] = c
	}
	for _, f := range doc.Fertilizer {
		b.schedule[scheduleKey{f.Crop, f.Stage}] = f
	}
	for i, r := range doc.HealthRules {
		r.Order = i
		b.rules[i] = r
	}
	for _, tag := range sortedKeys(doc.Symptoms) {
		term := SymptomTerm{Tag: tag}
		for _, kw := range doc.Symptoms[tag] {
			term.Patterns = append(term.Patterns, lexicon.Compile(kw, 1))
		}
		b.symptoms = append(b.symptoms, term)
	}
	for _, spec := range doc.Intents {
		entry := IntentEntry{Intent: spec.Intent}
		for _, p := range spec.Patterns {
			entry.Patterns = append(entry.Patterns, lexicon.Compile(p.Pattern, p.Weight))
		}
		b.intents = append(b.intents, entry)
	}
	return b
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
