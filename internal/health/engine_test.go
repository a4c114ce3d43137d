package health

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishi/internal/knowledge"
	"krishi/internal/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	kb, err := knowledge.Default()
	require.NoError(t, err)
	return NewEngine(kb)
}

func ruleIDs(d *Diagnosis) []string {
	ids := make([]string, 0, len(d.Candidates))
	for _, c := range d.Candidates {
		ids = append(ids, c.RuleID)
	}
	return ids
}

func TestDiagnose_Ranking(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name     string
		symptoms []string
		want     []string
	}{
		{
			name:     "single required tag",
			symptoms: []string{"white_powder"},
			want:     []string{"powdery_mildew"},
		},
		{
			name:     "more specific rule ranks first",
			symptoms: []string{"yellow_leaves", "leaf_curl"},
			want:     []string{"leaf_curl_virus", "nitrogen_deficiency"},
		},
		{
			name:     "equal specificity keeps declaration order",
			symptoms: []string{"brown_spots", "dry_leaf_tips", "eye_shaped_lesions", "yellow_leaves", "water_soaked_lesions"},
			want:     []string{"bacterial_leaf_blight", "blast", "leaf_blight", "nitrogen_deficiency"},
		},
		{
			name:     "wilting with rot",
			symptoms: []string{"wilting", "rotting_stem"},
			want:     []string{"bacterial_wilt", "water_stress"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Diagnose(tt.symptoms)
			assert.False(t, d.Insufficient)
			if diff := cmp.Diff(tt.want, ruleIDs(d)); diff != "" {
				t.Errorf("ranking mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDiagnose_Confidence(t *testing.T) {
	e := newTestEngine(t)

	d := e.Diagnose([]string{"yellow_stripes", "orange_pustules"})
	top, ok := d.Top()
	require.True(t, ok)
	assert.Equal(t, "yellow_rust", top.RuleID)
	assert.InDelta(t, 0.67, top.Confidence, 0.001)
	assert.Equal(t, 2, top.Specificity)

	d = e.Diagnose([]string{"yellow_stripes", "orange_pustules", "yellow_leaves"})
	top, _ = d.Top()
	assert.Equal(t, 1.0, top.Confidence)
	assert.Equal(t, []string{"yellow_stripes", "orange_pustules", "yellow_leaves"}, top.Matched)
	assert.Equal(t, top.Advice, d.Advice)
}

func TestDiagnose_Deterministic(t *testing.T) {
	e := newTestEngine(t)

	symptoms := []string{"insects_visible", "sticky_leaves", "leaf_curl", "yellow_leaves", "holes_in_leaves"}
	first := e.Diagnose(symptoms)
	for i := 0; i < 20; i++ {
		reversed := make([]string, len(symptoms))
		for j, s := range symptoms {
			reversed[len(symptoms)-1-j] = s
		}
		if diff := cmp.Diff(first, e.Diagnose(reversed)); diff != "" {
			t.Fatalf("diagnosis changed with input order (-first +got):\n%s", diff)
		}
	}
}

func TestDiagnose_InsufficientSignal(t *testing.T) {
	e := newTestEngine(t)

	for _, symptoms := range [][]string{nil, {"stunted_growth"}, {"unknown_tag"}} {
		d := e.Diagnose(symptoms)
		assert.True(t, d.Insufficient)
		assert.Empty(t, d.Candidates)
		assert.NotEmpty(t, d.Advice.EN)
		assert.NotEmpty(t, d.Advice.HI)
	}
}

func TestDiagnose_OneCandidatePerDisease(t *testing.T) {
	rules := []knowledge.HealthRule{
		{ID: "a", Disease: types.Bilingual{EN: "Rust"}, Required: []string{"x", "y"}, Order: 0},
		{ID: "b", Disease: types.Bilingual{EN: "Rust"}, Required: []string{"x"}, Order: 1},
		{ID: "c", Disease: types.Bilingual{EN: "Blight"}, Required: []string{"y"}, Order: 2},
	}
	e := &Engine{rules: rules}

	d := e.Diagnose([]string{"x", "y"})
	assert.Equal(t, []string{"a", "c"}, ruleIDs(d))
}

func TestInferSymptoms(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		text string
		want []string
	}{
		{"patte peele ho gaye aur keede dikh rahe", []string{"insects_visible", "yellow_leaves"}},
		{"पत्तियों पर सफ़ेद पाउडर है", []string{"white_powder"}},
		{"Leaves have brown spots and dry tips", []string{"brown_spots", "dry_leaf_tips"}},
		{"all good", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, e.InferSymptoms(tt.text)); diff != "" {
				t.Errorf("InferSymptoms mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
