package voice

import (
	"math"
	"sort"

	"krishi/internal/knowledge"
	"krishi/internal/lexicon"
	"krishi/internal/types"
)

// DefaultMinConfidence is the confidence below which a query is treated as
// general.
const DefaultMinConfidence = 0.3

// Classifier scores text against the declarative intent table.
type Classifier struct {
	table         []knowledge.IntentEntry
	saturation    map[types.Intent]float64
	minConfidence float64
}

// NewClassifier prepares table for scoring. An intent's saturation score is
// the sum of its two heaviest patterns; matching that much yields full
// confidence.
func NewClassifier(table []knowledge.IntentEntry, minConfidence float64) *Classifier {
	if minConfidence <= 0 || minConfidence > 1 {
		minConfidence = DefaultMinConfidence
	}
	c := &Classifier{
		table:         table,
		saturation:    make(map[types.Intent]float64, len(table)),
		minConfidence: minConfidence,
	}
	for _, entry := range table {
		weights := make([]float64, 0, len(entry.Patterns))
		for _, p := range entry.Patterns {
			weights = append(weights, p.Weight)
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(weights)))
		sat := 0.0
		for i := 0; i < len(weights) && i < 2; i++ {
			sat += weights[i]
		}
		c.saturation[entry.Intent] += sat
	}
	return c
}

// Classify normalises text and picks the highest scoring intent. Ties go to
// the intent that comes first in types.IntentPriority.
func (c *Classifier) Classify(text string) types.VoiceCommand {
	tokens := lexicon.Tokens(text)
	scores := make(map[types.Intent]float64, len(c.table))
	for _, entry := range c.table {
		for _, p := range entry.Patterns {
			if p.Matches(tokens) {
				scores[entry.Intent] += p.Weight
			}
		}
	}

	cmd := types.VoiceCommand{
		Text:       text,
		Normalized: lexicon.Normalize(text),
		Intent:     types.IntentGeneral,
		Scores:     scores,
	}

	best, bestScore := types.IntentGeneral, 0.0
	for _, intent := range types.IntentPriority {
		if s := scores[intent]; s > bestScore {
			best, bestScore = intent, s
		}
	}
	if bestScore == 0 {
		return cmd
	}

	confidence := 1.0
	if sat := c.saturation[best]; sat > 0 {
		confidence = math.Min(1, bestScore/sat)
	}
	cmd.Confidence = math.Round(confidence*100) / 100
	if cmd.Confidence >= c.minConfidence {
		cmd.Intent = best
	}
	return cmd
}
