package fertilizer

import (
	"errors"
	"testing"

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

func TestCalculate(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name       string
		in         Input
		wantAction types.FertilizerAction
		wantStage  string
		wantDose   knowledge.Dose
		wantSplits int
		wantDueIn  int
		wantWindow [2]int
	}{
		{
			name:       "basal dose at sowing on loam",
			in:         Input{Crop: types.CropWheat, Soil: types.SoilLoamy, DaysSinceSowing: 2},
			wantAction: types.FertilizerApply,
			wantStage:  "initial",
			wantDose:   knowledge.Dose{N: 60, P: 60, K: 40},
			wantSplits: 1,
			wantWindow: [2]int{0, 5},
		},
		{
			name:       "basal window closed, next stage upcoming",
			in:         Input{Crop: types.CropWheat, Soil: types.SoilLoamy, DaysSinceSowing: 10},
			wantAction: types.FertilizerUpcoming,
			wantStage:  "development",
			wantDose:   knowledge.Dose{N: 30},
			wantSplits: 1,
			wantDueIn:  10,
			wantWindow: [2]int{20, 27},
		},
		{
			name:       "sandy soil increases nitrogen and splits",
			in:         Input{Crop: types.CropWheat, Soil: types.SoilSandy, DaysSinceSowing: 0},
			wantAction: types.FertilizerApply,
			wantStage:  "initial",
			wantDose:   knowledge.Dose{N: 66, P: 60, K: 40},
			wantSplits: 2,
			wantWindow: [2]int{0, 5},
		},
		{
			name:       "clay soil caps single doses",
			in:         Input{Crop: types.CropWheat, Soil: types.SoilClay, DaysSinceSowing: 0},
			wantAction: types.FertilizerApply,
			wantStage:  "initial",
			wantDose:   knowledge.Dose{N: 54, P: 60, K: 40},
			wantSplits: 2,
			wantWindow: [2]int{0, 5},
		},
		{
			name:       "window offset inside stage",
			in:         Input{Crop: types.CropCotton, Soil: types.SoilLoamy, DaysSinceSowing: 35},
			wantAction: types.FertilizerUpcoming,
			wantStage:  "development",
			wantDose:   knowledge.Dose{N: 40},
			wantSplits: 1,
			wantDueIn:  5,
			wantWindow: [2]int{40, 55},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := e.Calculate(tt.in)
			require.NoError(t, err)

			assert.Equal(t, tt.wantAction, rec.Action)
			assert.Equal(t, tt.wantStage, rec.Stage)
			assert.Equal(t, tt.wantDose, rec.Dose)
			assert.Equal(t, tt.wantSplits, rec.Splits)
			assert.Equal(t, tt.wantDueIn, rec.DueInDays)
			assert.Equal(t, tt.wantWindow, [2]int{rec.WindowStartDay, rec.WindowEndDay})
			assert.NotEmpty(t, rec.Reason.EN)
			assert.NotEmpty(t, rec.Reason.HI)
		})
	}
}

func TestCalculate_NoFurtherDoses(t *testing.T) {
	e := newTestEngine(t)

	for _, days := range []int{111, 125, 500} {
		rec, err := e.Calculate(Input{Crop: types.CropWheat, Soil: types.SoilLoamy, DaysSinceSowing: days})
		require.NoError(t, err)
		assert.Equal(t, types.FertilizerNone, rec.Action, "day %d", days)
		assert.True(t, rec.Dose.IsZero())
	}
}

func TestCalculate_Errors(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Calculate(Input{Crop: "barley", Soil: types.SoilLoamy})
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundCrop, appErr.Code)

	_, err = e.Calculate(Input{Crop: types.CropWheat, Soil: types.SoilLoamy, DaysSinceSowing: -1})
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationDays, appErr.Code)
}

func TestAdjustForSoil(t *testing.T) {
	dose, splits := adjustForSoil(knowledge.Dose{P: 60}, knowledge.SoilFertilizer{NMultiplier: 1.1, Splits: 2})
	assert.Equal(t, 0, splits, "no nitrogen means nothing to split")
	assert.Equal(t, 60.0, dose.P)

	dose, splits = adjustForSoil(knowledge.Dose{N: 100}, knowledge.SoilFertilizer{NMultiplier: 0.9, Splits: 1, MaxSingleNKgHa: 30})
	assert.Equal(t, 90.0, dose.N)
	assert.Equal(t, 3, splits)
}
