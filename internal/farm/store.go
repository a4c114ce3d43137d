// Package farm holds the active farm context shared by the engines.
package farm

import (
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"krishi/internal/knowledge"
	"krishi/internal/types"
)

// Catalog resolves crop and soil ids.
type Catalog interface {
	GetCrop(crop types.CropType) (knowledge.CropProfile, error)
	GetSoil(soil types.SoilType) (knowledge.SoilProfile, error)
}

// Store is an atomic holder for the current FarmContext. Set is the only
// writer; Get returns a copy.
type Store struct {
	catalog  Catalog
	clock    types.Clock
	validate *validator.Validate
	current  atomic.Pointer[types.FarmContext]
}

// NewStore validates initial and returns a Store holding it.
func NewStore(catalog Catalog, clock types.Clock, initial types.FarmContext) (*Store, error) {
	if clock == nil {
		clock = types.RealClock{}
	}
	s := &Store{catalog: catalog, clock: clock, validate: validator.New()}
	if err := s.Set(initial); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the current context.
func (s *Store) Get() types.FarmContext {
	return *s.current.Load()
}

// Set validates fc and replaces the current context. Unknown crops or soils
// are rejected rather than substituted.
func (s *Store) Set(fc types.FarmContext) error {
	if err := s.validate.Struct(fc); err != nil {
		return types.NewAppError(types.ErrCodeValidationFarmContext, "invalid farm context", err)
	}
	if _, err := s.catalog.GetCrop(fc.Crop); err != nil {
		return err
	}
	if _, err := s.catalog.GetSoil(fc.Soil); err != nil {
		return err
	}
	if fc.SowingDate.After(s.clock.Now()) {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationFarmContext,
			"sowing date cannot be in the future", nil,
			map[string]any{"sowing_date": fc.SowingDate.Format(time.DateOnly)})
	}
	fc.SowingDate = fc.SowingDate.UTC()
	s.current.Store(&fc)
	return nil
}

// DaysSinceSowing reports elapsed whole days for the current context.
func (s *Store) DaysSinceSowing() int {
	return s.Get().DaysSinceSowing(s.clock.Now())
}
