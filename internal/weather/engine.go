// Package weather resolves a usable weather advisory through a live, cached
// and seasonal cascade.
package weather

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"krishi/internal/knowledge"
	"krishi/internal/types"
)

// DefaultStalenessWindow is how long a cached reading stays usable.
const DefaultStalenessWindow = 24 * time.Hour

// RainExpectedProbability is the probability at or above which rain is
// considered expected.
const RainExpectedProbability = 0.5

// Climatology supplies monthly normals for the seasonal tier.
type Climatology interface {
	SeasonalClimate(month int) knowledge.SeasonalClimate
}

// SyncRecorder is notified when a fresh observation has been cached.
type SyncRecorder interface {
	MarkSynced(at time.Time)
}

// Advisory is the resolved weather with its provenance.
type Advisory struct {
	Source        types.WeatherSource  `json:"source"`
	Reading       types.WeatherReading `json:"reading"`
	AgeSeconds    int64                `json:"age_seconds"`
	WeatherFactor float64              `json:"weather_factor"`
	RainExpected  bool                 `json:"rain_expected"`
	Season        types.Bilingual      `json:"season"`
	Advice        types.Bilingual      `json:"advice"`
}

// Config wires an Engine.
type Config struct {
	Climate         Climatology
	Clock           types.Clock
	StalenessWindow time.Duration
	Recorder        SyncRecorder
	Logger          *slog.Logger
}

// Engine owns the weather cache. CacheWeatherData is the only writer.
type Engine struct {
	climate   Climatology
	clock     types.Clock
	staleness time.Duration
	recorder  SyncRecorder
	logger    *slog.Logger
	validate  *validator.Validate

	cache atomic.Pointer[types.WeatherReading]
}

// NewEngine builds an Engine with an empty cache.
func NewEngine(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = DefaultStalenessWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		climate:   cfg.Climate,
		clock:     cfg.Clock,
		staleness: cfg.StalenessWindow,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		validate:  validator.New(),
	}
}

// CacheWeatherData stores r as the most recent observation.
func (e *Engine) CacheWeatherData(r types.WeatherReading) error {
	if err := e.validate.Struct(r); err != nil {
		return types.NewAppError(types.ErrCodeValidationPayload, "invalid weather reading", err)
	}
	stored := r
	e.cache.Store(&stored)
	if e.recorder != nil {
		e.recorder.MarkSynced(e.clock.Now())
	}
	e.logger.Debug("weather reading cached", "observed_at", r.ObservedAt, "rain_probability", r.RainProbability)
	return nil
}

// Cached returns the cached reading, if any.
func (e *Engine) Cached() (types.WeatherReading, bool) {
	r := e.cache.Load()
	if r == nil {
		return types.WeatherReading{}, false
	}
	return *r, true
}

// GetWeatherData resolves an advisory. A supplied live reading wins, then a
// cached reading within the staleness window, then the seasonal normal for
// the current month. It never returns nil and never mutates the cache.
func (e *Engine) GetWeatherData(live *types.WeatherReading) *Advisory {
	now := e.clock.Now()
	season := e.climate.SeasonalClimate(int(now.Month()))

	if live != nil {
		return e.advisory(types.WeatherLive, *live, now, season)
	}
	if cached := e.cache.Load(); cached != nil {
		if now.Sub(cached.ObservedAt) <= e.staleness {
			return e.advisory(types.WeatherCached, *cached, now, season)
		}
	}

	reading := types.WeatherReading{
		TemperatureC:    season.TemperatureC,
		RainfallMM:      season.RainMM,
		RainProbability: season.RainProbability,
		ObservedAt:      now,
	}
	return e.advisory(types.WeatherSeasonal, reading, now, season)
}

func (e *Engine) advisory(source types.WeatherSource, r types.WeatherReading, now time.Time, season knowledge.SeasonalClimate) *Advisory {
	age := now.Sub(r.ObservedAt)
	if age < 0 {
		age = 0
	}
	a := &Advisory{
		Source:        source,
		Reading:       r,
		AgeSeconds:    int64(age / time.Second),
		WeatherFactor: Factor(r),
		RainExpected:  r.IsRaining || r.RainProbability >= RainExpectedProbability,
		Season:        season.SeasonName,
	}
	a.Advice = advice(a)
	return a
}

// Factor dampens irrigation depth by the chance of rain. It depends only on
// the reading, never on which tier produced it.
func Factor(r types.WeatherReading) float64 {
	p := r.RainProbability
	if r.IsRaining {
		p = 1
	}
	p = math.Min(math.Max(p, 0), 1)
	return math.Round((1-0.5*p)*100) / 100
}

func advice(a *Advisory) types.Bilingual {
	pct := math.Round(a.Reading.RainProbability * 100)
	var b types.Bilingual
	switch {
	case a.Reading.IsRaining:
		b = types.Bilingual{
			EN: "It is raining now. Postpone irrigation and spraying.",
			HI: "अभी बारिश हो रही है। सिंचाई और छिड़काव टाल दें।",
		}
	case a.RainExpected:
		b = types.Bilingual{
			EN: fmt.Sprintf("Rain is likely (%.0f%% chance). Reduce irrigation and avoid spraying.", pct),
			HI: fmt.Sprintf("बारिश की संभावना %.0f%% है। सिंचाई कम करें और छिड़काव न करें।", pct),
		}
	default:
		b = types.Bilingual{
			EN: fmt.Sprintf("Dry conditions expected (%.0f%% chance of rain), around %.0f°C. Plan irrigation as usual.", pct, a.Reading.TemperatureC),
			HI: fmt.Sprintf("मौसम शुष्क रहने की संभावना (बारिश %.0f%%), तापमान लगभग %.0f°C। सिंचाई सामान्य रूप से करें।", pct, a.Reading.TemperatureC),
		}
	}
	switch a.Source {
	case types.WeatherCached:
		b.EN += fmt.Sprintf(" Based on data from %s ago.", time.Duration(a.AgeSeconds)*time.Second)
		b.HI += " यह जानकारी पिछले अपडेट पर आधारित है।"
	case types.WeatherSeasonal:
		b.EN += fmt.Sprintf(" No recent data, this is the usual pattern for %s.", a.Season.EN)
		b.HI += fmt.Sprintf(" हाल का डेटा नहीं है, यह %s मौसम का सामान्य अनुमान है।", a.Season.HI)
	}
	return b
}
