package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"krishi/internal/core"
	"krishi/internal/farm"
	"krishi/internal/fertilizer"
	"krishi/internal/health"
	"krishi/internal/irrigation"
	"krishi/internal/knowledge"
	"krishi/internal/sensors"
	"krishi/internal/types"
	"krishi/internal/voice"
	"krishi/internal/weather"
)

var julyMorning = time.Date(2025, time.July, 15, 7, 0, 0, 0, time.UTC)

type envelope struct {
	Data  json.RawMessage   `json:"data"`
	Meta  *core.Meta        `json:"meta"`
	Error *core.ErrorDetail `json:"error"`
}

type recordingPublisher struct {
	mu   sync.Mutex
	cmds []types.DeviceCommand
}

func (p *recordingPublisher) PublishCommand(_ context.Context, cmd types.DeviceCommand) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cmds = append(p.cmds, cmd)
	return nil
}

type testApp struct {
	router    chi.Router
	sensors   *sensors.Service
	weather   *weather.Engine
	farm      *farm.Store
	publisher *recordingPublisher
}

// newTestApp wires real engines behind a router laid out like the API server.
func newTestApp(t *testing.T, archive ReadingArchive, vision ImageDiagnoser) *testApp {
	t.Helper()
	kb, err := knowledge.Default()
	require.NoError(t, err)

	clock := types.FixedClock{T: julyMorning}
	pub := &recordingPublisher{}
	sensorSvc := sensors.NewService(sensors.Config{Clock: clock, Climate: kb, Publisher: pub})
	weatherEng := weather.NewEngine(weather.Config{Climate: kb, Clock: clock})
	store, err := farm.NewStore(kb, clock, types.FarmContext{
		Crop:       types.CropWheat,
		Soil:       types.SoilLoamy,
		SowingDate: julyMorning.AddDate(0, 0, -70),
		PlotSizeM2: 4047,
	})
	require.NoError(t, err)

	irr := irrigation.NewEngine(kb, irrigation.DefaultPolicy)
	fert := fertilizer.NewEngine(kb)
	hlth := health.NewEngine(kb)
	router := voice.NewRouter(voice.Config{
		Intents:    kb,
		Irrigation: irr,
		Fertilizer: fert,
		Health:     hlth,
		Weather:    weatherEng,
		Sensors:    sensorSvc,
		Clock:      clock,
	})

	val := core.NewValidator(nil)
	advisories := NewAdvisoryHandler(AdvisoryDeps{
		Irrigation: irr,
		Fertilizer: fert,
		Health:     hlth,
		Weather:    weatherEng,
		Sensors:    sensorSvc,
		Farm:       store,
		Clock:      clock,
	}, val, nil)

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Route("/advisories", func(r chi.Router) {
			advisories.RegisterRoutes(r)
			if vision != nil {
				NewVisionHandler(vision, store, nil).RegisterRoutes(r)
			}
		})
		r.Route("/weather", NewWeatherHandler(weatherEng, val, nil).RegisterRoutes)
		r.Route("/farm", NewFarmHandler(store, val, nil).RegisterRoutes)
		r.Route("/voice", NewVoiceHandler(router, store, val, nil).RegisterRoutes)
		NewSensorHandler(sensorSvc, archive, val, nil).RegisterRoutes(r)
	})

	return &testApp{router: r, sensors: sensorSvc, weather: weatherEng, farm: store, publisher: pub}
}

func (a *testApp) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func ptr(v float64) *float64 { return &v }
