package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"

	"krishi/internal/config"
	"krishi/internal/core"
	"krishi/internal/types"
)

var julyMorning = time.Date(2025, time.July, 15, 7, 0, 0, 0, time.UTC)

// buildTestApp loads configuration from a local environment and wires an app
// with a fixed clock and a private metrics registry.
func buildTestApp(t *testing.T) *app {
	t.Helper()
	setTestEnv(t)

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(cfg, logger, prometheus.NewRegistry(), types.FixedClock{T: julyMorning})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return a
}

func serveOnce(t *testing.T, srv *core.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestApp_ServesAdvisoriesWithoutExternalServices(t *testing.T) {
	a := buildTestApp(t)
	srv, err := a.newServer()
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	for _, path := range []string{
		"/health",
		"/v1/advisories/irrigation",
		"/v1/advisories/fertilizer",
		"/v1/advisories/weather",
		"/v1/sensors/current",
		"/v1/farm",
		"/v1/sync/status",
	} {
		rec := serveOnce(t, srv, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: got status %d; body: %s", path, rec.Code, rec.Body.String())
		}
	}

	rec := serveOnce(t, srv, http.MethodPost, "/v1/voice/query", `{"text":"paani dena hai kya"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/voice/query: got status %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data types.VoiceResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode voice response: %v", err)
	}
	if resp.Data.Intent != types.IntentIrrigation {
		t.Errorf("intent: got %q, want %q", resp.Data.Intent, types.IntentIrrigation)
	}

	rec = serveOnce(t, srv, http.MethodPost, "/v1/advisories/image", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("POST /v1/advisories/image without vision endpoint: got status %d, want 502", rec.Code)
	}

	rec = serveOnce(t, srv, http.MethodGet, "/v1/devices/esp-1/readings", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("GET readings without archive: got status %d, want 500", rec.Code)
	}

	rec = serveOnce(t, srv, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "krishi_http_requests_total") {
		t.Errorf("/metrics does not expose request counter")
	}
}

type fakeArchive struct {
	schemaErr error
	latest    []types.SensorReading
	inserted  int
}

func (f *fakeArchive) EnsureSchema(context.Context) error { return f.schemaErr }

func (f *fakeArchive) LatestPerDevice(context.Context) ([]types.SensorReading, error) {
	return f.latest, nil
}

func (f *fakeArchive) InsertBatch(_ context.Context, readings []types.SensorReading) (int, error) {
	f.inserted += len(readings)
	return len(readings), nil
}

func (f *fakeArchive) ListRecent(_ context.Context, deviceID string, _ int) ([]types.SensorReading, error) {
	var out []types.SensorReading
	for _, r := range f.latest {
		if r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestApp_UseArchive(t *testing.T) {
	a := buildTestApp(t)
	archive := &fakeArchive{latest: []types.SensorReading{{
		DeviceID:     "esp-1",
		MoisturePct:  27,
		TemperatureC: 30,
		Timestamp:    julyMorning.Add(-time.Hour),
	}}}

	pingErr := errors.New("connection refused")
	if err := a.useArchive(context.Background(), archive, func(context.Context) error { return pingErr }); err != nil {
		t.Fatalf("useArchive: %v", err)
	}
	if a.worker == nil {
		t.Fatal("sync worker was not created")
	}

	got := a.sensors.GetSensorData()
	if got.Source != types.SourceCached || got.MoisturePct != 27 {
		t.Errorf("GetSensorData after warm: got source=%s moisture=%v", got.Source, got.MoisturePct)
	}

	srv, err := a.newServer()
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	rec := serveOnce(t, srv, http.MethodGet, "/v1/devices/esp-1/readings", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET readings: got status %d; body: %s", rec.Code, rec.Body.String())
	}

	rec = serveOnce(t, srv, http.MethodGet, "/health", "")
	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("health with failing database probe: got %q, want degraded", health.Status)
	}
}

func TestApp_UseArchiveSchemaFailure(t *testing.T) {
	a := buildTestApp(t)
	err := a.useArchive(context.Background(), &fakeArchive{schemaErr: errors.New("permission denied")}, nil)
	if err == nil {
		t.Fatal("useArchive: expected error")
	}
	if a.worker != nil {
		t.Error("worker must not be created when the schema cannot be prepared")
	}
}

type doneToken struct{ done chan struct{} }

func newDoneToken() *doneToken {
	t := &doneToken{done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return nil }

type recordingBroker struct {
	topics []string
}

func (b *recordingBroker) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token { return newDoneToken() }
func (b *recordingBroker) Unsubscribe(...string) mqtt.Token                       { return newDoneToken() }

func (b *recordingBroker) Publish(topic string, _ byte, _ bool, _ interface{}) mqtt.Token {
	b.topics = append(b.topics, topic)
	return newDoneToken()
}

func TestApp_UseBrokerRoutesCommands(t *testing.T) {
	a := buildTestApp(t)

	if err := a.publisher.PublishCommand(context.Background(), types.DeviceCommand{DeviceID: "esp-1"}); err == nil {
		t.Fatal("PublishCommand without a bus: expected error")
	}

	broker := &recordingBroker{}
	if err := a.useBroker(broker, func() bool { return true }); err != nil {
		t.Fatalf("useBroker: %v", err)
	}
	if _, err := a.sensors.AddConnectedDevice("esp-1"); err != nil {
		t.Fatalf("AddConnectedDevice: %v", err)
	}
	if _, err := a.sensors.SendCommandToESP32(context.Background(), "esp-1", "read_now", nil); err != nil {
		t.Fatalf("SendCommandToESP32: %v", err)
	}
	if len(broker.topics) != 1 || broker.topics[0] != "krishi/devices/esp-1/commands" {
		t.Errorf("published topics: got %v", broker.topics)
	}
}

func TestFarmFromConfig(t *testing.T) {
	fc, err := farmFromConfig(config.FarmConfig{Crop: "rice", Soil: "clay", PlotSizeM2: 100}, julyMorning)
	if err != nil {
		t.Fatalf("farmFromConfig: %v", err)
	}
	if want := time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC); !fc.SowingDate.Equal(want) {
		t.Errorf("default sowing date: got %v, want %v", fc.SowingDate, want)
	}

	fc, err = farmFromConfig(config.FarmConfig{Crop: "rice", Soil: "clay", SowingDate: "2025-06-01", PlotSizeM2: 100}, julyMorning)
	if err != nil {
		t.Fatalf("farmFromConfig: %v", err)
	}
	if got := fc.DaysSinceSowing(julyMorning); got != 44 {
		t.Errorf("days since sowing: got %d, want 44", got)
	}

	if _, err := farmFromConfig(config.FarmConfig{SowingDate: "15/07/2025"}, julyMorning); err == nil {
		t.Error("farmFromConfig: expected error for malformed date")
	}
}

// TestNewLogger verifies that the logger factory handles various log levels.
func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			if newLogger(level) == nil {
				t.Fatalf("newLogger(%q) returned nil", level)
			}
		})
	}
}

// setTestEnv sets the minimal environment for config.LoadConfig in local mode.
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MQTT_BROKER_URL", "")
	t.Setenv("VISION_ENDPOINT", "")
	t.Setenv("DEFAULT_CROP", "wheat")
	t.Setenv("DEFAULT_SOIL", "loamy")
	t.Setenv("DEFAULT_SOWING_DATE", "2025-05-06")
}
