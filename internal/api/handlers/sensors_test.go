package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"krishi/internal/types"
)

type mockArchive struct {
	mock.Mock
}

func (m *mockArchive) ListRecent(ctx context.Context, deviceID string, limit int) ([]types.SensorReading, error) {
	args := m.Called(ctx, deviceID, limit)
	readings, _ := args.Get(0).([]types.SensorReading)
	return readings, args.Error(1)
}

const telemetryBody = `{"device_id":"esp-7","soil_moisture":31.5,"temperature":27,"firmware":"1.2.0","timestamp":"2025-07-15T06:55:00Z"}`

func TestSensorHandler_TelemetryIsIdempotent(t *testing.T) {
	app := newTestApp(t, nil, nil)

	rec, env := app.do(t, http.MethodPost, "/v1/devices/esp-7/telemetry", telemetryBody)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, decodeData[telemetryResult](t, env).Accepted)

	rec, env = app.do(t, http.MethodPost, "/v1/devices/esp-7/telemetry", telemetryBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeData[telemetryResult](t, env).Accepted)

	rec, env = app.do(t, http.MethodGet, "/v1/sensors/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reading := decodeData[types.SensorReading](t, env)
	assert.Equal(t, types.SourceLive, reading.Source)
	assert.InDelta(t, 31.5, reading.MoisturePct, 0.001)
	assert.Nil(t, env.Meta)

	rec, env = app.do(t, http.MethodGet, "/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeData[types.SyncStatus](t, env).PendingCount)
}

func TestSensorHandler_TelemetryRejected(t *testing.T) {
	app := newTestApp(t, nil, nil)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode types.ErrorCode
	}{
		{"malformed", "/v1/devices/esp-7/telemetry", `{"soil_moisture":`, types.ErrCodeValidationPayload},
		{"moisture out of range", "/v1/devices/esp-7/telemetry",
			`{"device_id":"esp-7","soil_moisture":140,"temperature":27,"timestamp":"2025-07-15T06:55:00Z"}`,
			types.ErrCodeValidationMoisture},
		{"device mismatch", "/v1/devices/esp-8/telemetry", telemetryBody, types.ErrCodeValidationDeviceID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := app.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.wantCode), env.Error.Code)
		})
	}

	_, env := app.do(t, http.MethodGet, "/v1/sensors/current", nil)
	assert.Equal(t, types.SourceDemo, decodeData[types.SensorReading](t, env).Source)
	require.NotNil(t, env.Meta)
}

func TestSensorHandler_DeviceRegistry(t *testing.T) {
	app := newTestApp(t, nil, nil)

	rec, env := app.do(t, http.MethodPost, "/v1/devices", map[string]any{"device_id": "esp-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, types.DeviceConnected, decodeData[types.DeviceInfo](t, env).Status)

	rec, env = app.do(t, http.MethodGet, "/v1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]types.DeviceInfo](t, env), 1)

	rec, env = app.do(t, http.MethodPut, "/v1/devices/esp-1/status", map[string]any{"status": "error"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.DeviceError, decodeData[types.DeviceInfo](t, env).Status)

	rec, env = app.do(t, http.MethodPut, "/v1/devices/esp-1/status", map[string]any{"status": "asleep"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationDeviceStatus), env.Error.Code)

	rec, _ = app.do(t, http.MethodDelete, "/v1/devices/esp-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = app.do(t, http.MethodGet, "/v1/devices/esp-1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundDevice), env.Error.Code)
}

func TestSensorHandler_Command(t *testing.T) {
	app := newTestApp(t, nil, nil)

	rec, env := app.do(t, http.MethodPost, "/v1/devices/esp-1/commands", map[string]any{"command": "reboot"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundDevice), env.Error.Code)

	_, err := app.sensors.AddConnectedDevice("esp-1")
	require.NoError(t, err)

	rec, env = app.do(t, http.MethodPost, "/v1/devices/esp-1/commands", map[string]any{"command": "dance"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationCommand), env.Error.Code)

	rec, env = app.do(t, http.MethodPost, "/v1/devices/esp-1/commands",
		map[string]any{"command": "start_irrigation", "params": map[string]any{"duration_min": 20}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decodeData[commandResult](t, env).CommandID
	assert.NotEmpty(t, id)

	app.publisher.mu.Lock()
	defer app.publisher.mu.Unlock()
	require.Len(t, app.publisher.cmds, 1)
	assert.Equal(t, id, app.publisher.cmds[0].CommandID)
}

func TestSensorHandler_Readings(t *testing.T) {
	t.Run("no archive", func(t *testing.T) {
		app := newTestApp(t, nil, nil)
		rec, env := app.do(t, http.MethodGet, "/v1/devices/esp-1/readings", nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, string(types.ErrCodeInternalDB), env.Error.Code)
	})

	t.Run("lists archive", func(t *testing.T) {
		archive := &mockArchive{}
		archive.On("ListRecent", mock.Anything, "esp-1", 10).Return([]types.SensorReading{
			{DeviceID: "esp-1", MoisturePct: 22, Timestamp: julyMorning, Source: types.SourceLive},
		}, nil)
		app := newTestApp(t, archive, nil)

		rec, env := app.do(t, http.MethodGet, "/v1/devices/esp-1/readings?limit=10", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeData[[]types.SensorReading](t, env), 1)
		archive.AssertExpectations(t)
	})

	t.Run("bad limit", func(t *testing.T) {
		app := newTestApp(t, &mockArchive{}, nil)
		rec, _ := app.do(t, http.MethodGet, "/v1/devices/esp-1/readings?limit=0", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("archive failure", func(t *testing.T) {
		archive := &mockArchive{}
		archive.On("ListRecent", mock.Anything, "esp-1", 0).
			Return(nil, types.NewAppError(types.ErrCodeInternalDB, "query failed", errors.New("conn reset")))
		app := newTestApp(t, archive, nil)

		rec, env := app.do(t, http.MethodGet, "/v1/devices/esp-1/readings", nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, string(types.ErrCodeInternalDB), env.Error.Code)
	})
}
