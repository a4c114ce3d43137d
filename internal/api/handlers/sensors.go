package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"krishi/internal/core"
	"krishi/internal/sensors"
	"krishi/internal/types"
)

const maxTelemetryBytes = 4 << 10

// SensorService is the sensor service surface used over HTTP.
type SensorService interface {
	GetSensorData() types.SensorReading
	OnESP32Message(deviceID string, payload types.DevicePayload) (bool, error)
	SendCommandToESP32(ctx context.Context, deviceID, command string, params map[string]any) (string, error)
	AddConnectedDevice(deviceID string) (types.DeviceInfo, error)
	UpdateDeviceStatus(deviceID string, status types.DeviceStatus) error
	RemoveDevice(deviceID string) error
	GetDevices() []types.DeviceInfo
	GetDevice(deviceID string) (types.DeviceInfo, error)
	GetSyncStatus() types.SyncStatus
}

// ReadingArchive lists archived readings. It is optional.
type ReadingArchive interface {
	ListRecent(ctx context.Context, deviceID string, limit int) ([]types.SensorReading, error)
}

// SensorHandler serves the sensor, device and sync endpoints.
type SensorHandler struct {
	sensors   SensorService
	archive   ReadingArchive
	validator *core.Validator
	logger    *slog.Logger
}

// NewSensorHandler creates a SensorHandler. archive may be nil when no
// database is configured.
func NewSensorHandler(svc SensorService, archive ReadingArchive, val *core.Validator, logger *slog.Logger) *SensorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SensorHandler{sensors: svc, archive: archive, validator: val, logger: logger}
}

// RegisterRoutes mounts the endpoints under /v1.
func (h *SensorHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sensors/current", h.HandleCurrent)
	r.Get("/sync/status", h.HandleSyncStatus)

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", h.HandleListDevices)
		r.Post("/", h.HandleRegisterDevice)
		r.Route("/{deviceID}", func(r chi.Router) {
			r.Get("/", h.HandleGetDevice)
			r.Delete("/", h.HandleRemoveDevice)
			r.Put("/status", h.HandleUpdateStatus)
			r.Post("/telemetry", h.HandleTelemetry)
			r.Post("/commands", h.HandleCommand)
			r.Get("/readings", h.HandleReadings)
		})
	})
}

// HandleCurrent returns the best available reading with its provenance.
func (h *SensorHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	reading := h.sensors.GetSensorData()
	core.OK(w, r, reading, provenanceNotes(reading.Source, "")...)
}

// HandleSyncStatus reports archive bookkeeping.
func (h *SensorHandler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	core.OK(w, r, h.sensors.GetSyncStatus())
}

// HandleListDevices lists registered devices.
func (h *SensorHandler) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	core.OK(w, r, h.sensors.GetDevices())
}

type registerDeviceRequest struct {
	DeviceID string `json:"device_id" validate:"required,max=64"`
}

// HandleRegisterDevice registers a device or marks it connected again.
func (h *SensorHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req, types.ErrCodeValidationDeviceID); err != nil {
		core.Error(w, r, err)
		return
	}
	info, err := h.sensors.AddConnectedDevice(req.DeviceID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: info})
}

// HandleGetDevice returns one device with its effective status.
func (h *SensorHandler) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	info, err := h.sensors.GetDevice(chi.URLParam(r, "deviceID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, info)
}

// HandleRemoveDevice unregisters a device.
func (h *SensorHandler) HandleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.sensors.RemoveDevice(chi.URLParam(r, "deviceID")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateStatusRequest struct {
	Status types.DeviceStatus `json:"status" validate:"required"`
}

// HandleUpdateStatus sets a device's status.
func (h *SensorHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req, types.ErrCodeValidationDeviceStatus); err != nil {
		core.Error(w, r, err)
		return
	}
	deviceID := chi.URLParam(r, "deviceID")
	if err := h.sensors.UpdateDeviceStatus(deviceID, req.Status); err != nil {
		core.Error(w, r, err)
		return
	}
	info, err := h.sensors.GetDevice(deviceID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, info)
}

type telemetryResult struct {
	Accepted bool `json:"accepted"`
}

// HandleTelemetry ingests a device message posted over HTTP, for devices
// that cannot reach the MQTT broker. Unknown JSON fields are ignored.
// Replays are acknowledged with 200 and accepted=false.
func (h *SensorHandler) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTelemetryBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationPayload, "payload too large", err))
			return
		}
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationPayload, "could not read payload", err))
		return
	}
	payload, err := sensors.DecodePayload(body)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	accepted, err := h.sensors.OnESP32Message(chi.URLParam(r, "deviceID"), payload)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	status := http.StatusOK
	if accepted {
		status = http.StatusAccepted
	}
	core.JSON(w, r, status, core.APIResponse{Data: telemetryResult{Accepted: accepted}})
}

type commandRequest struct {
	Command string         `json:"command" validate:"required"`
	Params  map[string]any `json:"params"`
}

type commandResult struct {
	CommandID string `json:"command_id"`
}

// HandleCommand publishes a command to a device. Delivery is not confirmed.
func (h *SensorHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req, types.ErrCodeValidationCommand); err != nil {
		core.Error(w, r, err)
		return
	}
	id, err := h.sensors.SendCommandToESP32(r.Context(), chi.URLParam(r, "deviceID"), req.Command, req.Params)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: commandResult{CommandID: id}})
}

// HandleReadings lists archived readings for a device, newest first.
func (h *SensorHandler) HandleReadings(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalDB, "reading archive is not configured", nil))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationPayload,
				"limit must be between 1 and 500", err, map[string]any{"limit": raw}))
			return
		}
		limit = n
	}
	readings, err := h.archive.ListRecent(r.Context(), chi.URLParam(r, "deviceID"), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, readings)
}
