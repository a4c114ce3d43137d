// Package sensors owns the field reading cache and the device registry.
//
// State is held in an immutable snapshot that is replaced atomically on every
// write. Writers are serialised by a mutex; readers load the current snapshot
// without locking and always observe a consistent view.
package sensors

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"krishi/internal/knowledge"
	"krishi/internal/types"
)

// Resolution windows used when the configuration leaves them unset.
const (
	DefaultLivenessWindow  = 5 * time.Minute
	DefaultStalenessWindow = 6 * time.Hour
	DefaultMaxPending      = 500

	// MaxClockSkew bounds how far in the future a device timestamp may be.
	MaxClockSkew = 10 * time.Minute
)

// Message outcomes reported to the Observer.
const (
	OutcomeAccepted = "accepted"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
)

// CommandPublisher delivers a command to a device without waiting for an
// acknowledgement.
type CommandPublisher interface {
	PublishCommand(ctx context.Context, cmd types.DeviceCommand) error
}

// Climatology supplies the monthly normals behind demo readings.
type Climatology interface {
	SeasonalClimate(month int) knowledge.SeasonalClimate
}

// Observer receives counters for ingestion and resolution. Implementations
// must be safe for concurrent use.
type Observer interface {
	ObserveDeviceMessage(outcome string)
	ObserveReadingSource(source types.ReadingSource)
}

// PendingReading is a reading waiting to be archived. Seq increases
// monotonically and identifies the entry for DrainPending.
type PendingReading struct {
	Seq     uint64              `json:"seq"`
	Reading types.SensorReading `json:"reading"`
}

// Config wires a Service.
type Config struct {
	Clock           types.Clock
	LivenessWindow  time.Duration
	StalenessWindow time.Duration
	MaxPending      int
	Climate         Climatology
	Publisher       CommandPublisher
	Observer        Observer
	Logger          *slog.Logger
}

type device struct {
	info types.DeviceInfo
	// lastReadingAt is the newest payload timestamp accepted from the device.
	lastReadingAt time.Time
}

type snapshot struct {
	reading  *types.SensorReading
	devices  map[string]device
	pending  []PendingReading
	nextSeq  uint64
	lastSync *time.Time
	lastErr  string
}

// clone returns a copy that can be modified without affecting readers of s.
func (s *snapshot) clone() *snapshot {
	c := *s
	c.devices = make(map[string]device, len(s.devices))
	for k, v := range s.devices {
		c.devices[k] = v
	}
	c.pending = append([]PendingReading(nil), s.pending...)
	return &c
}

// Service is the single owner of sensor state.
type Service struct {
	clock      types.Clock
	liveness   time.Duration
	staleness  time.Duration
	maxPending int
	climate    Climatology
	publisher  CommandPublisher
	observer   Observer
	logger     *slog.Logger
	validate   *validator.Validate

	mu    sync.Mutex
	state atomic.Pointer[snapshot]
}

// NewService builds a Service with an empty cache and registry.
func NewService(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.LivenessWindow <= 0 {
		cfg.LivenessWindow = DefaultLivenessWindow
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = DefaultStalenessWindow
	}
	if cfg.StalenessWindow < cfg.LivenessWindow {
		cfg.StalenessWindow = cfg.LivenessWindow
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Service{
		clock:      cfg.Clock,
		liveness:   cfg.LivenessWindow,
		staleness:  cfg.StalenessWindow,
		maxPending: cfg.MaxPending,
		climate:    cfg.Climate,
		publisher:  cfg.Publisher,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
		validate:   validator.New(),
	}
	s.state.Store(&snapshot{devices: map[string]device{}, nextSeq: 1})
	return s
}

// update applies fn to a private copy of the state and publishes it. If fn
// returns false the copy is discarded.
func (s *Service) update(fn func(next *snapshot) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.Load().clone()
	if fn(next) {
		s.state.Store(next)
	}
}

// GetSensorData resolves the current reading. It is live when the producing
// device is registered, not in error and the reading is within the liveness
// window; cached while within the staleness window; otherwise a demo reading
// derived from the seasonal normal. It never returns an empty result.
func (s *Service) GetSensorData() types.SensorReading {
	now := s.clock.Now()
	st := s.state.Load()

	if r := st.reading; r != nil {
		age := now.Sub(r.Timestamp)
		if age <= s.liveness {
			if d, ok := st.devices[r.DeviceID]; ok && d.info.Status != types.DeviceError {
				out := *r
				out.Source = types.SourceLive
				s.observer.ObserveReadingSource(out.Source)
				return out
			}
		}
		if age <= s.staleness {
			out := *r
			out.Source = types.SourceCached
			s.observer.ObserveReadingSource(out.Source)
			return out
		}
	}

	out := s.demoReading(now)
	s.observer.ObserveReadingSource(out.Source)
	return out
}

func (s *Service) demoReading(now time.Time) types.SensorReading {
	r := types.SensorReading{
		MoisturePct:  40,
		TemperatureC: 25,
		Timestamp:    now,
		Source:       types.SourceDemo,
	}
	if s.climate != nil {
		c := s.climate.SeasonalClimate(int(now.Month()))
		r.MoisturePct = c.SoilMoisturePct
		r.TemperatureC = c.TemperatureC
	}
	return r
}

// OnESP32Message ingests one device payload. Out-of-range values are rejected
// with a validation error. A payload whose timestamp is not newer than the
// last one accepted from the same device is ignored and reported as not
// accepted, leaving state unchanged.
func (s *Service) OnESP32Message(deviceID string, payload types.DevicePayload) (bool, error) {
	if payload.DeviceID == "" {
		payload.DeviceID = deviceID
	}
	if err := s.validatePayload(deviceID, payload); err != nil {
		s.observer.ObserveDeviceMessage(OutcomeRejected)
		s.logger.Warn("device payload rejected", "device_id", deviceID, "error", err)
		return false, err
	}

	now := s.clock.Now()
	reading := types.SensorReading{
		DeviceID:     deviceID,
		MoisturePct:  *payload.MoisturePct,
		TemperatureC: *payload.TemperatureC,
		HumidityPct:  payload.HumidityPct,
		BatteryPct:   payload.BatteryPct,
		Timestamp:    payload.Timestamp.UTC(),
		Source:       types.SourceLive,
	}

	accepted := false
	s.update(func(next *snapshot) bool {
		d, known := next.devices[deviceID]
		if known && !reading.Timestamp.After(d.lastReadingAt) {
			return false
		}
		if !known {
			d.info = types.DeviceInfo{DeviceID: deviceID, RegisteredAt: now}
		}
		d.info.Status = types.DeviceConnected
		d.info.LastSeen = now
		d.lastReadingAt = reading.Timestamp
		next.devices[deviceID] = d

		if next.reading == nil || reading.Timestamp.After(next.reading.Timestamp) {
			r := reading
			next.reading = &r
		}

		next.pending = append(next.pending, PendingReading{Seq: next.nextSeq, Reading: reading})
		next.nextSeq++
		if over := len(next.pending) - s.maxPending; over > 0 {
			next.pending = next.pending[over:]
		}
		accepted = true
		return true
	})

	if !accepted {
		s.observer.ObserveDeviceMessage(OutcomeReplayed)
		s.logger.Debug("device payload ignored, timestamp not newer", "device_id", deviceID, "timestamp", reading.Timestamp)
		return false, nil
	}
	s.observer.ObserveDeviceMessage(OutcomeAccepted)
	return true, nil
}

// WarmCache seeds the cached reading from archived readings, keeping the
// newest. Warmed readings are not queued for sync and do not register devices.
func (s *Service) WarmCache(readings []types.SensorReading) {
	if len(readings) == 0 {
		return
	}
	newest := readings[0]
	for _, r := range readings[1:] {
		if r.Timestamp.After(newest.Timestamp) {
			newest = r
		}
	}
	s.update(func(next *snapshot) bool {
		if next.reading != nil && !newest.Timestamp.After(next.reading.Timestamp) {
			return false
		}
		r := newest
		r.Source = types.SourceCached
		next.reading = &r
		return true
	})
}

// SendCommandToESP32 publishes a command and returns its id. Delivery is not
// acknowledged; callers must not assume the command executed.
func (s *Service) SendCommandToESP32(ctx context.Context, deviceID, command string, params map[string]any) (string, error) {
	if _, ok := s.state.Load().devices[deviceID]; !ok {
		return "", types.NewAppErrorWithDetails(types.ErrCodeNotFoundDevice, "device is not registered", nil,
			map[string]any{"device_id": deviceID})
	}
	cmd := types.DeviceCommand{
		CommandID: uuid.NewString(),
		DeviceID:  deviceID,
		Command:   command,
		Params:    params,
		IssuedAt:  s.clock.Now(),
	}
	if err := s.validate.Struct(cmd); err != nil {
		return "", types.NewAppErrorWithDetails(types.ErrCodeValidationCommand, "unsupported device command", err,
			map[string]any{"command": command})
	}
	if s.publisher == nil {
		return "", types.NewAppError(types.ErrCodeInternalTransport, "no device transport configured", nil)
	}
	if err := s.publisher.PublishCommand(ctx, cmd); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalTransport, "failed to publish device command", err)
	}
	s.logger.InfoContext(ctx, "device command sent", "device_id", deviceID, "command", command, "command_id", cmd.CommandID)
	return cmd.CommandID, nil
}

// AddConnectedDevice registers a device, or marks an existing one connected.
func (s *Service) AddConnectedDevice(deviceID string) (types.DeviceInfo, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return types.DeviceInfo{}, err
	}
	now := s.clock.Now()
	var info types.DeviceInfo
	s.update(func(next *snapshot) bool {
		d, ok := next.devices[deviceID]
		if !ok {
			d.info = types.DeviceInfo{DeviceID: deviceID, RegisteredAt: now}
		}
		d.info.Status = types.DeviceConnected
		d.info.LastSeen = now
		next.devices[deviceID] = d
		info = d.info
		return true
	})
	return info, nil
}

// UpdateDeviceStatus sets the reported status of a registered device.
func (s *Service) UpdateDeviceStatus(deviceID string, status types.DeviceStatus) error {
	if !status.Valid() {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationDeviceStatus, "unknown device status", nil,
			map[string]any{"status": string(status)})
	}
	found := false
	s.update(func(next *snapshot) bool {
		d, ok := next.devices[deviceID]
		if !ok {
			return false
		}
		found = true
		d.info.Status = status
		if status == types.DeviceConnected {
			d.info.LastSeen = s.clock.Now()
		}
		next.devices[deviceID] = d
		return true
	})
	if !found {
		return deviceNotFound(deviceID)
	}
	return nil
}

// RemoveDevice deletes a device from the registry. The cached reading is kept.
func (s *Service) RemoveDevice(deviceID string) error {
	found := false
	s.update(func(next *snapshot) bool {
		if _, ok := next.devices[deviceID]; !ok {
			return false
		}
		found = true
		delete(next.devices, deviceID)
		return true
	})
	if !found {
		return deviceNotFound(deviceID)
	}
	return nil
}

// GetDevices lists registered devices sorted by id with their effective
// status.
func (s *Service) GetDevices() []types.DeviceInfo {
	now := s.clock.Now()
	st := s.state.Load()
	out := make([]types.DeviceInfo, 0, len(st.devices))
	for _, d := range st.devices {
		out = append(out, s.effective(d.info, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// GetDevice returns one device with its effective status.
func (s *Service) GetDevice(deviceID string) (types.DeviceInfo, error) {
	d, ok := s.state.Load().devices[deviceID]
	if !ok {
		return types.DeviceInfo{}, deviceNotFound(deviceID)
	}
	return s.effective(d.info, s.clock.Now()), nil
}

// effective reports a connected device as disconnected once nothing has been
// heard from it within the liveness window. Stored state is not modified.
func (s *Service) effective(info types.DeviceInfo, now time.Time) types.DeviceInfo {
	if info.Status == types.DeviceConnected && now.Sub(info.LastSeen) > s.liveness {
		info.Status = types.DeviceDisconnected
	}
	return info
}

// GetSyncStatus reports archive bookkeeping.
func (s *Service) GetSyncStatus() types.SyncStatus {
	st := s.state.Load()
	status := types.SyncStatus{PendingCount: len(st.pending), LastError: st.lastErr}
	if st.lastSync != nil {
		t := *st.lastSync
		status.LastSync = &t
	}
	return status
}

// UpdateSyncStatus overwrites the last sync time and last error. The pending
// count is always derived from the queue.
func (s *Service) UpdateSyncStatus(status types.SyncStatus) {
	s.update(func(next *snapshot) bool {
		next.lastSync = status.LastSync
		next.lastErr = status.LastError
		return true
	})
}

// MarkSynced records a successful sync at the given time and clears the last
// error.
func (s *Service) MarkSynced(at time.Time) {
	s.update(func(next *snapshot) bool {
		t := at
		next.lastSync = &t
		next.lastErr = ""
		return true
	})
}

// RecordSyncError stores err as the last sync error.
func (s *Service) RecordSyncError(err error) {
	if err == nil {
		return
	}
	s.update(func(next *snapshot) bool {
		next.lastErr = err.Error()
		return true
	})
}

// PendingReadings returns up to limit of the oldest readings awaiting sync.
func (s *Service) PendingReadings(limit int) []PendingReading {
	pending := s.state.Load().pending
	if limit <= 0 || limit > len(pending) {
		limit = len(pending)
	}
	out := make([]PendingReading, limit)
	copy(out, pending[:limit])
	return out
}

// DrainPending removes every pending reading with Seq <= throughSeq and
// returns how many were removed.
func (s *Service) DrainPending(throughSeq uint64) int {
	removed := 0
	s.update(func(next *snapshot) bool {
		i := sort.Search(len(next.pending), func(i int) bool { return next.pending[i].Seq > throughSeq })
		if i == 0 {
			return false
		}
		removed = i
		next.pending = next.pending[i:]
		return true
	})
	return removed
}

func deviceNotFound(deviceID string) error {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundDevice, "device is not registered", nil,
		map[string]any{"device_id": deviceID})
}

type nopObserver struct{}

func (nopObserver) ObserveDeviceMessage(string)              {}
func (nopObserver) ObserveReadingSource(types.ReadingSource) {}
