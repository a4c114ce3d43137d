package types

import (
	"math"
	"time"
)

// Bilingual carries the same advisory text in English and Hindi.
type Bilingual struct {
	EN string `json:"en" yaml:"en"`
	HI string `json:"hi" yaml:"hi"`
}

// Joined returns both languages in a single string suitable for speech output.
func (b Bilingual) Joined() string {
	switch {
	case b.HI == "":
		return b.EN
	case b.EN == "":
		return b.HI
	}
	return b.EN + " | " + b.HI
}

// SensorReading is an immutable snapshot of field conditions. It is owned by
// the sensor service; engines receive copies only.
type SensorReading struct {
	DeviceID     string        `json:"device_id,omitempty"`
	MoisturePct  float64       `json:"soil_moisture_pct"`
	TemperatureC float64       `json:"temperature_c"`
	HumidityPct  *float64      `json:"humidity_pct,omitempty"`
	BatteryPct   *float64      `json:"battery_pct,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	Source       ReadingSource `json:"source"`
}

// DevicePayload is the inbound message schema published by field devices.
// Ranges are enforced on ingestion; out-of-range values are rejected because
// they indicate a hardware fault.
type DevicePayload struct {
	DeviceID     string    `json:"device_id" validate:"required,max=64"`
	MoisturePct  *float64  `json:"soil_moisture" validate:"required,gte=0,lte=100"`
	TemperatureC *float64  `json:"temperature" validate:"required,gte=-20,lte=60"`
	HumidityPct  *float64  `json:"humidity,omitempty" validate:"omitempty,gte=0,lte=100"`
	BatteryPct   *float64  `json:"battery,omitempty" validate:"omitempty,gte=0,lte=100"`
	Timestamp    time.Time `json:"timestamp" validate:"required"`
}

// DeviceCommand is the outbound command schema. Delivery is not acknowledged.
type DeviceCommand struct {
	CommandID string         `json:"command_id"`
	DeviceID  string         `json:"device_id" validate:"required,max=64"`
	Command   string         `json:"command" validate:"required,oneof=start_irrigation stop_irrigation read_now set_interval reboot"`
	Params    map[string]any `json:"params,omitempty"`
	IssuedAt  time.Time      `json:"issued_at"`
}

// DeviceInfo is a registry entry for a field device.
type DeviceInfo struct {
	DeviceID     string       `json:"device_id"`
	Status       DeviceStatus `json:"status"`
	LastSeen     time.Time    `json:"last_seen"`
	RegisteredAt time.Time    `json:"registered_at"`
}

// FarmContext describes the active plot. Engines read it; only the farm
// store's setter replaces it.
type FarmContext struct {
	Crop       CropType  `json:"crop" validate:"required"`
	Soil       SoilType  `json:"soil" validate:"required"`
	SowingDate time.Time `json:"sowing_date" validate:"required"`
	PlotSizeM2 float64   `json:"plot_size_m2" validate:"gt=0"`
}

// DaysSinceSowing returns whole days elapsed between the sowing date and now.
func (f FarmContext) DaysSinceSowing(now time.Time) int {
	return int(math.Floor(now.Sub(f.SowingDate).Hours() / 24))
}

// SyncStatus is bookkeeping for the reading archive. It is never consulted
// when resolving live, cached or demo data.
type SyncStatus struct {
	PendingCount int        `json:"pending_count"`
	LastSync     *time.Time `json:"last_sync,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// WeatherReading is an observation or cached copy of local weather.
type WeatherReading struct {
	TemperatureC    float64   `json:"temperature_c"`
	HumidityPct     float64   `json:"humidity_pct" validate:"gte=0,lte=100"`
	RainfallMM      float64   `json:"rainfall_mm" validate:"gte=0"`
	RainProbability float64   `json:"rain_probability" validate:"gte=0,lte=1"`
	IsRaining       bool      `json:"is_raining"`
	ObservedAt      time.Time `json:"observed_at" validate:"required"`
}

// VoiceCommand is the classified form of a transcribed query.
type VoiceCommand struct {
	Text       string             `json:"text"`
	Normalized string             `json:"normalized"`
	Intent     Intent             `json:"intent"`
	Confidence float64            `json:"confidence"`
	Scores     map[Intent]float64 `json:"scores,omitempty"`
}

// VoiceResponse is the single reply produced for one query.
type VoiceResponse struct {
	Intent     Intent    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Text       string    `json:"text"`
	Message    Bilingual `json:"message"`
	Action     string    `json:"action,omitempty"`
	Data       any       `json:"data,omitempty"`
}
