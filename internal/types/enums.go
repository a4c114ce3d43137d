package types

// CropType identifies a crop known to the knowledge base.
type CropType string

const (
	CropWheat  CropType = "wheat"
	CropRice   CropType = "rice"
	CropCotton CropType = "cotton"
	CropMaize  CropType = "maize"
)

// SoilType identifies a soil profile known to the knowledge base.
type SoilType string

const (
	SoilSandy SoilType = "sandy"
	SoilLoamy SoilType = "loamy"
	SoilClay  SoilType = "clay"
	SoilBlack SoilType = "black"
)

// InfiltrationClass describes how quickly water enters a soil.
type InfiltrationClass string

const (
	InfiltrationHigh   InfiltrationClass = "high"
	InfiltrationMedium InfiltrationClass = "medium"
	InfiltrationLow    InfiltrationClass = "low"
)

// IrrigationStatus is the outcome of an irrigation decision.
type IrrigationStatus string

const (
	IrrigationNormal   IrrigationStatus = "normal"
	IrrigationIrrigate IrrigationStatus = "irrigate"
	IrrigationStop     IrrigationStatus = "stop"
	IrrigationSkip     IrrigationStatus = "skip"
)

// ReadingSource tags where a sensor reading was resolved from.
type ReadingSource string

const (
	SourceLive   ReadingSource = "live"
	SourceCached ReadingSource = "cached"
	SourceDemo   ReadingSource = "demo"
)

// DeviceStatus is the connection state of a field device.
type DeviceStatus string

const (
	DeviceConnected    DeviceStatus = "connected"
	DeviceDisconnected DeviceStatus = "disconnected"
	DeviceError        DeviceStatus = "error"
)

// Valid reports whether s is a known device status.
func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceConnected, DeviceDisconnected, DeviceError:
		return true
	}
	return false
}

// WeatherSource tags which tier of the weather cascade produced an advisory.
type WeatherSource string

const (
	WeatherLive     WeatherSource = "live"
	WeatherCached   WeatherSource = "cached"
	WeatherSeasonal WeatherSource = "seasonal"
)

// FertilizerAction is the outcome of a fertilizer calculation.
type FertilizerAction string

const (
	FertilizerApply    FertilizerAction = "apply"
	FertilizerUpcoming FertilizerAction = "upcoming"
	FertilizerNone     FertilizerAction = "none"
)

// Intent is the classified purpose of a free-text query.
type Intent string

const (
	IntentIrrigation Intent = "irrigation"
	IntentFertilizer Intent = "fertilizer"
	IntentHealth     Intent = "health"
	IntentWeather    Intent = "weather"
	IntentGeneral    Intent = "general"
)

// IntentPriority lists intents from highest to lowest tie-break priority.
var IntentPriority = []Intent{
	IntentIrrigation,
	IntentFertilizer,
	IntentHealth,
	IntentWeather,
	IntentGeneral,
}

// QuickCommand is a pre-defined action that bypasses text classification.
type QuickCommand string

const (
	QuickIrrigationCheck QuickCommand = "irrigation_check"
	QuickFertilizerPlan  QuickCommand = "fertilizer_plan"
	QuickHealthCheck     QuickCommand = "health_check"
	QuickWeatherUpdate   QuickCommand = "weather_update"
)
