// Package config defines the process configuration for the krishi advisory
// service. Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct defaults (Lowest)
//
// Thresholds that shape advisories (staleness windows, confidence floor,
// replenishment policy) live here so deployments can tune them without a
// rebuild.
package config

import (
	"time"

	"krishi/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"krishi"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server   ServerConfig
	Database DatabaseConfig
	MQTT     MQTTConfig
	Sensor   SensorConfig
	Weather  WeatherConfig
	Advisory AdvisoryConfig
	Vision   VisionConfig
	Sync     SyncConfig
	Farm     FarmConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings for the UI-facing API.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s" validate:"gt=0"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds the optional reading-archive connection. An empty URL
// disables archiving; readings stay queued in memory.
type DatabaseConfig struct {
	URL             SecretString  `envconfig:"DATABASE_URL"`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"4" validate:"gte=1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// MQTTConfig holds the device broker settings. An empty broker URL disables
// the MQTT transport; devices can still post over HTTP.
type MQTTConfig struct {
	BrokerURL      string        `envconfig:"MQTT_BROKER_URL" validate:"omitempty,url"`
	ClientID       string        `envconfig:"MQTT_CLIENT_ID" default:"krishi-advisor"`
	Username       string        `envconfig:"MQTT_USERNAME"`
	Password       SecretString  `envconfig:"MQTT_PASSWORD"`
	TelemetryTopic string        `envconfig:"MQTT_TELEMETRY_TOPIC" default:"krishi/devices/+/telemetry"`
	CommandPrefix  string        `envconfig:"MQTT_COMMAND_PREFIX" default:"krishi/devices"`
	ConnectTimeout time.Duration `envconfig:"MQTT_CONNECT_TIMEOUT" default:"10s"`
}

// SensorConfig holds the live/cached resolution windows.
type SensorConfig struct {
	LivenessWindow  time.Duration `envconfig:"SENSOR_LIVENESS_WINDOW" default:"5m" validate:"gt=0"`
	StalenessWindow time.Duration `envconfig:"SENSOR_STALENESS_WINDOW" default:"6h" validate:"gtfield=LivenessWindow"`
	MaxPendingSync  int           `envconfig:"SENSOR_MAX_PENDING_SYNC" default:"500" validate:"gte=1"`
}

// WeatherConfig holds the weather cache policy.
type WeatherConfig struct {
	StalenessWindow time.Duration `envconfig:"WEATHER_STALENESS_WINDOW" default:"24h" validate:"gt=0"`
}

// AdvisoryConfig holds engine and router policy values.
type AdvisoryConfig struct {
	MinIntentConfidence float64 `envconfig:"MIN_INTENT_CONFIDENCE" default:"0.3" validate:"gte=0,lte=1"`
	ReplenishFraction   float64 `envconfig:"IRRIGATION_REPLENISH_FRACTION" default:"0.8" validate:"gt=0,lte=1"`
	ETcCarryDays        float64 `envconfig:"IRRIGATION_ETC_CARRY_DAYS" default:"1" validate:"gte=0"`
}

// VisionConfig holds the optional image-diagnosis inference endpoint.
type VisionConfig struct {
	Endpoint string        `envconfig:"VISION_ENDPOINT" validate:"omitempty,url"`
	APIKey   SecretString  `envconfig:"VISION_API_KEY"`
	Timeout  time.Duration `envconfig:"VISION_TIMEOUT" default:"15s"`
}

// SyncConfig holds the archive worker schedule.
type SyncConfig struct {
	Interval  time.Duration `envconfig:"SYNC_INTERVAL" default:"1m" validate:"gt=0"`
	BatchSize int           `envconfig:"SYNC_BATCH_SIZE" default:"100" validate:"gte=1"`
}

// FarmConfig seeds the farm context when the UI has not set one.
type FarmConfig struct {
	Crop       string  `envconfig:"DEFAULT_CROP" default:"wheat" validate:"required"`
	Soil       string  `envconfig:"DEFAULT_SOIL" default:"loamy" validate:"required"`
	SowingDate string  `envconfig:"DEFAULT_SOWING_DATE" validate:"omitempty,datetime=2006-01-02"`
	PlotSizeM2 float64 `envconfig:"DEFAULT_PLOT_SIZE_M2" default:"4047" validate:"gt=0"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a variable required by the environment was not set.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
