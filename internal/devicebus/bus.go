// Package devicebus connects field devices over MQTT. Telemetry messages are
// decoded and handed to the sensor service; commands are published without
// waiting for delivery.
package devicebus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"krishi/internal/config"
	"krishi/internal/sensors"
	"krishi/internal/types"
)

// Broker is the subset of mqtt.Client used by Bus.
type Broker interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Ingestor receives decoded device payloads.
type Ingestor interface {
	OnESP32Message(deviceID string, payload types.DevicePayload) (bool, error)
}

// Config wires a Bus.
type Config struct {
	TelemetryTopic string
	CommandPrefix  string
	Timeout        time.Duration
	Logger         *slog.Logger
}

// Bus bridges the broker and the sensor service.
type Bus struct {
	broker  Broker
	ingest  Ingestor
	topic   string
	prefix  string
	idIndex int
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a Bus. The telemetry topic must contain exactly one '+' level,
// which carries the device id.
func New(broker Broker, ingest Ingestor, cfg Config) (*Bus, error) {
	idIndex := -1
	for i, level := range strings.Split(cfg.TelemetryTopic, "/") {
		if level == "+" {
			if idIndex >= 0 {
				return nil, fmt.Errorf("telemetry topic %q has more than one wildcard", cfg.TelemetryTopic)
			}
			idIndex = i
		}
	}
	if idIndex < 0 {
		return nil, fmt.Errorf("telemetry topic %q has no device wildcard", cfg.TelemetryTopic)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bus{
		broker:  broker,
		ingest:  ingest,
		topic:   cfg.TelemetryTopic,
		prefix:  strings.TrimSuffix(cfg.CommandPrefix, "/"),
		idIndex: idIndex,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// Run subscribes to telemetry and blocks until ctx is cancelled, then
// unsubscribes.
func (b *Bus) Run(ctx context.Context) error {
	token := b.broker.Subscribe(b.topic, 1, b.handle)
	if !token.WaitTimeout(b.timeout) {
		return types.NewAppError(types.ErrCodeInternalTransport, "timed out subscribing to device telemetry", nil)
	}
	if err := token.Error(); err != nil {
		return types.NewAppError(types.ErrCodeInternalTransport, "failed to subscribe to device telemetry", err)
	}
	b.logger.InfoContext(ctx, "subscribed to device telemetry", "topic", b.topic)

	<-ctx.Done()

	unsub := b.broker.Unsubscribe(b.topic)
	if unsub.WaitTimeout(b.timeout) && unsub.Error() != nil {
		b.logger.Warn("failed to unsubscribe from device telemetry", "error", unsub.Error())
	}
	return nil
}

// PublishCommand sends cmd to the device's command topic. It does not wait for
// the broker; an error is returned only if the publish has already failed.
func (b *Bus) PublishCommand(ctx context.Context, cmd types.DeviceCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal device command: %w", err)
	}
	token := b.broker.Publish(b.CommandTopic(cmd.DeviceID), 0, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return err
		}
	default:
	}
	b.logger.DebugContext(ctx, "device command published", "device_id", cmd.DeviceID, "command", cmd.Command)
	return nil
}

// CommandTopic is the topic a device listens on for commands.
func (b *Bus) CommandTopic(deviceID string) string {
	return b.prefix + "/" + deviceID + "/commands"
}

func (b *Bus) handle(_ mqtt.Client, msg mqtt.Message) {
	deviceID, ok := b.deviceID(msg.Topic())
	if !ok {
		b.logger.Warn("telemetry on unexpected topic", "topic", msg.Topic())
		return
	}
	payload, err := sensors.DecodePayload(msg.Payload())
	if err != nil {
		b.logger.Warn("undecodable device payload", "device_id", deviceID, "error", err)
		return
	}
	accepted, err := b.ingest.OnESP32Message(deviceID, payload)
	if err != nil {
		// Already logged by the sensor service.
		return
	}
	b.logger.Debug("device telemetry processed", "device_id", deviceID, "accepted", accepted)
}

func (b *Bus) deviceID(topic string) (string, bool) {
	levels := strings.Split(topic, "/")
	if b.idIndex >= len(levels) || levels[b.idIndex] == "" {
		return "", false
	}
	return levels[b.idIndex], true
}

// Dial connects to the broker described by cfg.
func Dial(cfg config.MQTTConfig, logger *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password.Unmask())
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.BrokerURL, err)
	}
	return client, nil
}
