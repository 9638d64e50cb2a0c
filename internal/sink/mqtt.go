package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/muurk/airscout/internal/logging"
)

const (
	// DefaultConnectRetries is how many times connecting to the broker is attempted
	DefaultConnectRetries = 5

	// DefaultConnectElapsed bounds the total time spent connecting
	DefaultConnectElapsed = 10 * time.Second

	publishTimeout = 5 * time.Second
	disconnectMS   = 250
)

// MQTTConfig configures the MQTT sink
type MQTTConfig struct {
	Broker      string // e.g. "tcp://localhost:1883"
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retained    bool

	ConnectRetries int
	ConnectElapsed time.Duration
}

// MQTT publishes each sample as one JSON message on
// <prefix>/<device>/readings
type MQTT struct {
	client   mqtt.Client
	prefix   string
	qos      byte
	retained bool
}

// NewMQTT connects to the broker, retrying with exponential backoff
func NewMQTT(ctx context.Context, cfg MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = DefaultConnectRetries
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.ConnectElapsed
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = DefaultConnectElapsed
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logging.Warn("Failed to connect to MQTT broker",
				zap.String("broker", cfg.Broker),
				zap.Error(token.Error()),
			)
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	logging.Info("Connected to MQTT broker", zap.String("broker", cfg.Broker))
	return newMQTTWithClient(client, cfg), nil
}

func newMQTTWithClient(client mqtt.Client, cfg MQTTConfig) *MQTT {
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "airscout"
	}
	return &MQTT{
		client:   client,
		prefix:   prefix,
		qos:      cfg.QoS,
		retained: cfg.Retained,
	}
}

// Name implements Sink
func (m *MQTT) Name() string { return "mqtt" }

// Topic returns the topic samples for device are published on
func (m *MQTT) Topic(device string) string {
	return m.prefix + "/" + device + "/readings"
}

// mqttMessage is the JSON payload published for a sample
type mqttMessage struct {
	Device          string            `json:"device"`
	Address         string            `json:"address"`
	SoftwareVersion string            `json:"software_version,omitempty"`
	Age             string            `json:"age,omitempty"`
	Time            time.Time         `json:"time"`
	Values          map[string]string `json:"values"`
}

func mqttPayload(s Sample) ([]byte, error) {
	msg := mqttMessage{
		Device:  s.Device,
		Address: s.Address,
		Time:    s.Time().UTC(),
		Values:  map[string]string{},
	}
	if s.Readings != nil {
		msg.SoftwareVersion = s.Readings.SoftwareVersion
		msg.Age = s.Readings.Age
		for _, v := range s.Readings.Values {
			msg.Values[v.Type] = v.Value
		}
	}
	return json.Marshal(msg)
}

// Publish implements Sink
func (m *MQTT) Publish(ctx context.Context, s Sample) error {
	payload, err := mqttPayload(s)
	if err != nil {
		return fmt.Errorf("failed to encode readings: %w", err)
	}

	token := m.client.Publish(m.Topic(s.Device), m.qos, m.retained, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("timed out publishing to %s", m.Topic(s.Device))
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	logging.Debug("Published readings", zap.String("topic", m.Topic(s.Device)))
	return nil
}

// Close implements Sink
func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(disconnectMS)
		logging.Info("MQTT client disconnected")
	}
	return nil
}
