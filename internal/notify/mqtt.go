package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const DefaultTopic = "smartlicensing/events"

// MQTTConfig configures the event publisher. An empty Broker disables it.
type MQTTConfig struct {
	Broker   string
	Username string
	Password string
	Topic    string
}

func (c MQTTConfig) Enabled() bool {
	return strings.TrimSpace(c.Broker) != ""
}

// MQTTPublisher publishes events as JSON to topic/<workflow>.
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

// New returns an MQTT publisher when a broker is configured and Nop otherwise.
func New(cfg MQTTConfig) (Publisher, error) {
	if !cfg.Enabled() {
		return Nop{}, nil
	}
	return NewMQTTPublisher(cfg)
}

func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTPublisher{client: client, topic: topic, timeout: 10 * time.Second}, nil
}

func clientOptions(cfg MQTTConfig) (*mqtt.ClientOptions, error) {
	broker, err := url.Parse(strings.TrimSpace(cfg.Broker))
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker: %w", err)
	}
	if broker.Hostname() == "" || broker.Port() == "" {
		return nil, fmt.Errorf("invalid mqtt broker %q", cfg.Broker)
	}

	opts := mqtt.NewClientOptions()
	switch broker.Scheme {
	case "ssl", "tls", "mqtts":
		opts.SetTLSConfig(&tls.Config{})
		opts.AddBroker(fmt.Sprintf("ssl://%s", broker.Host))
	case "tcp", "mqtt":
		opts.AddBroker(fmt.Sprintf("tcp://%s", broker.Host))
	default:
		return nil, fmt.Errorf("unsupported mqtt scheme %q", broker.Scheme)
	}
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID("smartlic-" + uuid.NewString()[:8])
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(false)
	return opts, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topicFor(event), 1, false, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

func (p *MQTTPublisher) topicFor(event Event) string {
	return path.Join(p.topic, event.Workflow)
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
