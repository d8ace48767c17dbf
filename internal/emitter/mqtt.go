// Package emitter publishes stream-tee session events to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Event kinds
const (
	EventStarted = "started"
	EventLinked  = "linked"
	EventError   = "error"
	EventStopped = "stopped"
)

// Event is one session lifecycle notification
type Event struct {
	Kind       string            `json:"kind"`
	InstanceID string            `json:"instance_id"`
	Pipeline   string            `json:"pipeline"`
	Timestamp  time.Time         `json:"timestamp"`
	Stage      string            `json:"stage,omitempty"`
	Message    string            `json:"message,omitempty"`
	Category   string            `json:"category,omitempty"`
	Format     string            `json:"format,omitempty"`
	Stats      map[string]uint64 `json:"stats,omitempty"`
}

// EncodeEvent renders ev as the JSON payload published on the wire
func EncodeEvent(ev Event) ([]byte, error) {
	if ev.Kind == "" {
		return nil, fmt.Errorf("event kind is required")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return json.Marshal(ev)
}

// Config contains broker settings
type Config struct {
	Broker   string // host:port
	ClientID string
	Topic    string // events are published on Topic/<kind>
	QoS      byte
}

// MQTTEmitter publishes session events to an MQTT broker
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates a new emitter, not yet connected
func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	return &MQTTEmitter{cfg: cfg}
}

// Connect establishes the broker connection with auto-reconnect enabled
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"broker", e.cfg.Broker,
			"error", err,
		)
	}

	e.client = mqtt.NewClient(opts)
	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("emitter: mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Publish sends ev on <topic>/<kind>
func (e *MQTTEmitter) Publish(ev Event) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("emitter: mqtt not connected")
	}

	payload, err := EncodeEvent(ev)
	if err != nil {
		e.countError()
		return fmt.Errorf("emitter: failed to marshal event: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", e.cfg.Topic, ev.Kind)
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("emitter: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("emitter: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("emitter: event published", "topic", topic, "kind", ev.Kind, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Connected: e.connected, Published: e.published, Errors: e.errors}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
