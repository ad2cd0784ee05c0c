package platform

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-platform/internal/tree"
	"github.com/nerrad567/gray-logic-platform/internal/value"
)

// Publisher exports platform values and talks to the settings service.
type Publisher interface {
	// PublishValue exports a value below the platform namespace.
	PublishValue(path string, v value.Value) error
	// RegisterSettings asks the settings service to create settings.
	RegisterSettings(service string, settings SettingsTable) error
	// WriteSetting requests a change of a remote property (tree path).
	WriteSetting(path string, v value.Value) error
}

// Broker is the part of the MQTT client the publisher needs.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// PublishedValue is one exported platform value.
type PublishedValue struct {
	Path      string      `json:"path"`
	Value     value.Value `json:"value"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// MQTTPublisher implements Publisher on top of the MQTT client. Platform
// values are retained so late subscribers see the current state.
type MQTTPublisher struct {
	broker Broker
	topics mqtt.Topics
	qos    byte

	mu     sync.RWMutex
	values map[string]PublishedValue
}

// NewMQTTPublisher creates a publisher.
func NewMQTTPublisher(broker Broker, topics mqtt.Topics, qos byte) *MQTTPublisher {
	return &MQTTPublisher{
		broker: broker,
		topics: topics,
		qos:    qos,
		values: make(map[string]PublishedValue),
	}
}

// PublishValue implements Publisher. The value is remembered even when
// the broker is unreachable so the status API stays accurate.
func (p *MQTTPublisher) PublishValue(path string, v value.Value) error {
	p.mu.Lock()
	p.values[path] = PublishedValue{Path: path, Value: v, UpdatedAt: time.Now().UTC()}
	p.mu.Unlock()

	payload, err := value.Encode(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := p.broker.Publish(p.topics.PlatformValue(path), payload, p.qos, true); err != nil {
		return fmt.Errorf("publishing %s: %w", path, err)
	}
	return nil
}

type registerRequest struct {
	ID       string        `json:"id"`
	Service  string        `json:"service"`
	Settings SettingsTable `json:"settings"`
}

// RegisterSettings implements Publisher.
func (p *MQTTPublisher) RegisterSettings(service string, settings SettingsTable) error {
	payload, err := json.Marshal(registerRequest{
		ID:       uuid.NewString(),
		Service:  service,
		Settings: settings,
	})
	if err != nil {
		return fmt.Errorf("encoding settings registration: %w", err)
	}
	if err := p.broker.Publish(p.topics.SettingsRegister(), payload, p.qos, false); err != nil {
		return fmt.Errorf("registering settings: %w", err)
	}
	return nil
}

// WriteSetting implements Publisher.
func (p *MQTTPublisher) WriteSetting(path string, v value.Value) error {
	id, property := tree.Split(path)
	if id == "" || property == "" {
		return fmt.Errorf("%w: %q", ErrUnknownPath, path)
	}
	payload, err := value.Encode(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := p.broker.Publish(p.topics.ServiceWrite(id, property), payload, p.qos, false); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Values returns the exported values sorted by path.
func (p *MQTTPublisher) Values() []PublishedValue {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]PublishedValue, 0, len(p.values))
	for _, v := range p.values {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Value returns one exported value.
func (p *MQTTPublisher) Value(path string) (value.Value, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[path]
	return v.Value, ok
}
