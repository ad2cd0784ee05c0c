package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-platform/internal/event"
	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-platform/internal/value"
)

// ErrUnknownTopic is returned for topics outside the service namespace.
var ErrUnknownTopic = errors.New("tree: topic not in service namespace")

// Subscriber is the part of the MQTT client the transport needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Transport turns MQTT messages into loop events. Handlers run on paho's
// goroutine and only Post; ordering is preserved because paho delivers
// messages of one subscription in order.
type Transport struct {
	sub    Subscriber
	poster event.Poster
	topics mqtt.Topics
	qos    byte
	logger Logger
}

// NewTransport creates a transport for the given topic namespace.
func NewTransport(sub Subscriber, poster event.Poster, topics mqtt.Topics, qos byte) *Transport {
	return &Transport{
		sub:    sub,
		poster: poster,
		topics: topics,
		qos:    qos,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the transport.
func (tr *Transport) SetLogger(logger Logger) {
	tr.logger = logger
}

// Start subscribes to the service namespace.
func (tr *Transport) Start() error {
	if err := tr.sub.Subscribe(tr.topics.AllServices(), tr.qos, tr.handle); err != nil {
		return fmt.Errorf("subscribing to services: %w", err)
	}
	return nil
}

type statePayload struct {
	State string `json:"state"`
}

func (tr *Transport) handle(topic string, payload []byte) error {
	id, kind, property, ok := tr.topics.ParseService(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	switch kind {
	case mqtt.ServiceState:
		if len(strings.TrimSpace(string(payload))) == 0 {
			tr.poster.Post(event.Removed{ID: id})
			return nil
		}
		var sp statePayload
		if err := json.Unmarshal(payload, &sp); err != nil {
			return fmt.Errorf("decoding state of %s: %w", id, err)
		}
		tr.poster.Post(event.StateChanged{ID: id, State: event.ParseState(sp.State)})
	case mqtt.ServiceValue:
		v, err := value.Decode(payload)
		if err != nil {
			// Malformed payloads still reach predicates, which treat them as false.
			tr.logger.Warn("malformed value payload", "topic", topic, "error", err)
			v = value.OfUnsupported(string(payload))
		}
		tr.poster.Post(event.ValueChanged{Path: Path(id, property), Value: v})
	}
	return nil
}
