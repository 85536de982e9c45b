// Package mqtttest provides an in-memory broker for adapter tests.
package mqtttest

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/mqtt"
)

// ErrDialRefused is returned by Dial while the broker is refusing connections.
var ErrDialRefused = errors.New("mqtttest: connection refused")

// Message is one publish seen by the broker.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Broker routes publishes between in-memory sessions. Handlers run
// synchronously on the publishing goroutine with no broker lock held.
type Broker struct {
	mu        sync.Mutex
	sessions  []*Session
	published []Message
	retained  map[string]Message
	refuse    bool
	dials     int
	onPublish []func(Message)
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{retained: make(map[string]Message)}
}

// Refuse makes subsequent dials fail until called with false.
func (b *Broker) Refuse(refuse bool) {
	b.mu.Lock()
	b.refuse = refuse
	b.mu.Unlock()
}

// Dials reports how many sessions have been opened.
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Dial opens a session. The signature matches the adapter dialer so tests
// can pass b.Dial directly.
func (b *Broker) Dial(_ context.Context, _ config.MQTTConfig, onLost func(error)) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refuse {
		return nil, ErrDialRefused
	}
	b.dials++
	s := &Session{broker: b, connected: true, onLost: onLost, subs: make(map[string]mqtt.MessageHandler)}
	b.sessions = append(b.sessions, s)
	return s, nil
}

// OnPublish registers fn to observe every publish after it is routed.
func (b *Broker) OnPublish(fn func(Message)) {
	b.mu.Lock()
	b.onPublish = append(b.onPublish, fn)
	b.mu.Unlock()
}

// Inject publishes from outside any session, as a device would.
func (b *Broker) Inject(topic string, payload []byte, retained bool) {
	b.route(Message{Topic: topic, Payload: payload, Retained: retained}, false)
}

// Published returns a copy of every session publish, in order.
func (b *Broker) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.published...)
}

// PublishedTo returns the payloads published to topic.
func (b *Broker) PublishedTo(topic string) [][]byte {
	var out [][]byte
	for _, m := range b.Published() {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// DropAll severs every open session, invoking their connection-lost callbacks.
func (b *Broker) DropAll(cause error) {
	b.mu.Lock()
	sessions := append([]*Session(nil), b.sessions...)
	b.mu.Unlock()
	for _, s := range sessions {
		s.drop(cause)
	}
}

func (b *Broker) route(m Message, record bool) {
	type target struct {
		s *Session
		h mqtt.MessageHandler
	}
	b.mu.Lock()
	if record {
		b.published = append(b.published, m)
	}
	if m.Retained {
		b.retained[m.Topic] = m
	}
	var targets []target
	for _, s := range b.sessions {
		for _, h := range s.matching(m.Topic) {
			targets = append(targets, target{s, h})
		}
	}
	hooks := append([]func(Message){}, b.onPublish...)
	b.mu.Unlock()

	for _, t := range targets {
		_ = t.h(m.Topic, m.Payload)
	}
	if record {
		for _, fn := range hooks {
			fn(m)
		}
	}
}

func (b *Broker) retainedMatching(filter string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Message
	for topic, m := range b.retained {
		if mqtt.Match(filter, topic) {
			out = append(out, m)
		}
	}
	return out
}

// Session is one client connection to a Broker.
type Session struct {
	broker *Broker

	mu        sync.Mutex
	connected bool
	onLost    func(error)
	subs      map[string]mqtt.MessageHandler
}

// Publish routes a message to every matching subscription.
func (s *Session) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if !s.IsConnected() {
		return mqtt.ErrNotConnected
	}
	s.broker.route(Message{Topic: topic, Payload: append([]byte(nil), payload...), QoS: qos, Retained: retained}, true)
	return nil
}

// Subscribe registers handler and replays retained messages that match.
func (s *Session) Subscribe(filter string, _ byte, handler mqtt.MessageHandler) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return mqtt.ErrNotConnected
	}
	s.subs[filter] = handler
	s.mu.Unlock()

	for _, m := range s.broker.retainedMatching(filter) {
		_ = handler(m.Topic, m.Payload)
	}
	return nil
}

// Unsubscribe removes a filter.
func (s *Session) Unsubscribe(filter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, filter)
	return nil
}

// IsConnected reports whether the session is open.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close ends the session without invoking the lost callback.
func (s *Session) Close() error {
	s.mu.Lock()
	s.connected = false
	s.subs = make(map[string]mqtt.MessageHandler)
	s.mu.Unlock()
	return nil
}

func (s *Session) drop(cause error) {
	s.mu.Lock()
	was := s.connected
	s.connected = false
	s.subs = make(map[string]mqtt.MessageHandler)
	onLost := s.onLost
	s.mu.Unlock()
	if was && onLost != nil {
		onLost(cause)
	}
}

func (s *Session) matching(topic string) []mqtt.MessageHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	var out []mqtt.MessageHandler
	for filter, h := range s.subs {
		if mqtt.Match(filter, topic) {
			out = append(out, h)
		}
	}
	return out
}
