// Package mqtttest provides an in-memory broker for tests of code built
// on the mqtt package.
package mqtttest

import (
	"errors"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/homecontrol-core/internal/infrastructure/mqtt"
)

// Message is one publish recorded by Broker.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Broker is an in-memory stand-in for pahomqtt.Client. It routes
// publishes to matching subscriptions synchronously and records them.
type Broker struct {
	Options *pahomqtt.ClientOptions

	mu        sync.Mutex
	connected bool
	refuse    error
	fail      error
	published []Message
	subs      map[string]pahomqtt.MessageHandler
}

// New returns a broker that accepts connections.
func New() *Broker {
	return &Broker{subs: make(map[string]pahomqtt.MessageHandler)}
}

// Dial is passed to mqtt.ConnectWith. The broker keeps the options it was
// dialled with.
func (b *Broker) Dial(opts *pahomqtt.ClientOptions) mqtt.Broker {
	b.mu.Lock()
	b.Options = opts
	b.mu.Unlock()
	return b
}

// Refuse makes the next Connect fail with err.
func (b *Broker) Refuse(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refuse = err
}

// FailOperations makes publish, subscribe and unsubscribe tokens carry err.
func (b *Broker) FailOperations(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

func (b *Broker) Connect() pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refuse != nil {
		return done(b.refuse)
	}
	b.connected = true
	return done(nil)
}

func (b *Broker) Disconnect(uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

func (b *Broker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Broker) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}

	b.mu.Lock()
	if b.fail != nil {
		err := b.fail
		b.mu.Unlock()
		return done(err)
	}
	b.published = append(b.published, Message{Topic: topic, Payload: data, QoS: qos, Retained: retained})
	b.mu.Unlock()

	b.Deliver(topic, data)
	return done(nil)
}

func (b *Broker) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return done(b.fail)
	}
	b.subs[topic] = callback
	return done(nil)
}

func (b *Broker) Unsubscribe(topics ...string) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return done(b.fail)
	}
	for _, t := range topics {
		delete(b.subs, t)
	}
	return done(nil)
}

// Deliver hands an inbound message to every subscription whose filter
// matches topic, as if a remote client had published it.
func (b *Broker) Deliver(topic string, payload []byte) {
	b.mu.Lock()
	var handlers []pahomqtt.MessageHandler
	for filter, h := range b.subs {
		if mqtt.Match(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(nil, &message{topic: topic, payload: payload})
	}
}

// SimulateReconnect runs the client's connect callback.
func (b *Broker) SimulateReconnect() {
	b.mu.Lock()
	b.connected = true
	opts := b.Options
	b.mu.Unlock()
	if opts != nil && opts.OnConnect != nil {
		opts.OnConnect(nil)
	}
}

// SimulateConnectionLost marks the broker disconnected and runs the
// client's connection-lost callback.
func (b *Broker) SimulateConnectionLost() {
	b.mu.Lock()
	b.connected = false
	opts := b.Options
	b.mu.Unlock()
	if opts != nil && opts.OnConnectionLost != nil {
		opts.OnConnectionLost(nil, errors.New("mqtttest: connection lost"))
	}
}

// Published returns every recorded publish.
func (b *Broker) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.published...)
}

// PublishedTo returns the recorded publishes on topic.
func (b *Broker) PublishedTo(topic string) []Message {
	var out []Message
	for _, m := range b.Published() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Subscribed reports whether a subscription for the exact filter exists.
func (b *Broker) Subscribed(filter string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[filter]
	return ok
}

// token is an already completed pahomqtt.Token.
type token struct {
	err error
	ch  chan struct{}
}

func done(err error) pahomqtt.Token {
	ch := make(chan struct{})
	close(ch)
	return &token{err: err, ch: ch}
}

func (t *token) Wait() bool                     { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}          { return t.ch }
func (t *token) Error() error                   { return t.err }

type message struct {
	topic   string
	payload []byte
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return 0 }
func (m *message) Retained() bool    { return false }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}
