// Package sessiontest provides a scripted session.Transport for tests.
package sessiontest

import (
	"sync"

	"github.com/nerrad567/gray-logic-node/internal/session"
)

// Publication is one recorded Publish call.
type Publication struct {
	Topic    string
	Payload  string
	Retained bool
}

// Transport is an in-memory session.Transport.
type Transport struct {
	mu sync.Mutex

	// ConnectErr decides the outcome of the n-th connect attempt (1-based).
	// Nil accepts every attempt.
	ConnectErr func(n int) error
	// PumpErr, if set, is returned by Pump.
	PumpErr error

	connected   bool
	connects    []session.ConnectOptions
	disconnects int
	subs        map[string]session.Handler
	published   []Publication
	inbox       []session.Message
}

// NewTransport returns a transport that accepts every connect.
func NewTransport() *Transport {
	return &Transport{subs: make(map[string]session.Handler)}
}

func (t *Transport) Connect(opts session.ConnectOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects = append(t.connects, opts)
	if t.ConnectErr != nil {
		if err := t.ConnectErr(len(t.connects)); err != nil {
			return err
		}
	}
	t.connected = true
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Subscribe(topic string, h session.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return session.ErrNotConnected
	}
	t.subs[topic] = h
	return nil
}

func (t *Transport) Publish(topic string, payload []byte, retained bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return session.ErrNotConnected
	}
	t.published = append(t.published, Publication{Topic: topic, Payload: string(payload), Retained: retained})
	return nil
}

func (t *Transport) Pump() (int, error) {
	t.mu.Lock()
	if t.PumpErr != nil {
		err := t.PumpErr
		t.mu.Unlock()
		return 0, err
	}
	if !t.connected {
		t.mu.Unlock()
		return 0, session.ErrNotConnected
	}
	inbox := t.inbox
	t.inbox = nil
	subs := make(map[string]session.Handler, len(t.subs))
	for k, v := range t.subs {
		subs[k] = v
	}
	t.mu.Unlock()

	n := 0
	for _, msg := range inbox {
		if h, ok := subs[msg.Topic]; ok {
			h(msg)
			n++
		}
	}
	return n, nil
}

func (t *Transport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.disconnects++
}

// Deliver queues an inbound message for the next Pump.
func (t *Transport) Deliver(topic, payload string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox = append(t.inbox, session.Message{Topic: topic, Payload: []byte(payload)})
}

// Lose drops the session from the broker side.
func (t *Transport) Lose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}

// Connects returns every connect attempt.
func (t *Transport) Connects() []session.ConnectOptions {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]session.ConnectOptions(nil), t.connects...)
}

// Published returns every publication.
func (t *Transport) Published() []Publication {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Publication(nil), t.published...)
}

// Subscribed reports whether topic has a handler.
func (t *Transport) Subscribed(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.subs[topic]
	return ok
}

// Disconnects returns the number of Disconnect calls.
func (t *Transport) Disconnects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnects
}
