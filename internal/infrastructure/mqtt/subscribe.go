package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-node/internal/session"
)

// Subscribe registers handler for topic. Messages are queued and handled
// by Pump.
//
// Subscriptions do not survive a reconnect; the session manager subscribes
// again after every successful Connect.
func (t *Transport) Subscribe(topic string, handler session.Handler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	client, err := t.currentClient()
	if err != nil {
		return err
	}

	token := client.Subscribe(topic, byte(t.cfg.QoS), t.enqueue(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// enqueue returns a paho callback that copies the message into the inbox.
func (t *Transport) enqueue(handler session.Handler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		payload := append([]byte(nil), msg.Payload()...)
		item := inbound{
			msg:     session.Message{Topic: msg.Topic(), Payload: payload},
			handler: handler,
		}
		select {
		case t.inbox <- item:
		default:
			t.dropped.Add(1)
			if logger := t.getLogger(); logger != nil {
				logger.Warn("MQTT inbox full, message dropped", "topic", msg.Topic())
			}
		}
	}
}

// Pump runs the handlers of all queued messages and returns how many ran.
func (t *Transport) Pump() (int, error) {
	if !t.Connected() {
		return 0, ErrNotConnected
	}

	n := 0
	for {
		select {
		case item := <-t.inbox:
			t.dispatch(item)
			n++
		default:
			return n, nil
		}
	}
}

// dispatch runs one handler with panic recovery.
func (t *Transport) dispatch(item inbound) {
	defer func() {
		if r := recover(); r != nil {
			if logger := t.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", item.msg.Topic,
					"panic", r,
				)
			}
		}
	}()
	item.handler(item.msg)
}
