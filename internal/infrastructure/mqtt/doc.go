// Package mqtt provides the broker transport for the node's session.
//
// Transport implements session.Transport on top of paho.mqtt.golang with
// the library's own reconnect logic turned off: the session manager decides
// when to connect, and every attempt is a single blocking Connect.
//
// # Message delivery
//
// paho invokes message callbacks on its own goroutines. Transport only
// queues those messages; Pump drains the queue and runs the handlers on
// the caller's goroutine. When the queue is full new messages are dropped
// and counted.
//
// # Security Considerations
//
//   - TLS is the default (mqtt.broker.tls=true); MinVersion is TLS 1.2
//   - When mqtt.broker.ca_file is set it is the only trusted root
//   - The will (QoS 1, retained) lets the broker announce an unexpected
//     disconnect
//
// # Usage
//
//	t, err := mqtt.New(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	mgr := session.NewManager(sessionCfg, session.Dependencies{Transport: t, ...})
package mqtt
