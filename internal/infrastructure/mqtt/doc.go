// Package mqtt provides the broker transport used by the doorbell relay.
//
// This package manages:
//   - Non-blocking connect and disconnect requests against one broker
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Retained online/offline presence and a Last Will on the status topic
//
// # Architecture
//
// The relay coordinator decides when to connect and when to retry. This
// client only carries those requests to paho.mqtt.golang and reports what
// happened through callbacks:
//
//	relay.Coordinator → mqtt.Client → broker ← proximity sensor
//
// When session.auto_reconnect is enabled the library reconnects by itself
// and the coordinator stays out of the way.
//
// # Security Considerations
//
//   - Use TLS when the broker is reachable beyond the local network
//   - Credentials are validated against the broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.SetOnConnect(func() {
//	    _ = client.Subscribe("proximity/#", 1, handle)
//	})
//	client.Connect()
package mqtt
