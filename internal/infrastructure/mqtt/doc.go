// Package mqtt provides the MQTT transport connection for mqttlog.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and exponential backoff
//   - An explicit connection state machine (disconnected, connecting,
//     connected, reconnecting)
//   - Topic subscriptions with wildcard validation and matching
//   - Ordered hand-off of every inbound message to a single receiver
//   - Optional retained online/offline status with Last Will and Testament
//
// # Architecture
//
// The Client owns the network session. It does not remember which topics
// are wanted; that is the job of the subscription registry, which listens
// for the connection-established event (SetOnConnect) and re-issues its
// filters after every (re)connect.
//
//	broker → paho router goroutine → Client.handleMessage → SetOnMessage receiver
//
// paho is configured with OrderMatters, so the receiver is invoked one
// message at a time in the order the broker delivered them.
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	client.SetOnMessage(func(msg mqtt.Message) { ... })
//	if err := client.Connect(ctx); err != nil {
//	    return err // errors.Is(err, mqtt.ErrConnectionFailed)
//	}
//	defer client.Disconnect()
//
//	err := client.Subscribe(ctx, "rye/test", 1)
//
// Tests substitute the paho client with WithClientFactory and the fake in
// package mqtttest.
package mqtt
