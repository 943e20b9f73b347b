package mqtt

import (
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message is one inbound application message, detached from paho.
type Message struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retained   bool
	Duplicate  bool
	MessageID  uint16
	ReceivedAt time.Time
}

// newMessage copies a paho message. The payload slice is copied because
// paho may reuse its buffers once the callback returns.
func newMessage(m pahomqtt.Message, receivedAt time.Time) Message {
	payload := make([]byte, len(m.Payload()))
	copy(payload, m.Payload())

	return Message{
		Topic:      m.Topic(),
		Payload:    payload,
		QoS:        m.Qos(),
		Retained:   m.Retained(),
		Duplicate:  m.Duplicate(),
		MessageID:  m.MessageID(),
		ReceivedAt: receivedAt,
	}
}
