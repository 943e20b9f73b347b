package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementMessages is the measurement every message point is written to.
const MeasurementMessages = "mqtt_messages"

// MessagePoint describes one handled message.
type MessagePoint struct {
	// Filter is the registered subscription filter that matched Topic.
	Filter    string
	Topic     string
	Size      int
	QoS       byte
	Retained  bool
	Persisted bool
	Time      time.Time
}

// WriteMessage queues one point for the message.
//
// Tags (indexed, low cardinality): filter, qos, persisted.
// Fields: topic, bytes, retained, count (always 1, for sum() queries).
func (c *Client) WriteMessage(m MessagePoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newMessagePoint(m))
}

func newMessagePoint(m MessagePoint) *write.Point {
	ts := m.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	filter := m.Filter
	if filter == "" {
		filter = "unmatched"
	}

	return write.NewPoint(
		MeasurementMessages,
		map[string]string{
			"filter":    filter,
			"qos":       strconv.Itoa(int(m.QoS)),
			"persisted": strconv.FormatBool(m.Persisted),
		},
		map[string]interface{}{
			"topic":    m.Topic,
			"bytes":    m.Size,
			"retained": m.Retained,
			"count":    1,
		},
		ts,
	)
}
