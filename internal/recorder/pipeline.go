package recorder

import (
	"context"
	"time"

	"github.com/nerrad567/mqttlog/internal/api"
	"github.com/nerrad567/mqttlog/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqttlog/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttlog/internal/journal"
	"github.com/nerrad567/mqttlog/internal/sink"
)

// defaultFailureThreshold applies when sink.failure_threshold is unset.
const defaultFailureThreshold = 3

// sideChannelTimeout bounds the journal insert for one message.
const sideChannelTimeout = 5 * time.Second

// RecordEvent is the feed payload for one handled message.
type RecordEvent struct {
	Topic      string    `json:"topic"`
	Filter     string    `json:"filter,omitempty"`
	Payload    string    `json:"payload"`
	QoS        byte      `json:"qos"`
	Retained   bool      `json:"retained"`
	ReceivedAt time.Time `json:"received_at"`
	Error      string    `json:"error,omitempty"`
}

// handle is the dispatch loop's handler. It writes the message to the log
// file and then mirrors it to the side channels.
//
// A write failure is logged here and not returned: the dispatcher's failed
// counter is reserved for unexpected handler errors, and the sink keeps
// its own failure count.
func (r *Recorder) handle(ctx context.Context, msg mqtt.Message) error {
	text := sink.DecodePayload(msg.Payload)
	r.log.Info("message received",
		"topic", msg.Topic,
		"qos", msg.QoS,
		"retained", msg.Retained,
		"payload", text,
	)

	err := r.sink.Append(sink.Record{
		Time:    msg.ReceivedAt,
		Topic:   msg.Topic,
		Payload: msg.Payload,
	})
	r.logOutcome(msg, err)

	filter, _ := r.registry.Match(msg.Topic)
	r.mirror(ctx, msg, filter, text, err)
	return nil
}

// logOutcome logs the write result. Consecutive failures are escalated to
// error level once they reach the threshold.
func (r *Recorder) logOutcome(msg mqtt.Message, err error) {
	if err == nil {
		if r.failures > 0 {
			r.log.Info("log file writes recovered", "after_failures", r.failures)
		}
		r.failures = 0
		r.log.Debug("message written", "topic", msg.Topic, "path", r.sink.Path())
		return
	}

	r.failures++
	threshold := r.cfg.Sink.FailureThreshold
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}

	args := []any{
		"topic", msg.Topic,
		"path", r.sink.Path(),
		"consecutive_failures", r.failures,
		"error", err,
	}
	if r.failures >= threshold {
		r.log.Error("message lost, log file write failing repeatedly", args...)
		return
	}
	r.log.Warn("message lost, log file write failed", args...)
}

// mirror feeds the side channels. Their failures never affect the log file.
func (r *Recorder) mirror(ctx context.Context, msg mqtt.Message, filter, text string, writeErr error) {
	persisted := writeErr == nil
	errText := ""
	if writeErr != nil {
		errText = writeErr.Error()
	}

	if r.journal != nil {
		jctx, cancel := context.WithTimeout(ctx, sideChannelTimeout)
		err := r.journal.Record(jctx, &journal.Entry{
			Topic:      msg.Topic,
			Filter:     filter,
			Payload:    msg.Payload,
			QoS:        msg.QoS,
			Retained:   msg.Retained,
			Duplicate:  msg.Duplicate,
			ReceivedAt: msg.ReceivedAt,
			Persisted:  persisted,
			Error:      errText,
		})
		cancel()
		if err != nil {
			r.log.Warn("journal write failed", "topic", msg.Topic, "error", err)
		}
	}

	if r.influx != nil {
		r.influx.WriteMessage(influxdb.MessagePoint{
			Filter:    filter,
			Topic:     msg.Topic,
			Size:      len(msg.Payload),
			QoS:       msg.QoS,
			Retained:  msg.Retained,
			Persisted: persisted,
			Time:      msg.ReceivedAt,
		})
	}

	if r.hub != nil {
		channel := api.EventRecordAppended
		if !persisted {
			channel = api.EventRecordFailed
		}
		r.hub.BroadcastTopic(channel, msg.Topic, RecordEvent{
			Topic:      msg.Topic,
			Filter:     filter,
			Payload:    text,
			QoS:        msg.QoS,
			Retained:   msg.Retained,
			ReceivedAt: msg.ReceivedAt.UTC(),
			Error:      errText,
		})
	}
}
