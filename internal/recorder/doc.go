// Package recorder wires the mqttlog pipeline together and owns its
// lifecycle.
//
// A Recorder opens the log file, connects to the broker, restores the
// configured subscriptions on every session and runs the dispatch loop
// that appends each message to the sink. Optional side channels (the
// SQLite journal, InfluxDB metrics and the status API feed) receive every
// message after the sink has seen it.
//
//	rec, err := recorder.New(cfg, log, version)
//	if err != nil { ... }
//	err = rec.Run(ctx) // blocks until ctx is cancelled or Stop is called
//
// Shutdown order is fixed: stop the dispatch loop, wait for queued
// messages to be written, disconnect from the broker, then close the side
// channels and finally the sink.
package recorder
