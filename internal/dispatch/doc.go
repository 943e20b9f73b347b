// Package dispatch runs the single ordered loop that hands inbound MQTT
// messages to a handler.
//
// The transport calls Deliver from its callback goroutine; Deliver puts the
// message on a bounded queue and blocks while the queue is full, which
// pushes back into the transport. One goroutine, started with Run, takes
// messages off the queue and calls the handler synchronously, so the
// handler never runs concurrently with itself and sees messages in arrival
// order.
//
// Stop is cooperative. It never interrupts a running handler; the loop
// finishes the message in hand, handles whatever is already queued, and
// exits. Deliver returns ErrStopped from then on.
package dispatch
