// Package journal keeps a queryable SQLite copy of received messages.
//
// The journal is a side channel: the log file written by package sink is
// the record of truth. The recorder inserts one Entry per handled message,
// noting whether the file append succeeded, and the status API reads the
// newest entries back.
package journal
