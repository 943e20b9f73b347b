// Package sink appends message records to the shared log file.
//
// Each record is one line:
//
//	2024-05-01 12:00:00 | Topic: rye/test | Message: hello
//
// A Sink owns the file handle behind a mutex. Append takes the lock, opens
// the file in append mode if no handle is held, writes the whole line in
// one call, optionally syncs, and releases the lock on every path. Lines
// from concurrent callers never interleave, and lock acquisition order is
// the order lines appear in the file.
//
// When a write fails the handle is dropped, so the next Append reopens the
// file. Reopen does the same on demand for external log rotation.
package sink
