package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nerrad567/mqttlog/internal/infrastructure/config"
)

// fileMode is the permission for a newly created log file.
const fileMode = 0o644

// File is the handle a Sink writes to. *os.File satisfies it.
type File interface {
	io.Writer
	Sync() error
	Close() error
}

// Opener opens path for appending, creating it if needed.
type Opener func(path string) (File, error)

// openAppend is the default Opener.
func openAppend(path string) (File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
}

// Stats is a snapshot of sink counters.
type Stats struct {
	Path      string    `json:"path"`
	Open      bool      `json:"open"`
	Appended  uint64    `json:"appended"`
	Failed    uint64    `json:"failed"`
	Bytes     uint64    `json:"bytes"`
	Reopens   uint64    `json:"reopens"`
	LastWrite time.Time `json:"last_write,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Sink appends records to one file under a mutex.
type Sink struct {
	path string
	sync bool
	open Opener

	mu     sync.Mutex // guards everything below
	file   File
	closed bool
	stats  Stats
}

// Option configures a Sink.
type Option func(*Sink)

// WithOpener replaces the function used to open the file.
func WithOpener(open Opener) Option {
	return func(s *Sink) {
		s.open = open
	}
}

// New creates a Sink for cfg.Path. The file is not opened until Open or the
// first Append.
func New(cfg config.SinkConfig, opts ...Option) *Sink {
	s := &Sink{
		path: cfg.Path,
		sync: cfg.Sync,
		open: openAppend,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.stats.Path = cfg.Path
	return s
}

// Path returns the log file path.
func (s *Sink) Path() string {
	return s.path
}

// Open opens the file now, creating it and any missing parent directory.
// It lets an unwritable path fail at startup.
func (s *Sink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
	}
	return s.ensureOpen()
}

// ensureOpen opens the file if no handle is held. Caller must hold mu.
func (s *Sink) ensureOpen() error {
	if s.file != nil {
		return nil
	}
	f, err := s.open(s.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.path, err)
	}
	s.file = f
	return nil
}

// Append writes rec as one line.
//
// Any failure is returned wrapped in ErrWriteFailed and only affects this
// record; after a failed write the handle is dropped and the next call
// reopens the file.
func (s *Sink) Append(rec Record) error {
	line := rec.Line()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: %w", ErrWriteFailed, ErrClosed)
	}

	if err := s.ensureOpen(); err != nil {
		return s.fail(err)
	}

	n, err := s.file.Write([]byte(line))
	if err == nil && n < len(line) {
		err = io.ErrShortWrite
	}
	if err == nil && s.sync {
		err = s.file.Sync()
	}
	if err != nil {
		_ = s.dropHandle() // the write error is the one reported
		return s.fail(err)
	}

	s.stats.Appended++
	s.stats.Bytes += uint64(n)
	s.stats.LastWrite = rec.Time
	s.stats.LastError = ""
	return nil
}

// fail records err and wraps it. Caller must hold mu.
func (s *Sink) fail(err error) error {
	s.stats.Failed++
	s.stats.LastError = err.Error()
	return fmt.Errorf("%w: %w", ErrWriteFailed, err)
}

// dropHandle closes and forgets the current handle. Caller must hold mu.
func (s *Sink) dropHandle() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Reopen closes the current handle and opens the path again, picking up a
// file that was moved away by log rotation. It waits for any Append in
// progress.
func (s *Sink) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	closeErr := s.dropHandle()
	s.stats.Reopens++
	if err := s.ensureOpen(); err != nil {
		return errors.Join(closeErr, err)
	}
	return closeErr
}

// Close syncs and closes the file. Later Appends fail with ErrClosed.
// Close is idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.file == nil {
		return nil
	}

	syncErr := s.file.Sync()
	closeErr := s.dropHandle()
	if err := errors.Join(syncErr, closeErr); err != nil {
		return fmt.Errorf("closing %s: %w", s.path, err)
	}
	return nil
}

// Stats returns the current counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.Open = s.file != nil
	return st
}
