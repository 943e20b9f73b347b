package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Query limits for Recent.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Entry is one journaled message.
type Entry struct {
	ID         int64     `json:"id"`
	Topic      string    `json:"topic"`
	Filter     string    `json:"filter,omitempty"`
	Payload    []byte    `json:"-"`
	QoS        byte      `json:"qos"`
	Retained   bool      `json:"retained"`
	Duplicate  bool      `json:"duplicate"`
	ReceivedAt time.Time `json:"received_at"`
	Persisted  bool      `json:"persisted"`
	Error      string    `json:"error,omitempty"`
}

// Repository stores and reads journal entries.
type Repository interface {
	// Record inserts e and sets e.ID.
	Record(ctx context.Context, e *Entry) error

	// Recent returns up to limit entries, newest first. topic filters by
	// exact topic when non-empty.
	Recent(ctx context.Context, topic string, limit int) ([]Entry, error)

	// Count returns the number of journaled entries.
	Count(ctx context.Context) (int64, error)
}

// SQLiteRepository implements Repository on the messages table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts one entry.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if e.Topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidEntry)
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	payload := e.Payload
	if payload == nil {
		payload = []byte{}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (topic, filter, payload, qos, retained, duplicate, received_at, persisted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Topic, e.Filter, payload, e.QoS, e.Retained, e.Duplicate,
		e.ReceivedAt.UTC().Format(time.RFC3339Nano), e.Persisted, nullString(e.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading journal entry id: %w", err)
	}
	e.ID = id
	return nil
}

// Recent returns the newest entries. limit is clamped to 1..MaxLimit;
// zero or negative means DefaultLimit.
func (r *SQLiteRepository) Recent(ctx context.Context, topic string, limit int) ([]Entry, error) {
	limit = ClampLimit(limit)

	query := `
		SELECT id, topic, filter, payload, qos, retained, duplicate, received_at, persisted, error
		FROM messages`
	args := []any{}
	if topic != "" {
		query += ` WHERE topic = ?`
		args = append(args, topic)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}

// Count returns the number of entries.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting journal: %w", err)
	}
	return n, nil
}

// ClampLimit applies the DefaultLimit and MaxLimit bounds.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e          Entry
		receivedAt string
		errText    sql.NullString
	)
	if err := rows.Scan(&e.ID, &e.Topic, &e.Filter, &e.Payload, &e.QoS,
		&e.Retained, &e.Duplicate, &receivedAt, &e.Persisted, &errText); err != nil {
		return Entry{}, fmt.Errorf("scanning journal row: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, receivedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing received_at %q: %w", receivedAt, err)
	}
	e.ReceivedAt = t
	e.Error = errText.String
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
