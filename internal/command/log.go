package command

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the publish outcome stored in the command log.
type Status string

const (
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// History limits for ListByDevice.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// timeLayout keeps stored timestamps sortable as text.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is one row of the command log.
type Record struct {
	ID       string          `json:"id"`
	DeviceID string          `json:"device_id"`
	Command  Kind            `json:"command"`
	Envelope json.RawMessage `json:"envelope"`
	Source   Source          `json:"source"`
	Status   Status          `json:"status"`
	Error    string          `json:"error,omitempty"`
	IssuedAt time.Time       `json:"issued_at"`
}

// SQLiteLog stores the command log in the command_log table.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog creates a command log backed by db.
func NewSQLiteLog(db *sql.DB) *SQLiteLog {
	return &SQLiteLog{db: db}
}

// Append inserts a command record.
func (l *SQLiteLog) Append(ctx context.Context, rec Record) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO command_log (id, device_id, command, payload, source, status, error, issued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DeviceID, string(rec.Command), string(rec.Envelope),
		string(rec.Source), string(rec.Status), nullableString(rec.Error),
		rec.IssuedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// ListByDevice returns the most recent commands for a device, newest first.
// limit defaults to 50 and is capped at 200.
func (l *SQLiteLog) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, device_id, command, payload, source, status, error, issued_at
		 FROM command_log
		 WHERE device_id = ?
		 ORDER BY issued_at DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var command, payload, source, status, issuedAt string
		var errText sql.NullString
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &command, &payload, &source, &status, &errText, &issuedAt); err != nil {
			return nil, fmt.Errorf("scanning command log row: %w", err)
		}
		rec.Command = Kind(command)
		rec.Envelope = json.RawMessage(payload)
		rec.Source = Source(source)
		rec.Status = Status(status)
		rec.Error = errText.String
		rec.IssuedAt, err = time.Parse(timeLayout, issuedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing issued_at %q: %w", issuedAt, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}
	return records, nil
}

// nullableString maps "" to NULL for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
