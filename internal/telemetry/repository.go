package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// timeLayout keeps stored timestamps sortable as text.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// SampleRecord is a stored telemetry sample.
type SampleRecord struct {
	ID int64 `json:"id"`
	Sample
}

// SQLiteRepository stores samples in the telemetry_samples table.
// It implements Recorder.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite telemetry repository.
//
// Parameters:
//   - db: Open SQLite connection with the telemetry_samples table migrated
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Name implements Recorder.
func (r *SQLiteRepository) Name() string { return "sqlite" }

// Record implements Recorder by inserting the sample.
func (r *SQLiteRepository) Record(ctx context.Context, sample Sample) error {
	if sample.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}

	payload := string(sample.Raw)
	if payload == "" {
		payload = "{}"
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO telemetry_samples (device_id, generation_kw, received_at, payload) VALUES (?, ?, ?, ?)",
		sample.DeviceID,
		sample.GenerationKW,
		sample.ReceivedAt.UTC().Format(timeLayout),
		payload,
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry sample: %w", err)
	}
	return nil
}

// ListByDevice returns recent samples for a device, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []SampleRecord: Samples ordered by received_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]SampleRecord, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, generation_kw, received_at, payload
		 FROM telemetry_samples
		 WHERE device_id = ?
		 ORDER BY received_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry samples: %w", err)
	}
	defer rows.Close()

	records := make([]SampleRecord, 0, limit)
	for rows.Next() {
		var rec SampleRecord
		var receivedAt, payload string
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.GenerationKW, &receivedAt, &payload); err != nil {
			return nil, fmt.Errorf("scanning telemetry sample: %w", err)
		}
		rec.ReceivedAt, err = time.Parse(timeLayout, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing received_at %q: %w", receivedAt, err)
		}
		rec.Raw = []byte(payload)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry samples: %w", err)
	}
	return records, nil
}
