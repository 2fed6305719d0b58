package telemetry

import (
	"context"
	"database/sql"
	"fmt"
)

// AlertSink records device alerts in the device_alerts table and logs them.
type AlertSink struct {
	db     *sql.DB
	logger Logger
}

// NewAlertSink creates an alert sink. db may be nil to only log alerts.
func NewAlertSink(db *sql.DB, logger Logger) *AlertSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &AlertSink{db: db, logger: logger}
}

// HandleAlert implements AlertHandler.
func (s *AlertSink) HandleAlert(ctx context.Context, alert Alert) error {
	s.logger.Warn("device alert",
		"device_id", alert.DeviceID,
		"severity", alert.Severity,
		"message", alert.Message,
	)

	if s.db == nil {
		return nil
	}

	payload := string(alert.Raw)
	if payload == "" {
		payload = "{}"
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO device_alerts (device_id, severity, message, payload, received_at) VALUES (?, ?, ?, ?, ?)",
		alert.DeviceID,
		nullableString(alert.Severity),
		nullableString(alert.Message),
		payload,
		alert.ReceivedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting device alert: %w", err)
	}
	return nil
}

// nullableString maps "" to NULL for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
