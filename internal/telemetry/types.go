package telemetry

import (
	"encoding/json"
	"time"
)

// Sample is one telemetry report from a device.
//
// Samples are built by the Router and never modified afterwards.
type Sample struct {
	// DeviceID is the third topic segment.
	DeviceID string `json:"device_id"`

	// GenerationKW is the instantaneous generation reported as kwGeneration.
	GenerationKW float64 `json:"generation_kw"`

	// ReceivedAt is the gateway's receive time (UTC).
	ReceivedAt time.Time `json:"received_at"`

	// Raw is the payload exactly as received.
	Raw json.RawMessage `json:"payload"`

	// Fields holds the decoded payload, including device-specific extras.
	Fields map[string]any `json:"-"`
}

// Number returns a numeric payload field.
func (s Sample) Number(field string) (float64, bool) {
	v, ok := s.Fields[field]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Alert is a device-raised alert.
type Alert struct {
	DeviceID   string          `json:"device_id"`
	Severity   string          `json:"severity,omitempty"`
	Message    string          `json:"message,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Raw        json.RawMessage `json:"payload"`
}

// Logger is the logging interface used throughout the package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
