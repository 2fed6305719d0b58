// Package command turns command intents into envelopes on the device
// command topic and keeps an audit log of everything sent.
package command

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind is the command name carried in the envelope's "command" field.
type Kind string

// Command kinds understood by field devices.
const (
	KindSetPowerState       Kind = "SET_POWER_STATE"
	KindSetActivePowerLimit Kind = "SET_ACTIVE_POWER_LIMIT"
	KindSetPeakShaving      Kind = "SET_PEAK_SHAVING"
	KindBatteryDischarge    Kind = "BATTERY_DISCHARGE"
	KindSetExportLimit      Kind = "SET_EXPORT_LIMIT"
	KindSetTariffSchedule   Kind = "SET_TARIFF_SCHEDULE"
)

// Valid reports whether k is a known command kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSetPowerState, KindSetActivePowerLimit, KindSetPeakShaving,
		KindBatteryDischarge, KindSetExportLimit, KindSetTariffSchedule:
		return true
	}
	return false
}

// Source records who asked for a command.
type Source string

const (
	SourceEngine   Source = "engine"
	SourceOperator Source = "operator"
)

// Power states for SET_POWER_STATE.
const (
	PowerOn  = "ON"
	PowerOff = "OFF"
)

// maxDeviceIDLength bounds device IDs accepted from operators.
const maxDeviceIDLength = 128

// Intent is a decided action that has not been sent yet.
type Intent struct {
	DeviceID string
	Kind     Kind
	Payload  any
	IssuedAt time.Time
}

// Envelope is the JSON document published on {product}/{domain}/{deviceId}/command.
type Envelope struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Command   Kind      `json:"command"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload shapes per command kind.
type (
	PowerStatePayload struct {
		State string `json:"state"`
	}

	PowerLimitPayload struct {
		Limit float64 `json:"limit"`
	}

	PeakShavingPayload struct {
		Enabled   bool    `json:"enabled"`
		Threshold float64 `json:"threshold"`
	}

	BatteryDischargePayload struct {
		TargetKW float64 `json:"targetKw"`
	}

	ExportLimitPayload struct {
		Limit float64 `json:"limit"`
	}

	TariffSchedulePayload struct {
		Schedule json.RawMessage `json:"schedule"`
	}
)

// ValidateDeviceID rejects IDs that are empty, too long, or contain MQTT
// separators or wildcards.
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" || len(deviceID) > maxDeviceIDLength {
		return ErrInvalidDeviceID
	}
	if strings.ContainsAny(deviceID, "/+#") || strings.TrimSpace(deviceID) != deviceID {
		return ErrInvalidDeviceID
	}
	return nil
}
