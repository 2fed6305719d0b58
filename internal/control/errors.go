package control

import "errors"

// Domain errors for the control package.
var (
	// ErrInvalidDeviceID is returned when an operator names an unusable device.
	ErrInvalidDeviceID = errors.New("control: invalid device id")

	// ErrInvalidThreshold is returned for a negative or non-finite threshold.
	ErrInvalidThreshold = errors.New("control: invalid threshold")

	// ErrInvalidLimit is returned for an out-of-range power or export limit.
	ErrInvalidLimit = errors.New("control: invalid limit")

	// ErrInvalidSchedule is returned when a tariff schedule is not a JSON object.
	ErrInvalidSchedule = errors.New("control: invalid tariff schedule")

	// ErrLoadUnavailable is returned when no site load figure can be produced.
	ErrLoadUnavailable = errors.New("control: site load unavailable")
)
