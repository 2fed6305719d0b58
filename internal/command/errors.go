package command

import "errors"

// Domain-specific errors for command dispatch.
var (
	// ErrInvalidDeviceID is returned for empty device IDs or IDs that
	// would change the shape of the command topic.
	ErrInvalidDeviceID = errors.New("command: invalid device ID")

	// ErrUnknownKind is returned for command kinds devices do not understand.
	ErrUnknownKind = errors.New("command: unknown command kind")

	// ErrTransportUnavailable is returned when the broker session is down
	// and the command was dropped.
	ErrTransportUnavailable = errors.New("command: transport unavailable")
)
