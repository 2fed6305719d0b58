package telemetry

import "errors"

// Sentinel errors for message routing and recording.
var (
	// ErrInvalidTopic indicates a topic that does not match
	// {product}/{domain}/{deviceId}/{kind}.
	ErrInvalidTopic = errors.New("telemetry: invalid topic")

	// ErrMalformedPayload indicates a payload that could not be decoded.
	ErrMalformedPayload = errors.New("telemetry: malformed payload")

	// ErrUnknownKind indicates a well-formed topic with an unhandled kind.
	ErrUnknownKind = errors.New("telemetry: unknown message kind")
)
