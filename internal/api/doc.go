// Package api implements the operator-facing HTTP API of the gateway.
//
// This package provides:
//   - Device control endpoints (start, stop, power limit, peak shaving,
//     export limit, tariff) that return {success, message} once the command
//     has been handed to the broker
//   - Read endpoints for the control configuration, recent telemetry and
//     the command log of a device
//   - A health endpoint reporting broker connectivity
//   - Prometheus exposition at /metrics
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Status Codes
//
// Command endpoints answer 200 when the publish was issued, 400 when the
// request is invalid and 503 when the broker is not connected. Success does
// not mean the device applied the command.
package api
