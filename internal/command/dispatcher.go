package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gridcontrol/internal/infrastructure/mqtt"
	"github.com/nerrad567/gridcontrol/internal/metrics"
)

// Logger is the logging interface used by the dispatcher.
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

// Publisher hands bytes to the transport. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Log persists dispatched commands.
type Log interface {
	Append(ctx context.Context, rec Record) error
}

// defaultLogTimeout bounds a command log write when none is configured.
const defaultLogTimeout = 2 * time.Second

// DispatcherDeps holds the collaborators of a Dispatcher.
// Only Publisher is required.
type DispatcherDeps struct {
	Publisher Publisher
	Topics    mqtt.Topics
	QoS       byte
	Log       Log

	// LogTimeout bounds each command log write (default 2s).
	LogTimeout time.Duration

	Metrics *metrics.Metrics
	Logger  Logger
}

// Dispatcher publishes command envelopes to device command topics.
//
// Delivery is fire-and-forget: Send returns once the publish has been
// issued. Commands dropped because the broker is unreachable are reported
// with ErrTransportUnavailable and are not retried.
type Dispatcher struct {
	publisher  Publisher
	topics     mqtt.Topics
	qos        byte
	log        Log
	logTimeout time.Duration
	metrics    *metrics.Metrics
	logger     Logger

	now   func() time.Time
	newID func() string
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	logTimeout := deps.LogTimeout
	if logTimeout <= 0 {
		logTimeout = defaultLogTimeout
	}
	return &Dispatcher{
		publisher:  deps.Publisher,
		topics:     deps.Topics,
		qos:        deps.QoS,
		log:        deps.Log,
		logTimeout: logTimeout,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Send builds the envelope for intent and publishes it on the device's
// command topic.
//
// Parameters:
//   - ctx: Parent of the command log write, which is also bounded by LogTimeout
//   - intent: What to send and to whom
//   - source: Engine or operator, recorded in the command log
//
// Returns:
//   - Envelope: The message as published (also on failure, for logging)
//   - error: ErrInvalidDeviceID, ErrUnknownKind, ErrTransportUnavailable,
//     or a wrapped publish error
func (d *Dispatcher) Send(ctx context.Context, intent Intent, source Source) (Envelope, error) {
	if err := ValidateDeviceID(intent.DeviceID); err != nil {
		return Envelope{}, err
	}
	if !intent.Kind.Valid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, intent.Kind)
	}

	env := Envelope{
		ID:        d.newID(),
		DeviceID:  intent.DeviceID,
		Command:   intent.Kind,
		Payload:   intent.Payload,
		Timestamp: d.now().UTC(),
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return env, fmt.Errorf("encoding %s envelope: %w", intent.Kind, err)
	}

	topic := d.topics.Command(intent.DeviceID)
	sendErr := d.publisher.Publish(topic, payload, d.qos, false)
	if errors.Is(sendErr, mqtt.ErrNotConnected) {
		sendErr = fmt.Errorf("%w: %w", ErrTransportUnavailable, sendErr)
	}

	status := StatusPublished
	result := metrics.ResultPublished
	if sendErr != nil {
		status = StatusFailed
		result = metrics.ResultFailed
		d.logger.Warn("command not published",
			"device_id", intent.DeviceID,
			"command", string(intent.Kind),
			"source", string(source),
			"error", sendErr,
		)
	} else {
		d.logger.Info("command issued",
			"device_id", intent.DeviceID,
			"command", string(intent.Kind),
			"source", string(source),
			"command_id", env.ID,
		)
	}
	d.metrics.CommandDispatched(string(intent.Kind), string(source), result)
	d.record(ctx, env, payload, source, status, sendErr)

	return env, sendErr
}

// record appends to the command log. Failures are logged only.
func (d *Dispatcher) record(ctx context.Context, env Envelope, encoded []byte, source Source, status Status, sendErr error) {
	if d.log == nil {
		return
	}

	rec := Record{
		ID:       env.ID,
		DeviceID: env.DeviceID,
		Command:  env.Command,
		Envelope: encoded,
		Source:   source,
		Status:   status,
		IssuedAt: env.Timestamp,
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}

	ctx, cancel := context.WithTimeout(ctx, d.logTimeout)
	defer cancel()

	if err := d.log.Append(ctx, rec); err != nil {
		d.logger.Warn("command log write failed",
			"device_id", env.DeviceID,
			"command_id", env.ID,
			"error", err,
		)
	}
}
