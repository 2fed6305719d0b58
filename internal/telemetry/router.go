package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gridcontrol/internal/infrastructure/mqtt"
	"github.com/nerrad567/gridcontrol/internal/metrics"
)

// topicSegments is the segment count of {product}/{domain}/{deviceId}/{kind}.
const topicSegments = 4

// generationField is the payload key carrying generation in kW.
const generationField = "kwGeneration"

// Ingester accepts decoded telemetry samples.
type Ingester interface {
	Ingest(ctx context.Context, sample Sample)
}

// AlertHandler accepts decoded device alerts.
type AlertHandler interface {
	HandleAlert(ctx context.Context, alert Alert) error
}

// RouterDeps holds the collaborators of a Router.
type RouterDeps struct {
	Topics   mqtt.Topics
	Pipeline Ingester
	Alerts   AlertHandler
	Metrics  *metrics.Metrics
	Logger   Logger
}

// Router dispatches inbound transport messages by topic.
type Router struct {
	topics   mqtt.Topics
	pipeline Ingester
	alerts   AlertHandler
	metrics  *metrics.Metrics
	logger   Logger
	now      func() time.Time
}

// NewRouter creates a Router. Pipeline and Alerts may be nil, in which case
// the corresponding messages are decoded and then discarded.
func NewRouter(deps RouterDeps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Router{
		topics:   deps.Topics,
		pipeline: deps.Pipeline,
		alerts:   deps.Alerts,
		metrics:  deps.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// ParseTopic splits a topic into device ID and message kind.
//
// The topic must have exactly four non-empty segments and its first two
// must match the router's product and domain.
func (r *Router) ParseTopic(topic string) (deviceID, kind string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != topicSegments {
		return "", "", fmt.Errorf("%w: %q has %d segments, want %d", ErrInvalidTopic, topic, len(parts), topicSegments)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", fmt.Errorf("%w: %q has an empty segment", ErrInvalidTopic, topic)
		}
	}
	if parts[0] != r.topics.Product || parts[1] != r.topics.Domain {
		return "", "", fmt.Errorf("%w: %q is outside %s/%s", ErrInvalidTopic, topic, r.topics.Product, r.topics.Domain)
	}
	return parts[2], parts[3], nil
}

// Handle is the transport callback. Messages that cannot be routed are
// logged and dropped; Handle never returns an error to the transport.
func (r *Router) Handle(topic string, payload []byte) error {
	kind, err := r.Route(context.Background(), topic, payload)
	if err != nil {
		r.metrics.MessageRouted(metricKind(kind), metrics.ResultDropped)
		r.logger.Warn("dropping message", "topic", topic, "error", err)
		return nil
	}
	r.metrics.MessageRouted(kind, metrics.ResultAccepted)
	return nil
}

// Route parses, decodes and dispatches one message, returning the message
// kind (empty when the topic could not be parsed).
func (r *Router) Route(ctx context.Context, topic string, payload []byte) (string, error) {
	deviceID, kind, err := r.ParseTopic(topic)
	if err != nil {
		return "", err
	}

	receivedAt := r.now().UTC()

	switch kind {
	case mqtt.KindTelemetry:
		sample, err := decodeSample(deviceID, payload, receivedAt)
		if err != nil {
			return kind, err
		}
		if r.pipeline != nil {
			r.pipeline.Ingest(ctx, sample)
		}
		return kind, nil

	case mqtt.KindAlert:
		alert, err := decodeAlert(deviceID, payload, receivedAt)
		if err != nil {
			return kind, err
		}
		if r.alerts != nil {
			if err := r.alerts.HandleAlert(ctx, alert); err != nil {
				r.logger.Warn("alert handling failed", "device_id", deviceID, "error", err)
			}
		}
		return kind, nil

	default:
		return kind, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// decodeSample builds a Sample from a telemetry payload.
func decodeSample(deviceID string, payload []byte, receivedAt time.Time) (Sample, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if fields == nil {
		return Sample{}, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedPayload)
	}

	gen, ok := fields[generationField].(float64)
	if !ok {
		return Sample{}, fmt.Errorf("%w: %s missing or not a number", ErrMalformedPayload, generationField)
	}

	return Sample{
		DeviceID:     deviceID,
		GenerationKW: gen,
		ReceivedAt:   receivedAt,
		Raw:          json.RawMessage(append([]byte(nil), payload...)),
		Fields:       fields,
	}, nil
}

// decodeAlert builds an Alert from an alert payload. The payload must be a
// JSON object; severity and message are kept only when they are strings.
func decodeAlert(deviceID string, payload []byte, receivedAt time.Time) (Alert, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return Alert{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if body == nil {
		return Alert{}, fmt.Errorf("%w: alert payload is not an object", ErrMalformedPayload)
	}

	return Alert{
		DeviceID:   deviceID,
		Severity:   stringField(body, "severity"),
		Message:    stringField(body, "message"),
		ReceivedAt: receivedAt,
		Raw:        json.RawMessage(append([]byte(nil), payload...)),
	}, nil
}

// stringField returns body[key] when it holds a JSON string, otherwise "".
func stringField(body map[string]json.RawMessage, key string) string {
	var v string
	if err := json.Unmarshal(body[key], &v); err != nil {
		return ""
	}
	return v
}

// metricKind keeps the kind label bounded for dropped messages.
func metricKind(kind string) string {
	switch kind {
	case mqtt.KindTelemetry, mqtt.KindAlert:
		return kind
	case "":
		return "invalid"
	default:
		return "unknown"
	}
}
