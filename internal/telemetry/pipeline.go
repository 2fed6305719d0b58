package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/gridcontrol/internal/metrics"
)

// defaultPersistTimeout bounds a recorder call when none is configured.
const defaultPersistTimeout = 2 * time.Second

// Recorder durably stores telemetry samples.
type Recorder interface {
	// Name identifies the recorder in logs and metrics.
	Name() string

	// Record stores one sample.
	Record(ctx context.Context, sample Sample) error
}

// SampleHandler is notified of every ingested sample ("telemetry received").
type SampleHandler func(ctx context.Context, sample Sample)

// PipelineDeps holds the collaborators of a Pipeline.
type PipelineDeps struct {
	Recorders      []Recorder
	PersistTimeout time.Duration
	Metrics        *metrics.Metrics
	Logger         Logger
}

// Pipeline records samples and raises the telemetry received event.
//
// Handlers run synchronously on the caller's goroutine after recording, in
// registration order. Register handlers before the first Ingest.
type Pipeline struct {
	recorders []Recorder
	timeout   time.Duration
	handlers  []SampleHandler
	metrics   *metrics.Metrics
	logger    Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	timeout := deps.PersistTimeout
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}
	return &Pipeline{
		recorders: deps.Recorders,
		timeout:   timeout,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// OnSample registers a handler for ingested samples.
func (p *Pipeline) OnSample(handler SampleHandler) {
	if handler != nil {
		p.handlers = append(p.handlers, handler)
	}
}

// Ingest records the sample with every recorder, then notifies handlers.
//
// Recorder failures are logged and counted but never stop the handlers.
func (p *Pipeline) Ingest(ctx context.Context, sample Sample) {
	for _, rec := range p.recorders {
		p.record(ctx, rec, sample)
	}

	for _, handle := range p.handlers {
		handle(ctx, sample)
	}
}

// record runs one recorder under the persist timeout.
func (p *Pipeline) record(ctx context.Context, rec Recorder, sample Sample) {
	rctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := rec.Record(rctx, sample); err != nil {
		p.metrics.PersistFailed(rec.Name())
		p.logger.Warn("telemetry persistence failed",
			"recorder", rec.Name(),
			"device_id", sample.DeviceID,
			"error", err,
		)
	}
}
