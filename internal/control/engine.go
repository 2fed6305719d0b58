package control

import (
	"context"
	"math"
	"time"

	"github.com/nerrad567/gridcontrol/internal/command"
	"github.com/nerrad567/gridcontrol/internal/metrics"
	"github.com/nerrad567/gridcontrol/internal/telemetry"
)

// Rule names reported in decisions and metrics.
const (
	RulePeakShaving = "peak_shaving"
	RuleExportLimit = "export_limit"
)

// measurementDecision is the InfluxDB measurement for engine decisions.
const measurementDecision = "control_decision"

// Defaults applied when EngineDeps leaves them zero.
const (
	defaultDerateBase = 100.0
	maxPowerLimit     = 100.0
)

// ConfigReader is the read side of the configuration store.
type ConfigReader interface {
	Get(deviceID string) (Config, bool)
	ExportLimit(deviceID string) (float64, bool)
}

// Dispatcher sends command intents. *command.Dispatcher satisfies it.
type Dispatcher interface {
	Send(ctx context.Context, intent command.Intent, source command.Source) (command.Envelope, error)
}

// PointWriter queues time-series points. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
}

// Logger is the logging interface used by the package.
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

// Decision describes one evaluation of the control law.
type Decision struct {
	DeviceID     string
	SiteLoadKW   float64
	GenerationKW float64
	NetLoadKW    float64
	Rules        []string
}

// EngineDeps holds the collaborators and settings of an Engine.
// Configs and Load are required.
type EngineDeps struct {
	Configs ConfigReader
	Load    LoadProvider

	// ExportLimitKW applies to devices without an operator override.
	ExportLimitKW float64

	// DerateBase is the limit from which the export excess is subtracted.
	// Zero means 100.
	DerateBase float64

	Dispatcher Dispatcher
	Points     PointWriter
	Metrics    *metrics.Metrics
	Logger     Logger
}

// Engine applies the per-sample control law.
//
// Thread Safety: Decide and HandleSample are safe for concurrent use as
// long as the ConfigReader and LoadProvider are.
type Engine struct {
	configs       ConfigReader
	load          LoadProvider
	exportLimitKW float64
	derateBase    float64
	dispatcher    Dispatcher
	points        PointWriter
	metrics       *metrics.Metrics
	logger        Logger
}

// NewEngine creates a decision engine.
func NewEngine(deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	derate := deps.DerateBase
	if derate == 0 {
		derate = defaultDerateBase
	}
	return &Engine{
		configs:       deps.Configs,
		load:          deps.Load,
		exportLimitKW: deps.ExportLimitKW,
		derateBase:    derate,
		dispatcher:    deps.Dispatcher,
		points:        deps.Points,
		metrics:       deps.Metrics,
		logger:        logger,
	}
}

// Decide evaluates one sample and returns the command intents it calls for.
//
// Intents carry the sample's receive time as IssuedAt, so evaluating the
// same sample twice yields identical intents.
//
// Parameters:
//   - ctx: Passed to the LoadProvider
//   - sample: The telemetry sample to evaluate
//
// Returns:
//   - []command.Intent: Zero, one or two intents
//   - Decision: The figures the intents were derived from
//   - error: ErrLoadUnavailable (wrapped) when no site load is available
func (e *Engine) Decide(ctx context.Context, sample telemetry.Sample) ([]command.Intent, Decision, error) {
	decision := Decision{
		DeviceID:     sample.DeviceID,
		GenerationKW: sample.GenerationKW,
	}

	siteLoad, err := e.load.SiteLoad(ctx, sample)
	if err != nil {
		return nil, decision, err
	}
	decision.SiteLoadKW = siteLoad
	decision.NetLoadKW = siteLoad - sample.GenerationKW

	var intents []command.Intent

	if cfg, ok := e.configs.Get(sample.DeviceID); ok && cfg.PeakShavingEnabled && decision.NetLoadKW > cfg.ThresholdKW {
		intents = append(intents, command.Intent{
			DeviceID: sample.DeviceID,
			Kind:     command.KindBatteryDischarge,
			Payload:  command.BatteryDischargePayload{TargetKW: decision.NetLoadKW - cfg.ThresholdKW},
			IssuedAt: sample.ReceivedAt,
		})
		decision.Rules = append(decision.Rules, RulePeakShaving)
	}

	exportLimit := e.exportLimitFor(sample.DeviceID)
	if export := -decision.NetLoadKW; decision.NetLoadKW < 0 && export > exportLimit {
		limit := clamp(e.derateBase-(export-exportLimit), 0, maxPowerLimit)
		intents = append(intents, command.Intent{
			DeviceID: sample.DeviceID,
			Kind:     command.KindSetActivePowerLimit,
			Payload:  command.PowerLimitPayload{Limit: limit},
			IssuedAt: sample.ReceivedAt,
		})
		decision.Rules = append(decision.Rules, RuleExportLimit)
	}

	return intents, decision, nil
}

// HandleSample is the telemetry received handler. It decides, dispatches
// each intent with the engine as source and records the decision.
// Failures are logged; nothing is returned to the ingestion path.
func (e *Engine) HandleSample(ctx context.Context, sample telemetry.Sample) {
	start := time.Now()

	intents, decision, err := e.Decide(ctx, sample)
	if err != nil {
		e.logger.Warn("control decision skipped", "device_id", sample.DeviceID, "error", err)
		return
	}
	e.metrics.DecisionMade(time.Since(start), decision.Rules...)

	if len(intents) > 0 {
		e.logger.Debug("control decision",
			"device_id", decision.DeviceID,
			"net_load_kw", decision.NetLoadKW,
			"rules", decision.Rules,
		)
	}

	if e.dispatcher != nil {
		for _, intent := range intents {
			e.dispatcher.Send(ctx, intent, command.SourceEngine) //nolint:errcheck // dispatcher logs and records failures
		}
	}

	if e.points != nil {
		e.points.WritePoint(measurementDecision,
			map[string]string{"device_id": decision.DeviceID},
			map[string]any{
				"site_load_kw":  decision.SiteLoadKW,
				"generation_kw": decision.GenerationKW,
				"net_load_kw":   decision.NetLoadKW,
				"commands":      len(intents),
			},
			sample.ReceivedAt,
		)
	}
}

// exportLimitFor returns the operator override or the default ceiling.
func (e *Engine) exportLimitFor(deviceID string) float64 {
	if limit, ok := e.configs.ExportLimit(deviceID); ok {
		return limit
	}
	return e.exportLimitKW
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
