package control

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/nerrad567/gridcontrol/internal/infrastructure/config"
	"github.com/nerrad567/gridcontrol/internal/telemetry"
)

// LoadProvider supplies the site consumption figure for a sample.
type LoadProvider interface {
	SiteLoad(ctx context.Context, sample telemetry.Sample) (float64, error)
}

// RandomLoad draws site load uniformly from [MinKW, MaxKW).
// It stands in for a meter on sites that do not report consumption.
type RandomLoad struct {
	MinKW float64
	MaxKW float64

	float func() float64
}

// NewRandomLoad creates a RandomLoad over [minKW, maxKW).
func NewRandomLoad(minKW, maxKW float64) *RandomLoad {
	return &RandomLoad{MinKW: minKW, MaxKW: maxKW, float: rand.Float64}
}

// SiteLoad implements LoadProvider.
func (r *RandomLoad) SiteLoad(context.Context, telemetry.Sample) (float64, error) {
	f := r.float
	if f == nil {
		f = rand.Float64
	}
	return r.MinKW + f()*(r.MaxKW-r.MinKW), nil
}

// FixedLoad reports a constant site load.
type FixedLoad float64

// SiteLoad implements LoadProvider.
func (l FixedLoad) SiteLoad(context.Context, telemetry.Sample) (float64, error) {
	return float64(l), nil
}

// MeterLoad reads site load from a numeric field of the telemetry payload.
// When the field is absent it asks Fallback, or fails with
// ErrLoadUnavailable when there is none.
type MeterLoad struct {
	Field    string
	Fallback LoadProvider
}

// SiteLoad implements LoadProvider.
func (m MeterLoad) SiteLoad(ctx context.Context, sample telemetry.Sample) (float64, error) {
	if kw, ok := sample.Number(m.Field); ok {
		return kw, nil
	}
	if m.Fallback != nil {
		return m.Fallback.SiteLoad(ctx, sample)
	}
	return 0, fmt.Errorf("%w: %s missing from %s telemetry", ErrLoadUnavailable, m.Field, sample.DeviceID)
}

// NewLoadProvider builds the provider selected by control.load.source.
// The meter source falls back to a random draw over [min_kw, max_kw).
func NewLoadProvider(cfg config.ControlLoadConfig) (LoadProvider, error) {
	switch cfg.Source {
	case config.LoadSourceRandom, "":
		return NewRandomLoad(cfg.MinKW, cfg.MaxKW), nil
	case config.LoadSourceFixed:
		return FixedLoad(cfg.FixedKW), nil
	case config.LoadSourceMeter:
		return MeterLoad{Field: cfg.MeterField, Fallback: NewRandomLoad(cfg.MinKW, cfg.MaxKW)}, nil
	default:
		return nil, fmt.Errorf("unknown load source %q", cfg.Source)
	}
}
