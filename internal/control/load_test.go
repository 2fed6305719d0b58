package control

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gridcontrol/internal/infrastructure/config"
	"github.com/nerrad567/gridcontrol/internal/telemetry"
)

func TestRandomLoad_Bounds(t *testing.T) {
	r := NewRandomLoad(30, 100)
	for i := 0; i < 1000; i++ {
		v, err := r.SiteLoad(context.Background(), telemetry.Sample{})
		if err != nil {
			t.Fatal(err)
		}
		if v < 30 || v >= 100 {
			t.Fatalf("SiteLoad() = %v, want [30, 100)", v)
		}
	}
}

func TestRandomLoad_Deterministic(t *testing.T) {
	r := &RandomLoad{MinKW: 30, MaxKW: 100, float: func() float64 { return 0.5 }}
	v, _ := r.SiteLoad(context.Background(), telemetry.Sample{})
	if v != 65 {
		t.Errorf("SiteLoad() = %v, want 65", v)
	}
}

func TestMeterLoad(t *testing.T) {
	withField := telemetry.Sample{DeviceID: "P1", Fields: map[string]any{"kwConsumption": 42.0}}
	without := telemetry.Sample{DeviceID: "P1", Fields: map[string]any{"kwGeneration": 3.0}}

	m := MeterLoad{Field: "kwConsumption", Fallback: FixedLoad(10)}
	if v, err := m.SiteLoad(context.Background(), withField); err != nil || v != 42 {
		t.Errorf("SiteLoad(with field) = %v, %v; want 42", v, err)
	}
	if v, err := m.SiteLoad(context.Background(), without); err != nil || v != 10 {
		t.Errorf("SiteLoad(fallback) = %v, %v; want 10", v, err)
	}

	noFallback := MeterLoad{Field: "kwConsumption"}
	if _, err := noFallback.SiteLoad(context.Background(), without); !errors.Is(err, ErrLoadUnavailable) {
		t.Errorf("SiteLoad() error = %v, want ErrLoadUnavailable", err)
	}
}

func TestNewLoadProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ControlLoadConfig
		check   func(LoadProvider) bool
		wantErr bool
	}{
		{"random", config.ControlLoadConfig{Source: "random", MinKW: 1, MaxKW: 2},
			func(p LoadProvider) bool { _, ok := p.(*RandomLoad); return ok }, false},
		{"fixed", config.ControlLoadConfig{Source: "fixed", FixedKW: 7},
			func(p LoadProvider) bool { v, ok := p.(FixedLoad); return ok && v == 7 }, false},
		{"meter", config.ControlLoadConfig{Source: "meter", MeterField: "kw"},
			func(p LoadProvider) bool { m, ok := p.(MeterLoad); return ok && m.Field == "kw" && m.Fallback != nil }, false},
		{"unknown", config.ControlLoadConfig{Source: "sensor"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewLoadProvider(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("NewLoadProvider() should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLoadProvider() error = %v", err)
			}
			if !tt.check(p) {
				t.Errorf("NewLoadProvider() = %#v", p)
			}
		})
	}
}
