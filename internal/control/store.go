package control

import (
	"fmt"
	"math"
	"sync"
)

// Config is the peak-shaving configuration of one device.
type Config struct {
	DeviceID           string  `json:"device_id"`
	PeakShavingEnabled bool    `json:"peak_shaving_enabled"`
	ThresholdKW        float64 `json:"threshold_kw"`
}

// Store is the in-memory device configuration store.
//
// Entries are created on first configuration and live for the process
// lifetime. Disabling peak shaving keeps the entry and its threshold.
//
// Thread Safety: All methods are safe for concurrent use. Each update is
// an atomic read-modify-write of one device's entry.
type Store struct {
	mu           sync.RWMutex
	configs      map[string]Config
	exportLimits map[string]float64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		configs:      make(map[string]Config),
		exportLimits: make(map[string]float64),
	}
}

// SetPeakShaving creates or overwrites the entry for deviceID.
func (s *Store) SetPeakShaving(deviceID string, enabled bool, thresholdKW float64) (Config, error) {
	return s.UpdatePeakShaving(deviceID, enabled, &thresholdKW)
}

// UpdatePeakShaving sets the enabled flag and, when thresholdKW is non-nil,
// the threshold. A nil threshold keeps the stored value, or 0 for a device
// that has no entry yet.
func (s *Store) UpdatePeakShaving(deviceID string, enabled bool, thresholdKW *float64) (Config, error) {
	if thresholdKW != nil {
		if err := validateThreshold(*thresholdKW); err != nil {
			return Config{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[deviceID]
	if !ok {
		cfg = Config{DeviceID: deviceID}
	}
	cfg.PeakShavingEnabled = enabled
	if thresholdKW != nil {
		cfg.ThresholdKW = *thresholdKW
	}
	s.configs[deviceID] = cfg

	return cfg, nil
}

// Get returns the configuration for deviceID. ok is false when peak shaving
// was never configured, which callers treat as disabled.
func (s *Store) Get(deviceID string) (cfg Config, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok = s.configs[deviceID]
	return cfg, ok
}

// SetExportLimit records an operator export ceiling for deviceID.
func (s *Store) SetExportLimit(deviceID string, limitKW float64) error {
	if err := validateExportLimit(limitKW); err != nil {
		return err
	}

	s.mu.Lock()
	s.exportLimits[deviceID] = limitKW
	s.mu.Unlock()
	return nil
}

// ExportLimit returns the operator export ceiling for deviceID, if any.
func (s *Store) ExportLimit(deviceID string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit, ok := s.exportLimits[deviceID]
	return limit, ok
}

// Len returns the number of configured devices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs)
}

func validateThreshold(kw float64) error {
	if kw < 0 || math.IsNaN(kw) || math.IsInf(kw, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, kw)
	}
	return nil
}

func validateExportLimit(kw float64) error {
	if kw < 0 || math.IsNaN(kw) || math.IsInf(kw, 0) {
		return fmt.Errorf("%w: export limit %v", ErrInvalidLimit, kw)
	}
	return nil
}
