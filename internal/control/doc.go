// Package control holds per-device control configuration and the control
// law applied to every telemetry sample.
//
// Store is the keyed configuration store. Engine reads it, asks a
// LoadProvider for site consumption, and turns each sample into zero, one
// or two command intents:
//
//	netLoad = siteLoad - generation          (positive = import)
//	peak shaving: netLoad > threshold        -> BATTERY_DISCHARGE(netLoad - threshold)
//	export limit: -netLoad > exportLimit     -> SET_ACTIVE_POWER_LIMIT(derate)
//
// The engine keeps no state between samples, so feeding it the same sample
// twice yields the same intents twice.
//
// Controller is the operator surface: start/stop, power limit, peak shaving,
// export limit and tariff. Every operation goes through the same command
// dispatcher the engine uses.
package control
