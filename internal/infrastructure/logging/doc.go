// Package logging provides structured logging for the grid control gateway.
//
// It wraps log/slog so every component logs with the same format and
// default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("sample received", "device_id", id, "generation_kw", kw)
//	logger.Error("command publish failed", "error", err)
//
// Never log broker passwords or InfluxDB tokens.
package logging
