// Package logging provides structured logging for Cellgate Core.
//
// It wraps log/slog so every component logs through the same handler with
// the same default fields (service, version).
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	hubLog := logger.Component("hub")
//	hubLog.Info("device authenticated", "device_id", id)
//
// Never log device tokens, provisioning keys or JWTs. Phone numbers and
// message bodies are logged only at debug level.
package logging
