// Package logging provides structured logging for the doorbell relay.
//
// It wraps Go's standard log/slog package so every component logs with the
// same handler, level and default fields (service, version).
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("relay started", "broker", cfg.MQTT.Broker.Addr())
//
// Attributes keyed password, secret or token are written as [REDACTED];
// other keys are not inspected, so never log credentials under them.
package logging
