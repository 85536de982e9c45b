// Package logging provides structured logging for the adapter service.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level and format handling.
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
//	logger := logging.New(cfg.Logging, version)
//	adapterLog := logger.ForAdapter("living_room_hub", "hub")
//	adapterLog.Info("socket reopened", "attempt", 2)
//
// *Logger satisfies the small Logger interfaces declared by the adapter,
// manager and api packages, so those packages never import slog directly.
//
// # Security
//
// Attributes keyed password, access_token, token, secret or authorization
// (or ending in _<one of those>) are written as [REDACTED]. Do not smuggle
// credentials under other keys.
package logging
