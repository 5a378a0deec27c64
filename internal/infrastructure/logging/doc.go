// Package logging provides structured logging for the homecontrol hub.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level filtering.
//
// # Configuration
//
// Logging is configured by the logging domain of configuration.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(settings.Logging, version)
//	logger.Info("module loaded", "module", "mqttbridge")
//
// Kernel packages accept a narrow Logger interface (Debug/Info/Warn/Error)
// which *Logger satisfies through its embedded *slog.Logger.
//
// Never log broker passwords or InfluxDB tokens.
package logging
