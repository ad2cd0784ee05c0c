// Package logging configures the daemon's log/slog logger.
//
// Records carry service=platformd and the build version. The output is
// JSON by default and goes to stdout, stderr or an append-only file:
//
//	logging:
//	  level: info        # debug, info, warn, error
//	  format: json       # json, text
//	  output: /data/log/platformd/current
//
// Component loggers share the root level, so SetLevel and ToggleDebug
// (bound to SIGUSR1) reach every package at once. Broker passwords and
// the InfluxDB token are never logged.
package logging
