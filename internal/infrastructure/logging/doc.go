// Package logging builds the slog loggers DeskPilot components share.
//
// Every entry carries service and version; components add their own tag
// through Component. Attributes keyed password, secret or token are
// redacted, but callers should still log a secret's name, never its value.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
package logging
