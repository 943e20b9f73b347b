// Package logging configures the slog logger shared by every mqttlog
// component.
//
// Each entry carries service and version attributes; components add their
// own with With("component", name). Attributes named password, token or
// secret are redacted before they are written.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr or a file path
//
// Payloads are logged at info level: the advisory output mirrors what the
// recorder writes to its log file.
package logging
