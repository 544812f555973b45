// Package logging assembles structured slog loggers and formatting helpers used
// across kettle.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes standard attribute keys so compile, discovery, and
// watch code tag log lines with the same source/output/run fields. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
