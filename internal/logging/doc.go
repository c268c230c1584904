// Package logging assembles structured slog loggers and formatting helpers used
// across markerflow.
//
// It owns the console and JSON handlers, mirrors console output into a JSON
// log file through a fanout handler, and exposes context helpers so pipeline
// code tags lines with the run correlation ID and the input file being
// processed. A no-op logger is provided for tests and wiring code.
package logging
