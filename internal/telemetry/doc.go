// Package telemetry provides logging and metrics.
//
// Includes:
//   - logging.go: structured logging through slog
//   - metrics.go: Prometheus metrics for job and flow outcomes
//
// Diagnostic logs go to stderr; stdout is left to the status lines printed
// by the CLI.
package telemetry
