// Package cli implements the sasflow command line tool.
//
// # Overview
//
// Command groups:
//   - flow: execute, validate, watch
//   - results: show
//   - target: list
//
// Each group is created by a factory function (NewFlowCmd and so on) that
// takes outputFn, a closure creating the Output after the persistent flags
// are parsed.
//
// # Output
//
// Output prints tables (text/tabwriter) by default and JSON with --json.
// Data goes to stdout, messages (Success/Warn/Error) to stderr, so
//
//	sasflow results show -c results.csv --json | jq .
//
// works. Output also implements orchestrator.Reporter: the progress of a run
// is printed as coloured status lines, one per settled job and flow.
package cli
