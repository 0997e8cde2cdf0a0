// Package engine holds the flow definition model logic.
//
// Includes:
//   - parser.go: loading FlowSpec documents from JSON or YAML files
//   - dag.go:    building the flow dependency graph and validating it
//
// Engine knows the structure of a flow document and which flows may run
// after which. It does not submit jobs; that is the orchestrator's job.
package engine
