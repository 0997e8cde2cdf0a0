// Package orchestrator executes a flow graph against a job client.
//
// The Scheduler is responsible for:
//   - starting root flows and submitting all of their jobs at once
//   - saving the log and the result row of every settled job
//   - deciding when a flow succeeded or failed
//   - starting a successor once all of its predecessors succeeded
//   - reporting the outcome of each job and flow
//
// Job goroutines only report outcomes; all status changes happen on the
// scheduler loop, one outcome at a time.
package orchestrator
