package domain

// JobStatus is the status of a single job run.
//
// Lifecycle:
//
//	PENDING → SUBMITTED → SUCCESS
//	                    ↘ FAILURE
type JobStatus string

const (
	// JobStatusPending means the owning flow has not started yet.
	JobStatusPending JobStatus = "pending"

	// JobStatusSubmitted means the job was sent to the server and has not settled.
	JobStatusSubmitted JobStatus = "submitted"

	// JobStatusSuccess means the job reached the "completed" state.
	JobStatusSuccess JobStatus = "success"

	// JobStatusFailure means the job ended in any other state or the submission failed.
	JobStatusFailure JobStatus = "failure"
)

// IsTerminal reports whether the status will not change any more.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusFailure:
		return true
	default:
		return false
	}
}

// String returns the string form of the status.
func (s JobStatus) String() string {
	return string(s)
}

// FlowStatus is the status of a flow within one execution.
//
// Lifecycle:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//
// A flow stays PENDING when a predecessor failed or never ran.
type FlowStatus string

const (
	// FlowStatusPending means the flow has not been started.
	FlowStatusPending FlowStatus = "pending"

	// FlowStatusRunning means the flow's jobs were submitted.
	FlowStatusRunning FlowStatus = "running"

	// FlowStatusSucceeded means every job of the flow ended in success.
	FlowStatusSucceeded FlowStatus = "succeeded"

	// FlowStatusFailed means every job settled and at least one failed.
	FlowStatusFailed FlowStatus = "failed"

	// FlowStatusInvalid means the flow was rejected by validation and never runs.
	FlowStatusInvalid FlowStatus = "invalid"
)

// IsTerminal reports whether the flow reached a final outcome.
func (s FlowStatus) IsTerminal() bool {
	switch s {
	case FlowStatusSucceeded, FlowStatusFailed, FlowStatusInvalid:
		return true
	default:
		return false
	}
}

// String returns the string form of the status.
func (s FlowStatus) String() string {
	return string(s)
}
