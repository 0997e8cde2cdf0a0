package orchestrator

import "errors"

var (
	// ErrFlowNotFound means the flow is not part of the run.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrJobNotFound means the job index is out of range for the flow.
	ErrJobNotFound = errors.New("job not found in flow")

	// ErrUnexpectedOutcome means an outcome arrived for a job that was not submitted
	// or already settled.
	ErrUnexpectedOutcome = errors.New("unexpected job outcome")

	// ErrNonTerminalOutcome means an outcome status was neither success nor failure.
	ErrNonTerminalOutcome = errors.New("job outcome is not terminal")

	// ErrAlreadyRunning means Run was called twice on one scheduler.
	ErrAlreadyRunning = errors.New("scheduler already running")

	// ErrSchedulerStopped means the scheduler loop has exited.
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrNoJobClient means the scheduler was created without a job client.
	ErrNoJobClient = errors.New("no job client configured")
)
