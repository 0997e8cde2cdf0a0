package sas

import (
	"errors"
	"fmt"
)

var (
	// ErrContextNotFound means no compute context with the requested name.
	ErrContextNotFound = errors.New("compute context not found")

	// ErrJobNotFound means no job definition at the requested path.
	ErrJobNotFound = errors.New("job definition not found")

	// ErrPollExhausted means the job did not settle within the maximum poll count.
	ErrPollExhausted = errors.New("job state polling exhausted")

	// ErrRequestFailed means the server answered with an error status.
	ErrRequestFailed = errors.New("request failed")

	// ErrJobFailed means the job could not be submitted or followed.
	ErrJobFailed = errors.New("job submission failed")
)

// JobError is returned by StartComputeJob when submission or polling fails.
// Job holds whatever the server returned before the failure, so its links can
// still point at a log.
type JobError struct {
	Job     *Job
	Message string
	Err     error
}

// Error implements the error interface.
func (e *JobError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *JobError) Unwrap() error {
	return e.Err
}

// Is makes every JobError match ErrJobFailed.
func (e *JobError) Is(target error) bool {
	return target == ErrJobFailed
}

// Links returns the links of the partial job, or nil.
func (e *JobError) Links() []Link {
	if e.Job == nil {
		return nil
	}
	return e.Job.Links
}

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is makes every StatusError match ErrRequestFailed.
func (e *StatusError) Is(target error) bool {
	return target == ErrRequestFailed
}
