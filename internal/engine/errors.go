package engine

import "errors"

// Flow definition loading errors.
var (
	// ErrInvalidInput means the flow definition cannot be used at all.
	ErrInvalidInput = errors.New("invalid flow definition")

	// ErrUnsupportedFileType means the source is not a .json, .yaml or .yml file.
	ErrUnsupportedFileType = errors.New("unsupported flow definition file type")

	// ErrSourceNotFound means the source file does not exist.
	ErrSourceNotFound = errors.New("flow definition file does not exist")

	// ErrMalformedSource means the content does not parse as structured data.
	ErrMalformedSource = errors.New("flow definition is not valid structured data")

	// ErrMissingFlows means the document has no "flows" key.
	ErrMissingFlows = errors.New("flow definition has no flows")
)

// Flow graph validation errors.
var (
	// ErrMissingPredecessor means a predecessor name is not defined in the document.
	ErrMissingPredecessor = errors.New("predecessor does not exist")

	// ErrSelfPredecessor means a flow lists itself as a predecessor.
	ErrSelfPredecessor = errors.New("flow cannot point to itself")

	// ErrNoJobs means a flow has an empty job list.
	ErrNoJobs = errors.New("flow has no jobs")

	// ErrEmptyJobLocation means a job has no location.
	ErrEmptyJobLocation = errors.New("job has empty location")

	// ErrCyclicDependency means the flow sits on or behind a predecessor cycle.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// InputError wraps a loading failure with the source path.
// errors.Is(err, ErrInvalidInput) holds for every InputError.
type InputError struct {
	Path string // source file path
	Err  error  // one of the loading sentinels above
}

// Error implements the error interface.
func (e *InputError) Error() string {
	return "flow definition " + e.Path + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InputError) Unwrap() error {
	return e.Err
}

// Is makes every InputError match ErrInvalidInput.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ValidationError describes one inconsistency of a single flow.
type ValidationError struct {
	Flow        string // flow where the problem was found
	Predecessor string // offending predecessor, if any
	Message     string // human readable description
	Err         error  // base error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Flow != "" {
		return "flow " + e.Flow + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the base error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error.
func NewValidationError(flow, predecessor, message string, err error) *ValidationError {
	return &ValidationError{
		Flow:        flow,
		Predecessor: predecessor,
		Message:     message,
		Err:         err,
	}
}
