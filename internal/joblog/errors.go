package joblog

import "errors"

var (
	// ErrNoLogFolder means a log save was attempted without a log folder.
	ErrNoLogFolder = errors.New("no log folder provided")

	// ErrLogWrite means the log file could not be created or written.
	ErrLogWrite = errors.New("failed to write log file")

	// ErrNoLogLink means the job has no GET "log" link.
	ErrNoLogLink = errors.New("job has no log link")
)
