package results

import "errors"

var (
	// ErrRecord means a row could not be added to the sink. The sink keeps its
	// previous content.
	ErrRecord = errors.New("failed to record result")

	// ErrMalformedSink means the sink content is not a result table.
	ErrMalformedSink = errors.New("malformed result sink")

	// ErrUnsupportedSink means the sink path does not end in .csv.
	ErrUnsupportedSink = errors.New("result sink must be a .csv file")
)
