package cli

import "errors"

var (
	// ErrUnsupportedServerType means the target is not a SAS Viya server.
	ErrUnsupportedServerType = errors.New("flow execution is only supported on SASVIYA targets")

	// ErrFlowsFailed means at least one flow did not succeed.
	ErrFlowsFailed = errors.New("not every flow completed successfully")

	// ErrInvalidFlows means the flow definition has validation issues.
	ErrInvalidFlows = errors.New("flow definition has invalid flows")

	// ErrNoResultSource means neither a CSV file nor a database was given.
	ErrNoResultSource = errors.New("either --csv-file or --results-db is required")
)
