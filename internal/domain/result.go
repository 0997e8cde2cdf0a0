package domain

import "strings"

// NoPredecessors is written to the result sink for root flows.
const NoPredecessors = "none"

// PredecessorSeparator joins predecessor names in the result sink.
const PredecessorSeparator = " | "

// ResultRow is one persisted job attempt outcome.
//
// ID is assigned by the sink at write time: 1 for the first row, then the
// number of rows already present plus one.
type ResultRow struct {
	ID           int       `json:"id"`
	Flow         string    `json:"flow"`
	Predecessors string    `json:"predecessors"`
	Location     string    `json:"location"`
	Status       JobStatus `json:"status"`
	LogLocation  string    `json:"log_location"`
	Details      string    `json:"details"`
}

// JoinPredecessors renders a predecessor list for the Predecessors column.
func JoinPredecessors(predecessors []string) string {
	if len(predecessors) == 0 {
		return NoPredecessors
	}
	return strings.Join(predecessors, PredecessorSeparator)
}
