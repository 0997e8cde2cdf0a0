package sas

import (
	"fmt"
	"sort"
	"strings"
)

// Job states reported by the compute service.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateQueued    = "queued"
	StateCompleted = "completed"
	StateError     = "error"
	StateWarning   = "warning"
	StateCanceled  = "canceled"
	StateFailed    = "failed"
)

// DefaultContextName is the compute context used when the target names none.
const DefaultContextName = "SAS Job Execution compute context"

// Link is a hypermedia link of a REST resource.
type Link struct {
	Rel    string `json:"rel"`
	Method string `json:"method"`
	Href   string `json:"href"`
	URI    string `json:"uri,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Job is a compute job as returned by /compute/sessions/{id}/jobs/{id}.
type Job struct {
	ID                string         `json:"id"`
	SessionID         string         `json:"sessionId,omitempty"`
	State             string         `json:"state"`
	Links             []Link         `json:"links,omitempty"`
	Statistics        map[string]any `json:"statistics,omitempty"`
	ListingStatistics map[string]any `json:"listingStatistics,omitempty"`
	LogStatistics     map[string]any `json:"logStatistics,omitempty"`
}

// Link returns the first link with the given relation and method, or nil.
func (j *Job) Link(rel, method string) *Link {
	return FindLink(j.Links, rel, method)
}

// Completed reports whether the job ended in the "completed" state.
func (j *Job) Completed() bool {
	return j.State == StateCompleted
}

// Details renders the job statistics for the result sink:
//
//	Statistics: k: v; k: v | Listing Statistics: ... | Log Statistics: ...
//
// Missing sections are left out. Keys are sorted.
func (j *Job) Details() string {
	if j == nil {
		return ""
	}

	sections := make([]string, 0, 3)
	for _, s := range []struct {
		title string
		data  map[string]any
	}{
		{"Statistics", j.Statistics},
		{"Listing Statistics", j.ListingStatistics},
		{"Log Statistics", j.LogStatistics},
	} {
		if s.data == nil {
			continue
		}
		sections = append(sections, s.title+": "+joinStats(s.data))
	}
	return strings.Join(sections, " | ")
}

func joinStats(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %v", k, data[k])
	}
	return strings.Join(parts, "; ")
}

// FindLink returns the first link with the given relation and method, or nil.
func FindLink(links []Link, rel, method string) *Link {
	for i := range links {
		if links[i].Rel == rel && strings.EqualFold(links[i].Method, method) {
			return &links[i]
		}
	}
	return nil
}

// Log is a page of job log lines.
type Log struct {
	Items []LogLine `json:"items"`
}

// LogLine is one line of a job log.
type LogLine struct {
	Line string `json:"line"`
	Type string `json:"type"`
}

// --- wire types ---

type collection[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

type computeContext struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type session struct {
	ID    string `json:"id"`
	Links []Link `json:"links,omitempty"`
}

type folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type folderMember struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URI         string `json:"uri"`
	ContentType string `json:"contentType"`
}

type jobDefinition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type jobRequest struct {
	Name string   `json:"name,omitempty"`
	Code []string `json:"code"`
}

type errorResponse struct {
	Message         string   `json:"message"`
	Details         []string `json:"details,omitempty"`
	ErrorCode       int      `json:"errorCode,omitempty"`
	HTTPStatusCode  int      `json:"httpStatusCode,omitempty"`
	RemediationHint string   `json:"remediation,omitempty"`
}
