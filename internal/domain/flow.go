package domain

import (
	"path"
	"strings"
)

// FlowSpec is the flow definition document.
//
// Example:
//
//	{
//	  "name": "myAmazingFlow",
//	  "flows": {
//	    "firstFlow":  { "jobs": [{ "location": "/Projects/job1" }], "predecessors": [] },
//	    "secondFlow": { "jobs": [{ "location": "/Projects/job11" }], "predecessors": ["firstFlow"] }
//	  }
//	}
type FlowSpec struct {
	// Name is an optional label for the whole document.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Flows maps a unique flow name to its definition.
	// Map order carries no meaning; execution order comes from predecessors.
	Flows map[string]*FlowDef `json:"flows" yaml:"flows"`
}

// FlowDef is a named group of jobs plus the flows it waits for.
type FlowDef struct {
	// Jobs are submitted concurrently once the flow starts.
	Jobs []JobDef `json:"jobs" yaml:"jobs"`

	// Predecessors are flow names that must all succeed first.
	// Empty means the flow is a root and starts immediately.
	Predecessors []string `json:"predecessors" yaml:"predecessors"`
}

// JobDef references a remote job by its server-side path.
type JobDef struct {
	// Location is absolute ("/Projects/job1") or relative to the target appLoc.
	Location string `json:"location" yaml:"location"`
}

// IsRoot reports whether the flow has no predecessors.
func (f *FlowDef) IsRoot() bool {
	return len(f.Predecessors) == 0
}

// HasPredecessor reports whether name is listed among the flow's predecessors.
func (f *FlowDef) HasPredecessor(name string) bool {
	for _, p := range f.Predecessors {
		if p == name {
			return true
		}
	}
	return false
}

// ResolveJobLocation prefixes a relative job location with the app location.
// Absolute locations and an empty appLoc leave the location untouched.
func ResolveJobLocation(appLoc, location string) string {
	if appLoc == "" || location == "" || strings.HasPrefix(location, "/") {
		return location
	}
	return path.Join(appLoc, location)
}
