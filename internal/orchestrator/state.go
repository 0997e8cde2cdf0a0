package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/sasflow/internal/domain"
	"github.com/shaiso/sasflow/internal/engine"
)

// JobRun is one job of a flow within a run.
type JobRun struct {
	Index    int
	Location string // resolved against the app location
	Status   domain.JobStatus
}

// FlowState is the execution state of one flow.
type FlowState struct {
	Name   string
	Node   *engine.Node
	Status domain.FlowStatus
	Jobs   []*JobRun
}

// Predecessors returns the declared predecessor names.
func (f *FlowState) Predecessors() []string {
	return f.Node.Def.Predecessors
}

// RunState holds the per-flow and per-job status of one execution.
//
// It is created from a validated graph and mutated only by the scheduler
// loop. Readers on other goroutines go through the exported methods.
type RunState struct {
	Graph *engine.Graph

	flows map[string]*FlowState
	mu    sync.RWMutex
}

// NewRunState creates a RunState. Flows with validation issues start as
// invalid and are never started.
func NewRunState(graph *engine.Graph, appLoc string) *RunState {
	s := &RunState{
		Graph: graph,
		flows: make(map[string]*FlowState, graph.Size()),
	}

	for name, node := range graph.Nodes {
		flow := &FlowState{
			Name:   name,
			Node:   node,
			Status: domain.FlowStatusPending,
			Jobs:   make([]*JobRun, len(node.Def.Jobs)),
		}
		if !node.Valid() {
			flow.Status = domain.FlowStatusInvalid
		}
		for i, job := range node.Def.Jobs {
			flow.Jobs[i] = &JobRun{
				Index:    i,
				Location: domain.ResolveJobLocation(appLoc, job.Location),
				Status:   domain.JobStatusPending,
			}
		}
		s.flows[name] = flow
	}

	return s
}

// Flow returns a copy of the state of a flow, or nil. The copy does not
// follow later updates.
func (s *RunState) Flow(name string) *FlowState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flow, ok := s.flows[name]
	if !ok {
		return nil
	}

	cp := *flow
	cp.Jobs = make([]*JobRun, len(flow.Jobs))
	for i, job := range flow.Jobs {
		j := *job
		cp.Jobs[i] = &j
	}
	return &cp
}

// StartFlow moves a pending flow to running and its jobs to submitted.
// Returns the jobs to submit, or false when the flow is not pending. This
// transition is what keeps a flow from starting twice.
func (s *RunState) StartFlow(name string) ([]JobRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[name]
	if !ok || flow.Status != domain.FlowStatusPending {
		return nil, false
	}

	flow.Status = domain.FlowStatusRunning
	jobs := make([]JobRun, len(flow.Jobs))
	for i, job := range flow.Jobs {
		job.Status = domain.JobStatusSubmitted
		jobs[i] = *job
	}
	return jobs, true
}

// ApplyOutcome sets the final status of a job and re-evaluates its flow.
// Returns the flow status after the update and whether it just became
// terminal.
func (s *RunState) ApplyOutcome(name string, index int, status domain.JobStatus) (domain.FlowStatus, bool, error) {
	if !status.IsTerminal() {
		return "", false, fmt.Errorf("%w: %s", ErrNonTerminalOutcome, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[name]
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrFlowNotFound, name)
	}
	if index < 0 || index >= len(flow.Jobs) {
		return flow.Status, false, fmt.Errorf("%w: %s[%d]", ErrJobNotFound, name, index)
	}

	job := flow.Jobs[index]
	if job.Status != domain.JobStatusSubmitted {
		return flow.Status, false, fmt.Errorf("%w: %s[%d] is %s", ErrUnexpectedOutcome, name, index, job.Status)
	}
	job.Status = status

	next := EvaluateFlow(flow.Jobs)
	if next == flow.Status {
		return next, false, nil
	}
	flow.Status = next
	return next, next.IsTerminal(), nil
}

// ReadySuccessors returns the successors of a flow that are pending and whose
// predecessors have all succeeded, sorted by name.
func (s *RunState) ReadySuccessors(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ready := make([]string, 0)
	for _, succ := range s.Graph.Successors(name) {
		flow := s.flows[succ.Name]
		if flow.Status != domain.FlowStatusPending {
			continue
		}
		if s.joinSatisfied(succ) {
			ready = append(ready, succ.Name)
		}
	}
	return ready
}

// joinSatisfied reports whether every predecessor of node succeeded.
func (s *RunState) joinSatisfied(node *engine.Node) bool {
	for _, pred := range node.DependsOn {
		if s.flows[pred.Name].Status != domain.FlowStatusSucceeded {
			return false
		}
	}
	return true
}

// Summary returns a snapshot of the run.
func (s *RunState) Summary() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := &Summary{Flows: make([]FlowSummary, 0, len(s.flows))}
	for _, flow := range s.flows {
		fs := FlowSummary{
			Name:   flow.Name,
			Status: flow.Status,
			Jobs:   len(flow.Jobs),
		}
		for _, job := range flow.Jobs {
			switch job.Status {
			case domain.JobStatusSuccess:
				fs.Succeeded++
			case domain.JobStatusFailure:
				fs.Failed++
			}
		}
		sum.Jobs += fs.Jobs
		sum.Succeeded += fs.Succeeded
		sum.Failed += fs.Failed
		sum.Flows = append(sum.Flows, fs)
	}
	sort.Slice(sum.Flows, func(i, j int) bool { return sum.Flows[i].Name < sum.Flows[j].Name })
	return sum
}

// EvaluateFlow derives the flow status from its jobs:
//   - running while any job has not settled
//   - succeeded when every job succeeded
//   - failed when every job settled and at least one failed
//
// A flow with no jobs stays pending.
func EvaluateFlow(jobs []*JobRun) domain.FlowStatus {
	if len(jobs) == 0 {
		return domain.FlowStatusPending
	}

	failed := false
	for _, job := range jobs {
		if !job.Status.IsTerminal() {
			return domain.FlowStatusRunning
		}
		if job.Status == domain.JobStatusFailure {
			failed = true
		}
	}
	if failed {
		return domain.FlowStatusFailed
	}
	return domain.FlowStatusSucceeded
}

// Summary is the outcome of a run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Flows     []FlowSummary `json:"flows"`
	Jobs      int           `json:"jobs"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

// FlowSummary is the outcome of one flow. Flows that were blocked by a
// failed or invalid predecessor stay pending.
type FlowSummary struct {
	Name      string            `json:"name"`
	Status    domain.FlowStatus `json:"status"`
	Jobs      int               `json:"jobs"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// OK reports whether every flow succeeded.
func (s *Summary) OK() bool {
	for _, f := range s.Flows {
		if f.Status != domain.FlowStatusSucceeded {
			return false
		}
	}
	return true
}

// Flow returns the summary of a flow by name.
func (s *Summary) Flow(name string) (FlowSummary, bool) {
	for _, f := range s.Flows {
		if f.Name == name {
			return f, true
		}
	}
	return FlowSummary{}, false
}
