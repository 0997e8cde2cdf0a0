package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/sasflow/internal/domain"
	"github.com/shaiso/sasflow/internal/engine"
	"github.com/shaiso/sasflow/internal/mq"
	"github.com/shaiso/sasflow/internal/sas"
	"github.com/shaiso/sasflow/internal/telemetry"
)

// JobClient submits a job by path and waits for it to settle.
type JobClient interface {
	StartComputeJob(ctx context.Context, jobPath, contextName, accessToken string) (*sas.Job, error)
}

// LogSaver persists the log behind a job's links and returns its location.
type LogSaver interface {
	Save(ctx context.Context, links []sas.Link, flow, location string) (string, error)
}

// Recorder appends a result row and assigns its id.
type Recorder interface {
	Record(ctx context.Context, row *domain.ResultRow) error
}

// Notifier publishes job and flow events.
type Notifier interface {
	PublishJobCompleted(ctx context.Context, payload mq.JobCompletedPayload) error
	PublishFlowCompleted(ctx context.Context, payload mq.FlowCompletedPayload) error
}

// Metrics counts settled jobs and flows.
type Metrics interface {
	JobSettled(flow, status string, elapsed time.Duration)
	FlowSettled(status string)
}

// Reporter prints human readable status lines.
type Reporter interface {
	JobCompleted(flow, location string)
	JobFailed(flow, location string, err error)
	FlowSucceeded(flow string)
	FlowFailed(flow string)
	ValidationFailed(issue *engine.ValidationError)
}

// JobOutcome is the settled result of one job.
type JobOutcome struct {
	Status      domain.JobStatus
	LogLocation string
	Details     string
	Err         error
	Elapsed     time.Duration
}

// jobEvent is a JobOutcome addressed to a job of a flow.
type jobEvent struct {
	flow    string
	index   int
	outcome JobOutcome
}

// Scheduler executes the flows of one graph.
//
// Root flows start at once. Every job runs on its own goroutine and, once it
// settled and its log and result row were written, posts its outcome to the
// scheduler loop. The loop applies one outcome at a time: it marks the job,
// re-evaluates the flow and starts the successors whose predecessors have
// all succeeded. A flow starts only from the pending state, so it never
// starts twice.
type Scheduler struct {
	client    JobClient
	logSaver  LogSaver
	recorders []Recorder
	notifier  Notifier
	metrics   Metrics
	reporter  Reporter

	appLoc      string
	contextName string
	accessToken string
	runID       uuid.UUID

	logger *slog.Logger

	// set by Run
	state    *RunState
	events   chan jobEvent
	done     chan struct{}
	inFlight int
	started  bool
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// Config configures a Scheduler.
type Config struct {
	// Client submits jobs. Required.
	Client JobClient

	// LogSaver, Recorders, Notifier, Metrics and Reporter are optional.
	LogSaver  LogSaver
	Recorders []Recorder
	Notifier  Notifier
	Metrics   Metrics
	Reporter  Reporter

	// AppLoc prefixes relative job locations.
	AppLoc string

	// ContextName is the compute context; empty means the client default.
	ContextName string

	AccessToken string

	// RunID identifies the run in events and logs (default: random).
	RunID uuid.UUID

	Logger *slog.Logger
}

// New creates a new Scheduler.
func New(cfg Config) *Scheduler {
	runID := cfg.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reporter := cfg.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}

	return &Scheduler{
		client:      cfg.Client,
		logSaver:    cfg.LogSaver,
		recorders:   cfg.Recorders,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		reporter:    reporter,
		appLoc:      cfg.AppLoc,
		contextName: cfg.ContextName,
		accessToken: cfg.AccessToken,
		runID:       runID,
		logger:      telemetry.WithRunID(logger, runID.String()),
		done:        make(chan struct{}),
	}
}

// RunID returns the run identifier.
func (s *Scheduler) RunID() uuid.UUID {
	return s.runID
}

// Run executes the graph and blocks until no job is in flight.
//
// Validation issues are reported and the offending flows never run; every
// other flow proceeds. Job failures are contained in their flow. When ctx is
// cancelled no further flows are started, jobs already submitted drain, and
// ctx.Err() is returned along with the summary.
func (s *Scheduler) Run(ctx context.Context, graph *engine.Graph) (*Summary, error) {
	if s.client == nil {
		return nil, ErrNoJobClient
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.started = true
	s.state = NewRunState(graph, s.appLoc)
	s.events = make(chan jobEvent, graph.JobCount())
	s.mu.Unlock()

	defer close(s.done)

	for _, issue := range graph.Issues {
		s.logger.Warn("flow rejected", "flow", issue.Flow, "error", issue)
		s.reporter.ValidationFailed(issue)
	}

	s.logger.Info("run started",
		"flows", graph.Size(),
		"jobs", graph.JobCount(),
		"roots", len(graph.RootNodes),
	)

	for _, root := range graph.RootNodes {
		s.startFlow(ctx, root.Name)
	}

	for s.inFlight > 0 {
		ev := <-s.events
		s.handleJobOutcome(ctx, ev)
	}
	s.wg.Wait()

	sum := s.state.Summary()
	sum.RunID = s.runID.String()

	s.logger.Info("run finished",
		"jobs", sum.Jobs,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
	)

	return sum, ctx.Err()
}

// ReportJobOutcome delivers the outcome of a job to the scheduler loop.
func (s *Scheduler) ReportJobOutcome(ctx context.Context, flow string, jobIndex int, outcome JobOutcome) error {
	select {
	case s.events <- jobEvent{flow: flow, index: jobIndex, outcome: outcome}:
		return nil
	case <-s.done:
		return ErrSchedulerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current status of every flow and job, or nil before
// Run. Safe to call while Run is in progress.
func (s *Scheduler) Snapshot() *Summary {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == nil {
		return nil
	}
	sum := state.Summary()
	sum.RunID = s.runID.String()
	return sum
}

// startFlow submits every job of a pending flow. Called only from the loop.
func (s *Scheduler) startFlow(ctx context.Context, name string) {
	if ctx.Err() != nil {
		s.logger.Warn("run cancelled, flow not started", "flow", name)
		return
	}

	jobs, ok := s.state.StartFlow(name)
	if !ok {
		return
	}

	flow := s.state.Flow(name)
	telemetry.WithFlow(s.logger, name).Info("flow started", "jobs", len(jobs))

	for _, job := range jobs {
		s.inFlight++
		s.wg.Add(1)
		go func(job JobRun) {
			defer s.wg.Done()
			s.runJob(ctx, name, flow.Predecessors(), job)
		}(job)
	}
}

type nopReporter struct{}

func (nopReporter) JobCompleted(string, string)              {}
func (nopReporter) JobFailed(string, string, error)          {}
func (nopReporter) FlowSucceeded(string)                     {}
func (nopReporter) FlowFailed(string)                        {}
func (nopReporter) ValidationFailed(*engine.ValidationError) {}
