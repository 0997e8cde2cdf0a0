package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/sasflow/internal/domain"
	"github.com/shaiso/sasflow/internal/engine"
	"github.com/shaiso/sasflow/internal/mq"
	"github.com/shaiso/sasflow/internal/sas"
)

// --- fakes ---

type fakeResult struct {
	state string
	err   error
	links []sas.Link
}

type fakeClient struct {
	mu      sync.Mutex
	starts  []string
	results map[string]fakeResult
	gates   map[string]chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		results: make(map[string]fakeResult),
		gates:   make(map[string]chan struct{}),
	}
}

// hold makes the job at location wait until release is called.
func (c *fakeClient) hold(location string) {
	c.gates[location] = make(chan struct{})
}

func (c *fakeClient) release(location string) {
	close(c.gates[location])
}

func (c *fakeClient) StartComputeJob(ctx context.Context, jobPath, _, _ string) (*sas.Job, error) {
	c.mu.Lock()
	c.starts = append(c.starts, jobPath)
	gate := c.gates[jobPath]
	res := c.results[jobPath]
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if res.err != nil {
		return nil, res.err
	}
	state := res.state
	if state == "" {
		state = sas.StateCompleted
	}
	return &sas.Job{State: state, Links: res.links}, nil
}

// waitStarted blocks until the job at location was submitted.
func (c *fakeClient) waitStarted(t *testing.T, location string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for c.startCount(location) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s to start", location)
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *fakeClient) startCount(location string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.starts {
		if s == location {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	mu   sync.Mutex
	rows []domain.ResultRow
}

func (r *fakeRecorder) Record(_ context.Context, row *domain.ResultRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row.ID = len(r.rows) + 1
	r.rows = append(r.rows, *row)
	return nil
}

type fakeLogSaver struct {
	mu    sync.Mutex
	links map[string][]sas.Link
}

func (s *fakeLogSaver) Save(_ context.Context, links []sas.Link, flow, location string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.links == nil {
		s.links = make(map[string][]sas.Link)
	}
	s.links[location] = links
	if sas.FindLink(links, "log", "GET") == nil {
		return "", nil
	}
	return "logs/" + flow + ".log", nil
}

type fakeReporter struct {
	mu     sync.Mutex
	lines  []string
	issues []*engine.ValidationError
	flows  chan string
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{flows: make(chan string, 100)}
}

func (r *fakeReporter) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *fakeReporter) JobCompleted(flow, location string) {
	r.add("completed " + flow + " " + location)
}
func (r *fakeReporter) JobFailed(flow, location string, _ error) {
	r.add("error " + flow + " " + location)
}
func (r *fakeReporter) FlowSucceeded(flow string) {
	r.add("succeeded " + flow)
	r.flows <- flow + ":succeeded"
}
func (r *fakeReporter) FlowFailed(flow string) {
	r.add("failed " + flow)
	r.flows <- flow + ":failed"
}
func (r *fakeReporter) ValidationFailed(issue *engine.ValidationError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues = append(r.issues, issue)
}

// waitFlow blocks until the reporter saw the given flow outcome.
func (r *fakeReporter) waitFlow(t *testing.T, want string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-r.flows:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

type fakeNotifier struct {
	mu    sync.Mutex
	jobs  []mq.JobCompletedPayload
	flows []mq.FlowCompletedPayload
}

func (n *fakeNotifier) PublishJobCompleted(_ context.Context, p mq.JobCompletedPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, p)
	return nil
}

func (n *fakeNotifier) PublishFlowCompleted(_ context.Context, p mq.FlowCompletedPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.flows = append(n.flows, p)
	return nil
}

type fakeMetrics struct {
	mu    sync.Mutex
	jobs  map[string]int
	flows map[string]int
}

func (m *fakeMetrics) JobSettled(_, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[status]++
}

func (m *fakeMetrics) FlowSettled(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flows[status]++
}

type harness struct {
	client   *fakeClient
	recorder *fakeRecorder
	logs     *fakeLogSaver
	reporter *fakeReporter
	sched    *Scheduler
}

func newHarness() *harness {
	h := &harness{
		client:   newFakeClient(),
		recorder: &fakeRecorder{},
		logs:     &fakeLogSaver{},
		reporter: newFakeReporter(),
	}
	h.sched = New(Config{
		Client:    h.client,
		LogSaver:  h.logs,
		Recorders: []Recorder{h.recorder},
		Reporter:  h.reporter,
	})
	return h
}

func (h *harness) run(t *testing.T, flows map[string]*domain.FlowDef) *Summary {
	t.Helper()
	sum, err := h.sched.Run(context.Background(), graphOf(flows))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return sum
}

func flowStatus(t *testing.T, sum *Summary, name string) domain.FlowStatus {
	t.Helper()
	f, ok := sum.Flow(name)
	if !ok {
		t.Fatalf("flow %s missing from summary", name)
	}
	return f.Status
}

// --- scenarios ---

func TestScheduler_RootFlowAllJobsSucceed(t *testing.T) {
	h := newHarness()
	logLink := []sas.Link{{Rel: "log", Method: "GET", Href: "/log"}}
	h.client.results["/j1"] = fakeResult{links: logLink}
	h.client.results["/j2"] = fakeResult{links: logLink}

	sum := h.run(t, map[string]*domain.FlowDef{
		"F1": {Jobs: jobDefs("/j1", "/j2")},
	})

	if got := flowStatus(t, sum, "F1"); got != domain.FlowStatusSucceeded {
		t.Errorf("F1 should succeed, got %s", got)
	}
	if !sum.OK() {
		t.Error("summary should be OK")
	}

	if len(h.recorder.rows) != 2 {
		t.Fatalf("expected 2 result rows, got %d", len(h.recorder.rows))
	}
	for _, row := range h.recorder.rows {
		if row.Status != domain.JobStatusSuccess {
			t.Errorf("row %d: expected success, got %s", row.ID, row.Status)
		}
		if row.Predecessors != domain.NoPredecessors {
			t.Errorf("root flow should record %q, got %q", domain.NoPredecessors, row.Predecessors)
		}
		if row.LogLocation != "logs/F1.log" {
			t.Errorf("unexpected log location %q", row.LogLocation)
		}
	}
}

func TestScheduler_FailedPredecessorBlocksSuccessor(t *testing.T) {
	h := newHarness()
	h.client.results["/j1"] = fakeResult{state: sas.StateError}

	sum := h.run(t, map[string]*domain.FlowDef{
		"F1": {Jobs: jobDefs("/j1")},
		"F2": {Jobs: jobDefs("/j3"), Predecessors: []string{"F1"}},
	})

	if got := flowStatus(t, sum, "F1"); got != domain.FlowStatusFailed {
		t.Errorf("F1 should fail, got %s", got)
	}
	if got := flowStatus(t, sum, "F2"); got != domain.FlowStatusPending {
		t.Errorf("F2 should stay pending, got %s", got)
	}
	if h.client.startCount("/j3") != 0 {
		t.Error("F2 must never start")
	}
	if len(h.recorder.rows) != 1 || h.recorder.rows[0].Status != domain.JobStatusFailure {
		t.Errorf("expected one failure row, got %+v", h.recorder.rows)
	}
}

func TestScheduler_JoinWaitsForLastPredecessor(t *testing.T) {
	tests := []struct {
		name   string
		first  string
		second string
	}{
		{name: "F1 then F2", first: "F1", second: "F2"},
		{name: "F2 then F1", first: "F2", second: "F1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			loc := map[string]string{"F1": "/j1", "F2": "/j2"}
			h.client.hold("/j1")
			h.client.hold("/j2")

			done := make(chan *Summary, 1)
			go func() {
				sum, _ := h.sched.Run(context.Background(), graphOf(map[string]*domain.FlowDef{
					"F1": {Jobs: jobDefs("/j1")},
					"F2": {Jobs: jobDefs("/j2")},
					"F3": {Jobs: jobDefs("/j3"), Predecessors: []string{"F1", "F2"}},
				}))
				done <- sum
			}()

			h.client.release(loc[tt.first])
			h.reporter.waitFlow(t, tt.first+":succeeded")

			if h.client.startCount("/j3") != 0 {
				t.Fatal("F3 started before its last predecessor succeeded")
			}

			h.client.release(loc[tt.second])
			sum := <-done

			if n := h.client.startCount("/j3"); n != 1 {
				t.Errorf("F3 should start exactly once, started %d times", n)
			}
			if got := flowStatus(t, sum, "F3"); got != domain.FlowStatusSucceeded {
				t.Errorf("F3 should succeed, got %s", got)
			}
			if row := h.recorder.rows[len(h.recorder.rows)-1]; row.Predecessors != "F1 | F2" {
				t.Errorf("unexpected predecessors column %q", row.Predecessors)
			}
		})
	}
}

func TestScheduler_NeverStartsFlowTwice(t *testing.T) {
	// A → B, A → C, B + C → D, with D also listing A
	for i := 0; i < 50; i++ {
		h := newHarness()
		sum := h.run(t, map[string]*domain.FlowDef{
			"A": {Jobs: jobDefs("/a1", "/a2")},
			"B": {Jobs: jobDefs("/b"), Predecessors: []string{"A"}},
			"C": {Jobs: jobDefs("/c"), Predecessors: []string{"A"}},
			"D": {Jobs: jobDefs("/d"), Predecessors: []string{"B", "C", "A"}},
		})

		if n := h.client.startCount("/d"); n != 1 {
			t.Fatalf("iteration %d: D started %d times", i, n)
		}
		if !sum.OK() {
			t.Fatalf("iteration %d: expected every flow to succeed: %+v", i, sum.Flows)
		}
	}
}

func TestScheduler_InvalidFlowsDoNotRun(t *testing.T) {
	h := newHarness()

	sum := h.run(t, map[string]*domain.FlowDef{
		"ok":      {Jobs: jobDefs("/ok")},
		"missing": {Jobs: jobDefs("/missing"), Predecessors: []string{"ghost"}},
		"self":    {Jobs: jobDefs("/self"), Predecessors: []string{"self"}},
	})

	if got := flowStatus(t, sum, "ok"); got != domain.FlowStatusSucceeded {
		t.Errorf("independent flow should succeed, got %s", got)
	}
	for _, name := range []string{"missing", "self"} {
		if got := flowStatus(t, sum, name); got != domain.FlowStatusInvalid {
			t.Errorf("%s should be invalid, got %s", name, got)
		}
		if h.client.startCount("/"+name) != 0 {
			t.Errorf("%s must not run", name)
		}
	}

	if len(h.reporter.issues) != 2 {
		t.Fatalf("expected 2 reported issues, got %d", len(h.reporter.issues))
	}
	var sawMissing bool
	for _, issue := range h.reporter.issues {
		if errors.Is(issue, engine.ErrMissingPredecessor) {
			sawMissing = true
			if issue.Message != "Predecessor 'ghost' mentioned in 'missing' flow does not exist." {
				t.Errorf("unexpected message %q", issue.Message)
			}
		}
	}
	if !sawMissing {
		t.Error("missing predecessor was not reported")
	}
}

func TestScheduler_SubmissionErrorIsContained(t *testing.T) {
	h := newHarness()
	partial := &sas.Job{Links: []sas.Link{{Rel: "log", Method: "GET", Href: "/partial/log"}}}
	h.client.results["/bad"] = fakeResult{err: &sas.JobError{Job: partial, Message: "failed to poll job state", Err: sas.ErrPollExhausted}}

	sum := h.run(t, map[string]*domain.FlowDef{
		"F1": {Jobs: jobDefs("/bad", "/good")},
		"F2": {Jobs: jobDefs("/other")},
	})

	if got := flowStatus(t, sum, "F1"); got != domain.FlowStatusFailed {
		t.Errorf("F1 should fail, got %s", got)
	}
	if got := flowStatus(t, sum, "F2"); got != domain.FlowStatusSucceeded {
		t.Errorf("F2 should not be affected, got %s", got)
	}
	if h.client.startCount("/good") != 1 {
		t.Error("sibling job must still run")
	}

	if sas.FindLink(h.logs.links["/bad"], "log", "GET") == nil {
		t.Error("log saver should get the partial job links")
	}

	var badRow *domain.ResultRow
	for i := range h.recorder.rows {
		if h.recorder.rows[i].Location == "/bad" {
			badRow = &h.recorder.rows[i]
		}
	}
	if badRow == nil {
		t.Fatal("failed job was not recorded")
	}
	if badRow.Status != domain.JobStatusFailure || !strings.Contains(badRow.Details, "failed to poll job state") {
		t.Errorf("unexpected row %+v", badRow)
	}
	if badRow.LogLocation != "logs/F1.log" {
		t.Errorf("partial log should be saved, got %q", badRow.LogLocation)
	}
}

func TestScheduler_ResolvesRelativeLocations(t *testing.T) {
	h := newHarness()
	h.sched = New(Config{Client: h.client, Recorders: []Recorder{h.recorder}, AppLoc: "/Public/app"})

	h.run(t, map[string]*domain.FlowDef{
		"F1": {Jobs: jobDefs("jobs/extract", "/Shared/load")},
	})

	if h.client.startCount("/Public/app/jobs/extract") != 1 {
		t.Error("relative location should be prefixed with the app location")
	}
	if h.client.startCount("/Shared/load") != 1 {
		t.Error("absolute location should be used as is")
	}
}

func TestScheduler_NotifiesAndCounts(t *testing.T) {
	client := newFakeClient()
	client.results["/j2"] = fakeResult{state: sas.StateError}
	notifier := &fakeNotifier{}
	metrics := &fakeMetrics{jobs: map[string]int{}, flows: map[string]int{}}

	sched := New(Config{Client: client, Notifier: notifier, Metrics: metrics})
	sum, err := sched.Run(context.Background(), graphOf(map[string]*domain.FlowDef{
		"F1": {Jobs: jobDefs("/j1")},
		"F2": {Jobs: jobDefs("/j2")},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum.RunID != sched.RunID().String() {
		t.Error("summary should carry the run id")
	}
	if len(notifier.jobs) != 2 || len(notifier.flows) != 2 {
		t.Errorf("expected 2 job and 2 flow events, got %d and %d", len(notifier.jobs), len(notifier.flows))
	}
	for _, ev := range notifier.flows {
		if ev.RunID != sum.RunID {
			t.Errorf("event run id %s, want %s", ev.RunID, sum.RunID)
		}
		if ev.Flow == "F2" && (ev.Status != "failed" || ev.Failed != 1) {
			t.Errorf("unexpected F2 event %+v", ev)
		}
	}
	if metrics.jobs["success"] != 1 || metrics.jobs["failure"] != 1 {
		t.Errorf("unexpected job counts %v", metrics.jobs)
	}
	if metrics.flows["succeeded"] != 1 || metrics.flows["failed"] != 1 {
		t.Errorf("unexpected flow counts %v", metrics.flows)
	}
}

func TestScheduler_CancelStopsNewFlows(t *testing.T) {
	h := newHarness()
	h.client.hold("/j1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var sum *Summary
	go func() {
		var err error
		sum, err = h.sched.Run(ctx, graphOf(map[string]*domain.FlowDef{
			"F1": {Jobs: jobDefs("/j1")},
			"F2": {Jobs: jobDefs("/j2"), Predecessors: []string{"F1"}},
		}))
		done <- err
	}()

	h.client.waitStarted(t, "/j1")
	cancel()
	// the job must still be waiting on the server, not cut off by cancel
	time.Sleep(20 * time.Millisecond)
	h.client.release("/j1")

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if h.client.startCount("/j2") != 0 {
		t.Error("no flow may start after cancellation")
	}
	if got := flowStatus(t, sum, "F1"); got != domain.FlowStatusSucceeded {
		t.Errorf("submitted job drains after cancellation, got %s", got)
	}
	if got := flowStatus(t, sum, "F2"); got != domain.FlowStatusPending {
		t.Errorf("F2 should stay pending, got %s", got)
	}
	if len(h.recorder.rows) != 1 {
		t.Fatal("drained job is still recorded")
	}
	if h.recorder.rows[0].Status != domain.JobStatusSuccess {
		t.Errorf("drained job should be recorded as success, got %s", h.recorder.rows[0].Status)
	}
}

func TestScheduler_RunTwice(t *testing.T) {
	h := newHarness()
	flows := map[string]*domain.FlowDef{"F1": {Jobs: jobDefs("/j1")}}
	h.run(t, flows)

	if _, err := h.sched.Run(context.Background(), graphOf(flows)); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := h.sched.ReportJobOutcome(context.Background(), "F1", 0, JobOutcome{Status: domain.JobStatusSuccess}); !errors.Is(err, ErrSchedulerStopped) {
		t.Errorf("expected ErrSchedulerStopped, got %v", err)
	}
}

func TestScheduler_NoClient(t *testing.T) {
	if _, err := New(Config{}).Run(context.Background(), graphOf(nil)); !errors.Is(err, ErrNoJobClient) {
		t.Errorf("expected ErrNoJobClient, got %v", err)
	}
}

func TestScheduler_StatusLines(t *testing.T) {
	h := newHarness()
	h.client.results["/j2"] = fakeResult{err: errors.New("boom")}

	h.run(t, map[string]*domain.FlowDef{
		"F1": {Jobs: jobDefs("/j1")},
		"F2": {Jobs: jobDefs("/j2")},
	})

	want := map[string]bool{
		"completed F1 /j1": false,
		"succeeded F1":     false,
		"error F2 /j2":     false,
		"failed F2":        false,
	}
	for _, line := range h.reporter.lines {
		if _, ok := want[line]; ok {
			want[line] = true
		}
	}
	for line, seen := range want {
		if !seen {
			t.Errorf("missing status line %q", line)
		}
	}
}

func TestScheduler_SnapshotWhileRunning(t *testing.T) {
	h := newHarness()
	if h.sched.Snapshot() != nil {
		t.Fatal("snapshot before Run should be nil")
	}
	h.client.hold("/j1")

	done := make(chan error, 1)
	go func() {
		_, err := h.sched.Run(context.Background(), graphOf(map[string]*domain.FlowDef{
			"F1": {Jobs: jobDefs("/j1")},
			"F2": {Jobs: jobDefs("/j2"), Predecessors: []string{"F1"}},
		}))
		done <- err
	}()

	h.client.waitStarted(t, "/j1")
	snap := h.sched.Snapshot()
	if got := flowStatus(t, snap, "F1"); got != domain.FlowStatusRunning {
		t.Errorf("F1 should be running, got %s", got)
	}
	if got := flowStatus(t, snap, "F2"); got != domain.FlowStatusPending {
		t.Errorf("F2 should be pending, got %s", got)
	}

	h.client.release("/j1")
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := flowStatus(t, snap, "F1"); got != domain.FlowStatusRunning {
		t.Error("an earlier snapshot must not change")
	}
	final := h.sched.Snapshot()
	if got := flowStatus(t, final, "F2"); got != domain.FlowStatusSucceeded {
		t.Errorf("F2 should be succeeded, got %s", got)
	}
	if final.RunID != h.sched.RunID().String() {
		t.Errorf("snapshot run id %s, want %s", final.RunID, h.sched.RunID())
	}
}
