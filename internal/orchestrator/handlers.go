package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/sasflow/internal/domain"
	"github.com/shaiso/sasflow/internal/mq"
	"github.com/shaiso/sasflow/internal/sas"
	"github.com/shaiso/sasflow/internal/telemetry"
)

// runJob submits one job, persists its log and result row, and reports the
// outcome to the loop. Runs on its own goroutine.
//
// A submitted job is followed to its own terminal state or the poll bound;
// cancelling the run does not cut it off.
func (s *Scheduler) runJob(ctx context.Context, flow string, predecessors []string, job JobRun) {
	logger := telemetry.WithJob(s.logger, flow, job.Location)
	start := time.Now()
	jobCtx := context.WithoutCancel(ctx)

	var (
		outcome JobOutcome
		links   []sas.Link
	)

	result, err := s.client.StartComputeJob(jobCtx, job.Location, s.contextName, s.accessToken)
	if err != nil {
		outcome.Status = domain.JobStatusFailure
		outcome.Err = err
		outcome.Details = err.Error()

		var jobErr *sas.JobError
		if errors.As(err, &jobErr) {
			links = jobErr.Links()
		}
		logger.Error("job failed", "error", err)
	} else {
		outcome.Status = domain.JobStatusFailure
		if result.Completed() {
			outcome.Status = domain.JobStatusSuccess
		}
		outcome.Details = result.Details()
		links = result.Links
		logger.Info("job settled", "state", result.State)
	}
	outcome.Elapsed = time.Since(start)

	if s.logSaver != nil {
		logLocation, err := s.logSaver.Save(jobCtx, links, flow, job.Location)
		if err != nil {
			logger.Warn("failed to save log", "error", err)
		}
		outcome.LogLocation = logLocation
	}

	s.record(jobCtx, flow, predecessors, job.Location, outcome)

	if outcome.Err != nil {
		s.reporter.JobFailed(flow, job.Location, outcome.Err)
	} else {
		s.reporter.JobCompleted(flow, job.Location)
	}

	if s.metrics != nil {
		s.metrics.JobSettled(flow, outcome.Status.String(), outcome.Elapsed)
	}

	if s.notifier != nil {
		payload := mq.JobCompletedPayload{
			RunID:       s.runID.String(),
			Flow:        flow,
			Location:    job.Location,
			Status:      outcome.Status.String(),
			LogLocation: outcome.LogLocation,
			Details:     outcome.Details,
		}
		if outcome.Err != nil {
			payload.Error = outcome.Err.Error()
		}
		if err := s.notifier.PublishJobCompleted(jobCtx, payload); err != nil {
			logger.Warn("failed to publish job event", "error", err)
		}
	}

	if err := s.ReportJobOutcome(jobCtx, flow, job.Index, outcome); err != nil {
		logger.Error("failed to report job outcome", "error", err)
	}
}

// record writes the result row to every recorder. Failures are logged and
// never change the job status.
func (s *Scheduler) record(ctx context.Context, flow string, predecessors []string, location string, outcome JobOutcome) {
	for _, recorder := range s.recorders {
		row := &domain.ResultRow{
			Flow:         flow,
			Predecessors: domain.JoinPredecessors(predecessors),
			Location:     location,
			Status:       outcome.Status,
			LogLocation:  outcome.LogLocation,
			Details:      outcome.Details,
		}
		if err := recorder.Record(ctx, row); err != nil {
			s.logger.Error("failed to record result", "flow", flow, "job", location, "error", err)
		}
	}
}

// handleJobOutcome applies one job outcome. Called only from the loop, so
// marking the job, evaluating the flow and starting successors happen as
// one step.
func (s *Scheduler) handleJobOutcome(ctx context.Context, ev jobEvent) {
	status, settled, err := s.state.ApplyOutcome(ev.flow, ev.index, ev.outcome.Status)
	if err != nil {
		s.logger.Error("outcome rejected", "flow", ev.flow, "job_index", ev.index, "error", err)
		return
	}
	s.inFlight--

	if !settled {
		return
	}

	s.flowSettled(ev.flow, status)

	if status != domain.FlowStatusSucceeded {
		return
	}
	for _, successor := range s.state.ReadySuccessors(ev.flow) {
		s.startFlow(ctx, successor)
	}
}

// flowSettled reports a flow that reached succeeded or failed.
func (s *Scheduler) flowSettled(name string, status domain.FlowStatus) {
	s.logger.Info("flow settled", "flow", name, "status", status)

	if status == domain.FlowStatusSucceeded {
		s.reporter.FlowSucceeded(name)
	} else {
		s.reporter.FlowFailed(name)
	}

	if s.metrics != nil {
		s.metrics.FlowSettled(status.String())
	}

	if s.notifier != nil {
		payload := mq.FlowCompletedPayload{
			RunID:  s.runID.String(),
			Flow:   name,
			Status: status.String(),
		}
		if flow := s.state.Flow(name); flow != nil {
			payload.Jobs = len(flow.Jobs)
			for _, job := range flow.Jobs {
				if job.Status == domain.JobStatusFailure {
					payload.Failed++
				}
			}
		}
		if err := s.notifier.PublishFlowCompleted(context.Background(), payload); err != nil {
			s.logger.Warn("failed to publish flow event", "flow", name, "error", err)
		}
	}
}
