package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the run metrics in a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal   *prometheus.CounterVec
	flowsTotal  *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sasflow",
				Name:      "jobs_total",
				Help:      "Settled jobs by flow and status",
			}, []string{"flow", "status"}),
		flowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sasflow",
				Name:      "flows_total",
				Help:      "Flows that reached a final status",
			}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sasflow",
				Name:      "job_duration_seconds",
				Help:      "Time from job submission until it settled",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
			}, []string{"flow"}),
	}

	m.registry.MustRegister(m.jobsTotal, m.flowsTotal, m.jobDuration)
	return m
}

// JobSettled counts a settled job.
func (m *Metrics) JobSettled(flow, status string, elapsed time.Duration) {
	m.jobsTotal.WithLabelValues(flow, status).Inc()
	m.jobDuration.WithLabelValues(flow).Observe(elapsed.Seconds())
}

// FlowSettled counts a flow that reached a final status.
func (m *Metrics) FlowSettled(status string) {
	m.flowsTotal.WithLabelValues(status).Inc()
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteToTextfile writes the metrics for the node exporter textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
