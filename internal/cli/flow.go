package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/sasflow/internal/config"
	"github.com/shaiso/sasflow/internal/domain"
	"github.com/shaiso/sasflow/internal/engine"
	"github.com/shaiso/sasflow/internal/joblog"
	"github.com/shaiso/sasflow/internal/mq"
	"github.com/shaiso/sasflow/internal/orchestrator"
	"github.com/shaiso/sasflow/internal/repo"
	"github.com/shaiso/sasflow/internal/results"
	"github.com/shaiso/sasflow/internal/sas"
	"github.com/shaiso/sasflow/internal/telemetry"
)

// NewFlowCmd creates the flow command group.
func NewFlowCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Execute and inspect flows of SAS jobs",
	}

	cmd.AddCommand(
		newFlowExecuteCmd(outputFn),
		newFlowValidateCmd(outputFn),
		newFlowWatchCmd(outputFn),
	)

	return cmd
}

// executeOptions are the flags of flow execute.
type executeOptions struct {
	source       string
	logFolder    string
	csvFile      string
	appendCSV    bool
	target       string
	configFile   string
	resultsDB    string
	amqpURL      string
	metricsAddr  string
	metricsFile  string
	pollInterval time.Duration
	maxPollCount int
}

func newFlowExecuteCmd(outputFn func() *Output) *cobra.Command {
	var opts executeOptions

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute the flows of a flow definition file",
		Long: `Execute submits every job of every flow to a SAS Viya compute context.

Flows without predecessors start immediately. A flow starts once all of its
predecessors completed successfully. Jobs inside a flow run concurrently.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return executeFlow(ctx, opts, outputFn(), telemetry.FromContext(ctx))
		},
	}

	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "Flow definition file (.json, .yaml or .yml)")
	cmd.Flags().StringVarP(&opts.logFolder, "log-folder", "l", "", "Folder for job logs")
	cmd.Flags().StringVarP(&opts.csvFile, "csv-file", "c", "", "CSV file for job results")
	cmd.Flags().BoolVar(&opts.appendCSV, "append", false, "Keep existing rows of the CSV file")
	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "Target name (default: defaultTarget)")
	cmd.Flags().StringVar(&opts.configFile, "config", "", "Config file with targets")
	cmd.Flags().StringVar(&opts.resultsDB, "results-db", "", "PostgreSQL DSN for job results (default: $DB_URL)")
	cmd.Flags().StringVar(&opts.amqpURL, "amqp-url", "", "RabbitMQ URL for completion events (default: $RABBITMQ_URL)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Address to serve /metrics on during the run")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write metrics to this file after the run")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", sas.DefaultPollInterval, "Pause between job state checks")
	cmd.Flags().IntVar(&opts.maxPollCount, "max-poll-count", sas.DefaultMaxPollCount, "State checks before a job is given up")
	cmd.MarkFlagRequired("source")

	return cmd
}

func executeFlow(ctx context.Context, opts executeOptions, out *Output, logger *slog.Logger) error {
	spec, err := engine.LoadFlowSpec(opts.source)
	if err != nil {
		return err
	}

	target, err := config.Load(config.Options{Target: opts.target, ConfigFile: opts.configFile})
	if err != nil {
		return err
	}
	if target.ServerType != config.ServerTypeViya {
		return fmt.Errorf("%w: target %s is %s", ErrUnsupportedServerType, target.Name, target.ServerType)
	}
	if err := target.RequireToken(); err != nil {
		return err
	}

	client := sas.NewClient(sas.Config{
		ServerURL:    target.ServerURL,
		PollInterval: opts.pollInterval,
		MaxPollCount: opts.maxPollCount,
		Logger:       logger,
	})

	runID := uuid.New()
	cfg := orchestrator.Config{
		Client:      client,
		Reporter:    out,
		AppLoc:      target.AppLoc,
		ContextName: target.ContextName,
		AccessToken: target.AccessToken,
		RunID:       runID,
		Logger:      logger,
	}

	if opts.logFolder != "" {
		persister := joblog.New(joblog.Config{
			Folder:      opts.logFolder,
			Fetcher:     client,
			AccessToken: target.AccessToken,
			Logger:      logger,
		})
		if err := persister.Prepare(); err != nil {
			return err
		}
		logger.Info("saving job logs", "folder", persister.Folder())
		cfg.LogSaver = persister
	}

	if opts.csvFile != "" {
		recorder := results.NewCSVRecorder(opts.csvFile, logger)
		if err := recorder.Init(opts.appendCSV); err != nil {
			return err
		}
		cfg.Recorders = append(cfg.Recorders, recorder)
	}

	if dsn := resultsDSN(opts.resultsDB); dsn != "" {
		pool, err := repo.NewPool(ctx, dsn)
		if err != nil {
			return err
		}
		defer pool.Close()

		resultRepo := repo.NewResultRepo(pool, runID)
		if err := resultRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		cfg.Recorders = append(cfg.Recorders, resultRepo)
		logger.Info("recording results to database", "run_id", runID)
	}

	if url := mq.URL(opts.amqpURL); url != "" {
		conn, err := mq.NewConnection(url, logger)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := mq.SetupTopology(ctx, conn); err != nil {
			return err
		}
		logger.Debug("rabbitmq topology ready", "topology", mq.TopologyInfo())
		cfg.Notifier = mq.NewPublisher(conn, logger)
	}

	metrics := telemetry.NewMetrics()
	cfg.Metrics = metrics
	if opts.metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, opts.metricsAddr); err != nil {
				logger.Error("metrics server failed", "addr", opts.metricsAddr, "error", err)
			}
		}()
	}

	sched := orchestrator.New(cfg)

	out.ExecutingFlow(target.Name, target.AppLoc)

	summary, runErr := sched.Run(ctx, engine.BuildGraph(spec))
	if summary != nil {
		printSummary(out, summary)
	}

	if opts.metricsFile != "" {
		if err := metrics.WriteToTextfile(opts.metricsFile); err != nil {
			logger.Error("failed to write metrics file", "path", opts.metricsFile, "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if !summary.OK() {
		return ErrFlowsFailed
	}
	return nil
}

// resultsDSN returns the database DSN from the flag or DB_URL.
func resultsDSN(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("DB_URL")
}

func printSummary(out *Output, summary *orchestrator.Summary) {
	headers := []string{"FLOW", "STATUS", "JOBS", "SUCCEEDED", "FAILED"}
	rows := make([][]string, len(summary.Flows))
	for i, f := range summary.Flows {
		rows[i] = []string{
			f.Name,
			f.Status.String(),
			strconv.Itoa(f.Jobs),
			strconv.Itoa(f.Succeeded),
			strconv.Itoa(f.Failed),
		}
	}
	out.Print(headers, rows, summary)
}

func newFlowValidateCmd(outputFn func() *Output) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a flow definition file without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			spec, err := engine.LoadFlowSpec(source)
			if err != nil {
				return err
			}

			graph := engine.BuildGraph(spec)
			for _, issue := range graph.Issues {
				out.ValidationFailed(issue)
			}

			headers := []string{"FLOW", "JOBS", "PREDECESSORS", "VALID"}
			rows := make([][]string, 0, graph.Size())
			views := make([]flowView, 0, graph.Size())
			for _, node := range graphNodes(graph) {
				view := flowView{
					Name:         node.Name,
					Jobs:         len(node.Def.Jobs),
					Predecessors: node.Def.Predecessors,
					Valid:        node.Valid(),
				}
				for _, issue := range node.Issues {
					view.Issues = append(view.Issues, issue.Message)
				}
				views = append(views, view)
				rows = append(rows, []string{
					view.Name,
					strconv.Itoa(view.Jobs),
					domain.JoinPredecessors(view.Predecessors),
					strconv.FormatBool(view.Valid),
				})
			}
			out.Print(headers, rows, views)

			if len(graph.Issues) > 0 {
				return fmt.Errorf("%w: %d issue(s)", ErrInvalidFlows, len(graph.Issues))
			}
			out.Success(fmt.Sprintf("%d flow(s) with %d job(s) are valid", graph.Size(), graph.JobCount()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Flow definition file (.json, .yaml or .yml)")
	cmd.MarkFlagRequired("source")

	return cmd
}

// flowView is the validate output of one flow.
type flowView struct {
	Name         string   `json:"name"`
	Jobs         int      `json:"jobs"`
	Predecessors []string `json:"predecessors"`
	Valid        bool     `json:"valid"`
	Issues       []string `json:"issues,omitempty"`
}

// graphNodes returns the nodes sorted by name.
func graphNodes(g *engine.Graph) []*engine.Node {
	names := make([]string, 0, g.Size())
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	nodes := make([]*engine.Node, len(names))
	for i, name := range names {
		nodes[i] = g.Nodes[name]
	}
	return nodes
}

func newFlowWatchCmd(outputFn func() *Output) *cobra.Command {
	var amqpURL string
	var flowsOnly bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print completion events published by running executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			logger := telemetry.FromContext(cmd.Context())

			url := mq.URL(amqpURL)
			if url == "" {
				return errors.New("--amqp-url or RABBITMQ_URL is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, err := mq.NewConnection(url, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			keys := []mq.RoutingKey{mq.RoutingKeyAll}
			if flowsOnly {
				keys = []mq.RoutingKey{mq.RoutingKeyFlowCompleted}
			}
			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Declare: func(ctx context.Context) (mq.Queue, error) {
					return mq.DeclareWatchQueue(ctx, conn, keys...)
				},
				Handler:  watchHandler(out),
				Prefetch: 16,
			})

			out.Success("Watching for events, press Ctrl+C to stop")
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&amqpURL, "amqp-url", "", "RabbitMQ URL (default: $RABBITMQ_URL)")
	cmd.Flags().BoolVar(&flowsOnly, "flows-only", false, "Only print flow completion events")

	return cmd
}

// watchHandler prints received events as status lines, or as JSON.
func watchHandler(out *Output) mq.Handler {
	return func(ctx context.Context, d *mq.Delivery) error {
		msg := &d.Message

		if out.jsonMode {
			out.JSON(msg)
			return nil
		}

		switch msg.Type {
		case mq.MessageTypeJobCompleted:
			p, err := mq.ParsePayload[mq.JobCompletedPayload](msg)
			if err != nil {
				return err
			}
			if p.Error != "" {
				out.JobFailed(p.Flow, p.Location, errors.New(p.Error))
			} else {
				out.JobCompleted(p.Flow, p.Location)
			}

		case mq.MessageTypeFlowCompleted:
			p, err := mq.ParsePayload[mq.FlowCompletedPayload](msg)
			if err != nil {
				return err
			}
			if p.Status == domain.FlowStatusSucceeded.String() {
				out.FlowSucceeded(p.Flow)
			} else {
				out.FlowFailed(p.Flow)
			}

		default:
			out.Warn(fmt.Sprintf("unknown event type %q", strings.TrimSpace(string(msg.Type))))
		}
		return nil
	}
}
