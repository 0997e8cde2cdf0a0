package cli

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/sasflow/internal/domain"
	"github.com/shaiso/sasflow/internal/repo"
	"github.com/shaiso/sasflow/internal/results"
)

// NewResultsCmd creates the results command group.
func NewResultsCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect recorded job results",
	}

	cmd.AddCommand(newResultsShowCmd(outputFn))

	return cmd
}

func newResultsShowCmd(outputFn func() *Output) *cobra.Command {
	var (
		csvFile   string
		resultsDB string
		runID     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the job results of a CSV file or a recorded run",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			var (
				rows []domain.ResultRow
				err  error
			)
			if csvFile != "" {
				rows, err = results.ReadCSV(csvFile)
				if err != nil {
					return err
				}
			} else {
				dsn := resultsDSN(resultsDB)
				if dsn == "" {
					return ErrNoResultSource
				}

				ctx := cmd.Context()
				pool, err := repo.NewPool(ctx, dsn)
				if err != nil {
					return err
				}
				defer pool.Close()

				var run uuid.UUID
				if runID != "" {
					run, err = uuid.Parse(runID)
					if err != nil {
						return fmt.Errorf("invalid run id %q: %w", runID, err)
					}
				} else if run, err = repo.LatestRunID(ctx, pool); err != nil {
					return err
				}

				rows, err = repo.NewResultRepo(pool, run).List(ctx)
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Results of run %s", run))
			}

			printResults(out, rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&csvFile, "csv-file", "c", "", "CSV file with job results")
	cmd.Flags().StringVar(&resultsDB, "results-db", "", "PostgreSQL DSN with job results (default: $DB_URL)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run to show (default: latest)")

	return cmd
}

func printResults(out *Output, rows []domain.ResultRow) {
	headers := []string{"ID", "FLOW", "PREDECESSORS", "LOCATION", "STATUS", "LOG"}
	table := make([][]string, len(rows))
	for i, r := range rows {
		table[i] = []string{
			strconv.Itoa(r.ID),
			r.Flow,
			r.Predecessors,
			r.Location,
			r.Status.String(),
			r.LogLocation,
		}
	}
	if rows == nil {
		rows = []domain.ResultRow{}
	}
	out.Print(headers, table, rows)
}
