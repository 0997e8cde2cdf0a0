// sasflow executes flows of SAS jobs on a SAS Viya server.
//
// Usage:
//
//	sasflow [--json] <command> <subcommand> [flags]
//
// Commands:
//
//	flow     Execute, validate and watch flows
//	results  Show recorded job results
//	target   List configured targets
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/sasflow/internal/cli"
	"github.com/shaiso/sasflow/internal/telemetry"
)

// version is set with ldflags at build time.
var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "sasflow",
		Short:         "sasflow runs dependent flows of SAS jobs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewFlowCmd(outputFn),
		cli.NewResultsCmd(outputFn),
		cli.NewTargetCmd(outputFn),
	)

	ctx := telemetry.WithLogger(context.Background(), telemetry.SetupLogger())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
