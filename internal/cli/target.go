package cli

import (
	"github.com/spf13/cobra"

	"github.com/shaiso/sasflow/internal/config"
)

// NewTargetCmd creates the target command group.
func NewTargetCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Inspect configured targets",
	}

	cmd.AddCommand(newTargetListCmd(outputFn))

	return cmd
}

func newTargetListCmd(outputFn func() *Output) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the targets of the local and global config",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			targets, def, err := config.List(config.Options{ConfigFile: configFile})
			if err != nil {
				return err
			}

			headers := []string{"NAME", "TYPE", "SERVER", "APP LOC", "DEFAULT", "SOURCE"}
			rows := make([][]string, len(targets))
			for i, t := range targets {
				mark := ""
				if t.Name == def {
					mark = "*"
				}
				rows[i] = []string{t.Name, t.ServerType, t.ServerURL, t.AppLoc, mark, t.Source}
			}

			out.Print(headers, rows, targets)
			return nil
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Config file with targets")

	return cmd
}
