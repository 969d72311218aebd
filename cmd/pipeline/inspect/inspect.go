package inspect

import (
	"encoding/json"

	"github.com/flarebyte/kiln/cmd/pipeline/cli"
	"github.com/flarebyte/kiln/internal/runlog"
	"github.com/spf13/cobra"
)

// NewCmd returns the `pipeline inspect` command.
func NewCmd() *cobra.Command {
	var (
		stateFile string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:           "inspect",
		Short:         "Print the outcome of the last run",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cli.StatePath(stateFile, nil)
			if err != nil {
				return err
			}
			run, err := runlog.Load(path)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}
			return cli.WriteSummary(cmd.OutOrStdout(), run)
		},
	}
	cmd.Flags().StringVar(&stateFile, "state-file", "", "Run log to read (default under the XDG state directory)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run as JSON")
	return cmd
}
