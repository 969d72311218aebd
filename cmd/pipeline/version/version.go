package version

import (
	"fmt"
	"runtime"

	"github.com/flarebyte/kiln/internal/buildinfo"
	"github.com/spf13/cobra"
)

// NewCmd returns the `pipeline version` command.
func NewCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !asJSON {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "pipeline %s\n", buildinfo.Summary())
				return err
			}
			out := map[string]any{
				"version":  buildinfo.Version,
				"commit":   buildinfo.Commit,
				"date":     buildinfo.Date,
				"built_by": buildinfo.BuiltBy,
				"go":       runtime.Version(),
				"go_os":    runtime.GOOS,
				"go_arch":  runtime.GOARCH,
			}
			return encodeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print detailed JSON version info")
	return cmd
}
