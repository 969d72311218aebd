package validate

import (
	"fmt"
	"strings"

	"github.com/flarebyte/kiln/cmd/pipeline/cli"
	"github.com/flarebyte/kiln/internal/orchestrator"
	"github.com/spf13/cobra"
)

// NewCmd returns the `pipeline validate` command.
func NewCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:           "validate",
		Short:         "Check stage ordering and entry points without running anything",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			v, err := orchestrator.Validate(ctx, cfg.Stages, cfg.Starting(), cli.NewEnv(ctx, cfg))
			if err != nil {
				return cli.ConfigError(err)
			}
			w := cmd.OutOrStdout()
			if err := cli.WritePlan(w, v.Plan); err != nil {
				return err
			}
			var unresolved []string
			for _, c := range v.EntryPoints {
				switch {
				case !c.Determinable:
					_, _ = fmt.Fprintf(w, "entry point %s: decided at run time\n", c.Stage)
				case c.Err != nil:
					unresolved = append(unresolved, c.Stage)
					_, _ = fmt.Fprintf(w, "entry point %s: %s\n", c.Stage, cli.Sanitize(c.Err))
					if h := orchestrator.Hint(c.Err); h != "" {
						_, _ = fmt.Fprintf(w, "  hint: %s\n", h)
					}
					for _, cand := range c.Resolution.Candidates {
						_, _ = fmt.Fprintf(w, "  candidate: %s\n", cand)
					}
				default:
					_, _ = fmt.Fprintf(w, "entry point %s: %s\n", c.Stage, c.Resolution.Chosen)
				}
			}
			if len(unresolved) > 0 {
				return cli.ExitError{Code: cli.ExitFailed, Msg: "unresolved entry point: " + strings.Join(unresolved, ", ")}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to config file (.cue)")
	return cmd
}
