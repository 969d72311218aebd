package root

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/flarebyte/kiln/cmd/pipeline/cli"
	"github.com/flarebyte/kiln/cmd/pipeline/inspect"
	"github.com/flarebyte/kiln/cmd/pipeline/run"
	"github.com/flarebyte/kiln/cmd/pipeline/validate"
	"github.com/flarebyte/kiln/cmd/pipeline/version"
	"github.com/flarebyte/kiln/internal/ctxlog"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for pipeline.
func NewRootCmd() *cobra.Command {
	var logLevel, logFormat string
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Build a web front end and a server bundle into one container image",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Show help when no subcommand is provided.
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch strings.ToLower(logFormat) {
			case "text", "json":
			default:
				return cli.ExitError{Code: cli.ExitConfig, Msg: fmt.Sprintf("unknown --log-format %q (text or json)", logFormat)}
			}
			logger := ctxlog.New(cmd.ErrOrStderr(), logLevel, logFormat)
			cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	// Subcommands
	cmd.AddCommand(version.NewCmd())
	cmd.AddCommand(run.NewCmd())
	cmd.AddCommand(validate.NewCmd())
	cmd.AddCommand(inspect.NewCmd())

	return cmd
}

// Execute runs the root command with provided args. SIGINT and SIGTERM
// cancel the command context.
func Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}
