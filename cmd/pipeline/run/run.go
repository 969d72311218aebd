package run

import (
	"github.com/flarebyte/kiln/cmd/pipeline/cli"
	"github.com/flarebyte/kiln/internal/ctxlog"
	"github.com/flarebyte/kiln/internal/orchestrator"
	"github.com/flarebyte/kiln/internal/runlog"
	"github.com/spf13/cobra"
)

type options struct {
	cfgPath     string
	concurrency int
	timeout     string
	dryRun      bool
	stateFile   string
	progress    bool
}

// NewCmd returns the `pipeline run` command.
func NewCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "run",
		Short:         "Run the stages defined in a config",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}
	cmd.Flags().StringVarP(&o.cfgPath, "config", "c", "", "Path to config file (.cue)")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 0, "Maximum stages running at once (default from config)")
	cmd.Flags().StringVar(&o.timeout, "timeout", "", "Per-attempt stage timeout in seconds or as a duration like 15m (default from config)")
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "Print the execution plan and run nothing")
	cmd.Flags().StringVar(&o.stateFile, "state-file", "", "Where to write the run log")
	cmd.Flags().BoolVar(&o.progress, "progress", false, "Print progress lines to stderr")
	return cmd
}

func (o *options) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	log := ctxlog.FromContext(ctx)
	cfg, err := cli.LoadConfig(o.cfgPath)
	if err != nil {
		return err
	}
	plan, err := orchestrator.NewPlan(cfg.Stages, cfg.Starting())
	if err != nil {
		return cli.ConfigError(err)
	}
	if o.dryRun {
		return cli.WritePlan(cmd.OutOrStdout(), plan)
	}

	opts := orchestrator.Options{
		Name:        cfg.Name,
		Concurrency: cfg.Options.Concurrency,
		Timeout:     cfg.Options.Timeout,
		Env:         cli.NewEnv(ctx, cfg),
	}
	if cmd.Flags().Changed("concurrency") {
		if o.concurrency < 1 {
			return cli.ExitError{Code: cli.ExitConfig, Msg: "--concurrency must be at least 1"}
		}
		opts.Concurrency = o.concurrency
	}
	if cmd.Flags().Changed("timeout") {
		d, err := cli.ParseTimeout(o.timeout)
		if err != nil {
			return err
		}
		opts.Timeout = d
	}
	if o.progress {
		p := newProgressReporter(cmd.ErrOrStderr(), len(plan.Order), 0)
		p.start()
		defer p.close()
		opts.Observer = p
	}

	run, err := orchestrator.Execute(ctx, plan, opts)
	if err != nil {
		return cli.ConfigError(err)
	}
	if err := cli.WriteSummary(cmd.OutOrStdout(), run); err != nil {
		return err
	}
	if path, err := cli.StatePath(o.stateFile, cfg); err != nil {
		log.Warn("run log not saved", "err", err)
	} else if err := runlog.Save(path, run); err != nil {
		log.Warn("run log not saved", "path", path, "err", err)
	} else {
		log.Info("run log saved", "path", path)
	}
	return cli.RunExit(run)
}
