package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/okapi-harvester/internal/schedule"
)

// newScheduleCmd creates the 'schedule' subcommand. Each tick runs
// 'harvest' in a fresh child process so nothing is shared between runs.
func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Re-run harvest on a fixed cadence",
		Long: `Invokes "okapi-harvester harvest" with schedule.args on every tick of the
configured cadence (--interval hourly|daily|weekly, or a --cron expression).
Each run is bounded by --timeout. Use --once for a single invocation.`,
		Args: cobra.NoArgs,
		RunE: runScheduleCommand,
	}
	f := cmd.Flags()
	f.String("interval", "daily", "cadence: hourly, daily or weekly")
	f.String("cron", "", "cron expression overriding --interval")
	f.Duration("timeout", 0, "maximum duration of one harvest run")
	f.Bool("once", false, "run harvest once and exit")
	return cmd
}

func runScheduleCommand(cmd *cobra.Command, _ []string) error {
	s, err := resolveSession(cmd.Context())
	if err != nil {
		return err
	}
	spec, err := schedule.Spec(s.cfg.Schedule.Interval, s.cfg.Schedule.Cron)
	if err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	args := []string{"harvest"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	args = append(args, s.cfg.Schedule.Args...)
	runner := schedule.CommandRunner{
		Path:    exe,
		Args:    args,
		Timeout: s.cfg.Schedule.Timeout,
		Stdout:  cmd.OutOrStdout(),
		Stderr:  cmd.ErrOrStderr(),
	}

	logger := s.logger.Named("schedule")
	sched, err := schedule.New(spec, runner, logger)
	if err != nil {
		return err
	}

	if once, _ := cmd.Flags().GetBool("once"); once {
		return sched.RunOnce(cmd.Context())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("scheduling harvest", zap.String("spec", spec), zap.Strings("args", args))
	return sched.Run(ctx)
}
