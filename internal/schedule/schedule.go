// Package schedule re-invokes the harvester on a cron cadence. Each run is a
// separate process, so nothing in memory carries over between runs.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Spec turns an interval name or a cron expression into a schedule spec. A
// non-empty expression takes precedence over the interval.
func Spec(interval, expr string) (string, error) {
	spec := strings.TrimSpace(expr)
	if spec == "" {
		switch strings.ToLower(strings.TrimSpace(interval)) {
		case "hourly":
			spec = "@hourly"
		case "daily", "":
			spec = "@daily"
		case "weekly":
			spec = "@weekly"
		default:
			return "", fmt.Errorf("%w: unknown schedule interval %q", harvest.ErrConfig, interval)
		}
	}
	if _, err := parser.Parse(spec); err != nil {
		return "", fmt.Errorf("%w: parse schedule %q: %w", harvest.ErrConfig, spec, err)
	}
	return spec, nil
}

// Runner performs one scheduled invocation.
type Runner interface {
	Run(ctx context.Context) error
}

// CommandRunner executes a command, killing it after Timeout.
type CommandRunner struct {
	Path    string
	Args    []string
	Env     []string
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
}

// Run starts the command and waits for it to exit.
func (r CommandRunner) Run(ctx context.Context) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, r.Path, r.Args...)
	cmd.Env = r.Env
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("run %s: timed out after %s: %w", r.Path, r.Timeout, ctx.Err())
		}
		return fmt.Errorf("run %s: %w", r.Path, err)
	}
	return nil
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Scheduler triggers a Runner on a cron schedule.
type Scheduler struct {
	spec   string
	runner Runner
	logger *zap.Logger
}

// New validates spec and returns a Scheduler.
func New(spec string, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("%w: parse schedule %q: %w", harvest.ErrConfig, spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{spec: spec, runner: runner, logger: logger}, nil
}

// RunOnce performs a single invocation and logs its outcome.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	s.logger.Info("scheduled run starting")
	if err := s.runner.Run(ctx); err != nil {
		s.logger.Error("scheduled run failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return err
	}
	s.logger.Info("scheduled run finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Run blocks until ctx is done, triggering the runner on every tick. A tick
// that fires while the previous run is still going is skipped. Failures are
// logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context) error {
	clog := cronLogger{s: s.logger.Named("cron").Sugar()}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := c.AddFunc(s.spec, func() {
		_ = s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("%w: schedule %q: %w", harvest.ErrConfig, s.spec, err)
	}

	c.Start()
	if next := c.Entries(); len(next) > 0 {
		s.logger.Info("scheduler started", zap.String("spec", s.spec), zap.Time("next_run", next[0].Next))
	}
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}
