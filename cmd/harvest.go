package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
)

// newHarvestCmd creates the 'harvest' subcommand, the orchestrator entry point.
func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Discover, resolve and download episodes",
		Long: `Harvests an explicit --start/--end range, or discovers the published range
from the configured baseline (optionally keeping only the --latest N IDs).
Media already on disk is never fetched again; --incremental also skips IDs
recorded by earlier runs.`,
		Args: cobra.NoArgs,
		RunE: runHarvestCommand,
	}

	f := cmd.Flags()
	f.String("out", "data/raw/okapi", "output directory")
	f.Int("threads", 3, "number of parallel workers")
	f.Int("start", 0, "first article ID of an explicit range")
	f.Int("end", 0, "last article ID of an explicit range")
	f.Int("latest", 0, "only harvest the N most recent discovered IDs")
	f.Bool("incremental", false, "skip IDs recorded in processed_articles.json")
	f.Bool("metadata", true, "write per-item metadata documents")
	f.Bool("manifest", true, "rebuild manifest.json at the end of the run")
	f.Bool("dry-run", false, "resolve media links without downloading")
	f.Duration("dispatch-delay", 0, "minimum delay between remote requests")
	f.Int("baseline", 0, "first ID probed during discovery")
	f.Int("max-probes", 0, "upper bound on discovery probes")
	f.Duration("probe-delay", 0, "pause between discovery probes")
	f.String("on-probe-error", "skip", "discovery policy for probe errors (skip or abort)")
	f.String("metrics-textfile", "", "write run metrics to this Prometheus textfile")
	return cmd
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	s, err := resolveSession(cmd.Context())
	if err != nil {
		return err
	}
	a, err := newApp(s.cfg, s.logger)
	if err != nil {
		return err
	}

	report, err := a.Harvest(cmd.Context())
	if err != nil {
		return fmt.Errorf("harvest: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "window %s: dispatched %d\n", report.Window, report.Summary.Dispatched)
	for _, o := range harvest.AllOutcomes {
		if n := report.Summary.Count(o); n > 0 {
			fmt.Fprintf(out, "  %-17s %d\n", o, n)
		}
	}
	s.logger.Debug("harvest command finished", zap.String("run_id", report.RunID))
	return nil
}
