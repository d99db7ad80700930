// Package app wires configuration into the harvesting components and runs
// the orchestrator.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/okapi-harvester/internal/clock/system"
	"github.com/JakeFAU/okapi-harvester/internal/config"
	"github.com/JakeFAU/okapi-harvester/internal/discovery"
	"github.com/JakeFAU/okapi-harvester/internal/dispatcher"
	"github.com/JakeFAU/okapi-harvester/internal/download"
	collyfetcher "github.com/JakeFAU/okapi-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/okapi-harvester/internal/harvest"
	"github.com/JakeFAU/okapi-harvester/internal/id/uuid"
	"github.com/JakeFAU/okapi-harvester/internal/logging"
	"github.com/JakeFAU/okapi-harvester/internal/manifest"
	"github.com/JakeFAU/okapi-harvester/internal/metadata"
	"github.com/JakeFAU/okapi-harvester/internal/metrics"
	"github.com/JakeFAU/okapi-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/okapi-harvester/internal/resolver"
	"github.com/JakeFAU/okapi-harvester/internal/state"
	"github.com/JakeFAU/okapi-harvester/internal/storage/local"
	"github.com/JakeFAU/okapi-harvester/internal/worker"
)

// Options overrides collaborators, mainly for tests. Zero values select the
// production implementations.
type Options struct {
	Fs            afero.Fs
	PageTransport http.RoundTripper
	MediaClient   *http.Client
	Clock         harvest.Clock
	IDs           harvest.IDGenerator
}

// App holds the services shared by one command invocation.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *local.Store
	throttle   *ratelimit.Limiter
	resolver   *resolver.Resolver
	downloader *download.Manager
	recorder   *metadata.Recorder
	builder    *manifest.Builder
	clock      harvest.Clock
	ids        harvest.IDGenerator
}

// New builds every component from cfg. All failures wrap harvest.ErrConfig
// and happen before any remote request is made.
func New(cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.IDs == nil {
		opts.IDs = uuid.New()
	}

	store, err := local.New(opts.Fs, local.Config{BaseDir: cfg.Harvest.Out})
	if err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}

	patterns, err := resolver.CompilePatterns(cfg.Source.Patterns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", harvest.ErrConfig, err)
	}
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.HTTP.PageTimeout,
		Transport: opts.PageTransport,
	})
	res, err := resolver.New(resolver.Config{
		BaseURL:  cfg.Source.BaseURL,
		Origin:   cfg.Source.Origin,
		Series:   cfg.Source.Series,
		Patterns: patterns,
	}, fetcher, logger.Named("resolver"))
	if err != nil {
		return nil, err
	}

	throttle := ratelimit.New(ratelimit.Config{Interval: cfg.Harvest.DispatchDelay})
	dlCfg := download.Config{UserAgent: cfg.Source.UserAgent, Timeout: cfg.HTTP.MediaTimeout}
	downloader := download.New(store, opts.MediaClient, throttle, dlCfg, logger.Named("download"))
	recorder := metadata.NewRecorder(store, opts.Clock, cfg.Source.Name)
	builder := manifest.NewBuilder(store, recorder, manifest.Config{
		Source:     cfg.Source.Name,
		Language:   cfg.Source.Language,
		Extensions: cfg.Source.MediaExtensions,
	}, logger.Named("manifest"))

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		throttle:   throttle,
		resolver:   res,
		downloader: downloader,
		recorder:   recorder,
		builder:    builder,
		clock:      opts.Clock,
		ids:        opts.IDs,
	}, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store exposes the output directory store.
func (a *App) Store() *local.Store {
	return a.store
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Report summarizes a harvest run.
type Report struct {
	RunID           string
	Window          discovery.Window
	Dispatched      []harvest.ArticleID
	Summary         harvest.Summary
	Processed       int
	ManifestEntries int
	Duration        time.Duration
}

// Harvest plans the window, dispatches each ID to the worker pool, then
// persists state, metadata, the manifest and metrics. Per-ID failures only
// show up in the summary; the returned error covers planning and end-of-run
// persistence.
func (a *App) Harvest(ctx context.Context) (Report, error) {
	start := a.clock.Now()
	runID, err := a.ids.NewID()
	if err != nil {
		return Report{}, err
	}
	log := logging.ForRun(a.logger, runID)
	report := Report{RunID: runID}

	processed, err := state.Load(a.store)
	if err != nil {
		return report, err
	}

	window, err := a.plan(ctx, log)
	if err != nil {
		return report, err
	}
	report.Window = window

	ids := window.IDs()
	if a.cfg.Harvest.Incremental {
		before := len(ids)
		ids = processed.Filter(ids)
		log.Info("incremental filter applied", zap.Int("planned", before), zap.Int("remaining", len(ids)))
	}
	report.Dispatched = ids

	run := metrics.NewRun()
	a.throttle.OnDelay(run.ObserveThrottleDelay)

	log.Info("harvest starting",
		zap.Stringer("window", window),
		zap.Int("dispatch", len(ids)),
		zap.Int("threads", a.cfg.Harvest.Threads),
		zap.Bool("dry_run", a.cfg.Harvest.DryRun))

	workers := make([]dispatcher.Processor, a.cfg.Harvest.Threads)
	for i := range workers {
		workers[i] = worker.New(a.resolver, a.downloader, a.throttle,
			worker.Config{DryRun: a.cfg.Harvest.DryRun},
			log.Named("worker").With(zap.Int("index", i)))
	}
	report.Summary = dispatcher.New(workers).Run(ctx, ids, func(r harvest.Result) {
		run.ObserveResult(r)
		if a.cfg.Harvest.DryRun {
			return
		}
		processed.Add(r.ID)
		a.recordMetadata(log, r)
	})

	var errs []error
	if !a.cfg.Harvest.DryRun {
		if err := processed.Save(); err != nil {
			errs = append(errs, err)
		}
		if a.cfg.Harvest.Manifest {
			n, err := a.builder.Write()
			if err != nil {
				errs = append(errs, err)
			}
			report.ManifestEntries = n
			run.SetManifestEntries(n)
		}
	}
	report.Processed = processed.Len()
	run.SetProcessed(report.Processed)

	end := a.clock.Now()
	report.Duration = end.Sub(start)
	run.Finish(start, end)
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := run.WriteTextfile(path); err != nil {
			log.Warn("metrics export failed", zap.Error(err))
		}
	}

	a.logSummary(log, report)
	return report, errors.Join(errs...)
}

func (a *App) plan(ctx context.Context, log *zap.Logger) (discovery.Window, error) {
	h := a.cfg.Harvest
	if h.ExplicitRange() {
		return discovery.Explicit(harvest.ArticleID(h.Start), harvest.ArticleID(h.End)), nil
	}

	policy, err := discovery.ParsePolicy(a.cfg.Discovery.OnError)
	if err != nil {
		return discovery.Window{}, err
	}
	d, err := discovery.New(discovery.Config{
		Baseline:  harvest.ArticleID(a.cfg.Discovery.Baseline),
		MaxProbes: a.cfg.Discovery.MaxProbes,
		Delay:     a.cfg.Discovery.ProbeDelay,
		OnError:   policy,
	}, a.resolver, log.Named("discovery"))
	if err != nil {
		return discovery.Window{}, err
	}
	rep, err := d.Discover(ctx)
	if err != nil {
		return discovery.Window{}, fmt.Errorf("discover range: %w", err)
	}
	window := rep.Window(h.Latest)
	if window.Empty() {
		log.Warn("discovery found no articles", zap.Int("baseline", a.cfg.Discovery.Baseline))
	}
	return window, nil
}

// recordMetadata writes the per-item record. A skipped item keeps whatever
// record already exists for its filename.
func (a *App) recordMetadata(log *zap.Logger, r harvest.Result) {
	if !a.cfg.Harvest.Metadata {
		return
	}
	var err error
	switch r.Outcome {
	case harvest.OutcomeDownloaded:
		err = a.recorder.Record(r.Article)
	case harvest.OutcomeSkipped:
		_, err = a.recorder.RecordIfAbsent(r.Article)
	default:
		return
	}
	if err != nil {
		log.Error("metadata write failed", zap.Int("article_id", int(r.ID)), zap.Error(err))
	}
}

func (a *App) logSummary(log *zap.Logger, report Report) {
	fields := []zap.Field{
		zap.Int("dispatched", report.Summary.Dispatched),
		zap.Int("failed", report.Summary.Failed()),
		zap.Int("processed_total", report.Processed),
		zap.Int("manifest_entries", report.ManifestEntries),
		zap.Duration("elapsed", report.Duration),
	}
	for _, o := range harvest.AllOutcomes {
		fields = append(fields, zap.Int(string(o), report.Summary.Count(o)))
	}
	log.Info("harvest finished", fields...)
}

var trailingDigits = regexp.MustCompile(`(\d+)/?$`)

// Fetch resolves and downloads a single article given its numeric ID or page
// URL, without touching the processed set or metadata.
func (a *App) Fetch(ctx context.Context, target string) (harvest.ResolvedArticle, harvest.DownloadResult, error) {
	var res harvest.Resolution
	if n, err := strconv.Atoi(target); err == nil && n > 0 {
		res = a.resolver.Resolve(ctx, harvest.ArticleID(n))
	} else {
		var id harvest.ArticleID
		if m := trailingDigits.FindStringSubmatch(target); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				id = harvest.ArticleID(n)
			}
		}
		res = a.resolver.ResolveURL(ctx, id, target)
	}

	switch {
	case res.Kind == harvest.KindError:
		return harvest.ResolvedArticle{}, harvest.DownloadResult{}, res.Err
	case res.IsBoundary():
		return harvest.ResolvedArticle{}, harvest.DownloadResult{}, fmt.Errorf("%w: %s", harvest.ErrNotFound, target)
	case res.Kind == harvest.KindNotFound:
		return harvest.ResolvedArticle{}, harvest.DownloadResult{}, fmt.Errorf("%w: no media link on %s", harvest.ErrExtraction, target)
	}

	dl, err := a.downloader.Download(ctx, res.Article)
	return res.Article, dl, err
}
