// Package worker runs the per-article pipeline: resolve, then conditionally download.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
)

// Config controls Worker behavior.
type Config struct {
	// DryRun resolves articles without downloading them.
	DryRun bool
}

// Worker processes article IDs end to end, one at a time.
type Worker struct {
	resolver   harvest.Resolver
	downloader harvest.Downloader
	throttle   harvest.Throttle
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. The throttle is awaited before every page request.
func New(
	resolver harvest.Resolver,
	downloader harvest.Downloader,
	throttle harvest.Throttle,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		resolver:   resolver,
		downloader: downloader,
		throttle:   throttle,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run consumes IDs until jobs is closed, sending one Result per ID.
func (w *Worker) Run(ctx context.Context, jobs <-chan harvest.ArticleID, results chan<- harvest.Result) {
	for id := range jobs {
		results <- w.Process(ctx, id)
	}
}

// Process runs the pipeline for one ID. Every failure is folded into the
// returned Result; nothing escapes to the caller.
func (w *Worker) Process(ctx context.Context, id harvest.ArticleID) harvest.Result {
	result := w.process(ctx, id)
	w.logResult(result)
	return result
}

func (w *Worker) process(ctx context.Context, id harvest.ArticleID) harvest.Result {
	if w.throttle != nil {
		if err := w.throttle.Wait(ctx); err != nil {
			return harvest.Result{ID: id, Outcome: harvest.OutcomeResolutionError, Err: fmt.Errorf("%w: %w", harvest.ErrNetwork, err)}
		}
	}

	res := w.resolver.Resolve(ctx, id)
	switch res.Kind {
	case harvest.KindError:
		return harvest.Result{ID: id, Outcome: harvest.OutcomeResolutionError, Err: res.Err}
	case harvest.KindNotFound:
		if res.Reason == harvest.ReasonRemote404 {
			return harvest.Result{ID: id, Outcome: harvest.OutcomeNotFound}
		}
		return harvest.Result{ID: id, Outcome: harvest.OutcomeNoMedia}
	}

	if w.cfg.DryRun {
		return harvest.Result{ID: id, Outcome: harvest.OutcomeResolved, Article: res.Article}
	}

	dl, err := w.downloader.Download(ctx, res.Article)
	switch {
	case err != nil:
		return harvest.Result{ID: id, Outcome: harvest.OutcomeDownloadFailed, Article: res.Article, Err: err}
	case dl.Skipped:
		return harvest.Result{ID: id, Outcome: harvest.OutcomeSkipped, Article: res.Article, Download: dl}
	default:
		return harvest.Result{ID: id, Outcome: harvest.OutcomeDownloaded, Article: res.Article, Download: dl}
	}
}

func (w *Worker) logResult(r harvest.Result) {
	fields := []zap.Field{
		zap.Int("article_id", int(r.ID)),
		zap.String("outcome", string(r.Outcome)),
	}
	if r.HasArticle() {
		fields = append(fields, zap.String("filename", r.Article.Filename))
	}

	switch r.Outcome {
	case harvest.OutcomeDownloaded:
		w.logger.Info("downloaded", append(fields, zap.String("path", r.Download.Path), zap.Int64("bytes", r.Download.Bytes))...)
	case harvest.OutcomeSkipped:
		w.logger.Info("already present, skipped", fields...)
	case harvest.OutcomeResolved:
		w.logger.Info("resolved (dry run)", append(fields, zap.String("media_url", r.Article.MediaURL))...)
	case harvest.OutcomeNotFound:
		w.logger.Info("article not found", append(fields, zap.String("reason", string(harvest.ReasonRemote404)))...)
	case harvest.OutcomeNoMedia:
		w.logger.Warn("no media link on page", append(fields, zap.String("reason", string(harvest.ReasonNoMediaPattern)))...)
	default:
		w.logger.Error("article failed", append(fields, zap.Error(r.Err))...)
	}
}
