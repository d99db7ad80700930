// Package discovery bounds the window of article IDs to harvest, either from
// an explicit range or by probing increasing IDs until the remote reports
// that one does not exist.
package discovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
)

// ProbeErrorPolicy selects what happens when a probe fails with a network error.
type ProbeErrorPolicy string

const (
	// PolicySkip records the failure and continues with the next ID.
	PolicySkip ProbeErrorPolicy = "skip"
	// PolicyAbort stops discovery and returns the probe error.
	PolicyAbort ProbeErrorPolicy = "abort"
)

// ParsePolicy validates a policy name. The empty string selects PolicySkip.
func ParsePolicy(raw string) (ProbeErrorPolicy, error) {
	switch ProbeErrorPolicy(raw) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyAbort:
		return PolicyAbort, nil
	default:
		return "", fmt.Errorf("%w: unknown probe error policy %q", harvest.ErrConfig, raw)
	}
}

// Window is an inclusive range of article IDs. A window with End < Start is empty.
type Window struct {
	Start harvest.ArticleID
	End   harvest.ArticleID
}

// Explicit returns the caller-supplied range verbatim.
func Explicit(start, end harvest.ArticleID) Window {
	return Window{Start: start, End: end}
}

// Empty reports whether the window holds no IDs.
func (w Window) Empty() bool {
	return w.End < w.Start || w.End <= 0
}

// Len returns the number of IDs in the window.
func (w Window) Len() int {
	if w.Empty() {
		return 0
	}
	return int(w.End-w.Start) + 1
}

// IDs lists the window in ascending order.
func (w Window) IDs() []harvest.ArticleID {
	ids := make([]harvest.ArticleID, 0, w.Len())
	for id := w.Start; !w.Empty() && id <= w.End; id++ {
		ids = append(ids, id)
	}
	return ids
}

func (w Window) String() string {
	if w.Empty() {
		return "[]"
	}
	return fmt.Sprintf("[%d,%d]", w.Start, w.End)
}

// Config controls autodiscovery.
type Config struct {
	Baseline  harvest.ArticleID
	MaxProbes int
	// Delay is the courtesy pause between consecutive probes.
	Delay   time.Duration
	OnError ProbeErrorPolicy
}

// Report describes a finished probe run.
type Report struct {
	Start harvest.ArticleID
	// Boundary is the last successfully probed ID, or zero when none succeeded.
	Boundary harvest.ArticleID
	Probes   int
	Failures []harvest.ArticleID
	// CapReached is set when MaxProbes ran out before a boundary was seen.
	CapReached bool
}

// Window returns the probed span, or its trailing latest IDs when latest > 0.
// The trailing window never reaches below the starting ID.
func (r Report) Window(latest int) Window {
	if r.Boundary < r.Start {
		return Window{Start: r.Start, End: r.Start - 1}
	}
	start := r.Start
	if latest > 0 {
		if trailing := r.Boundary - harvest.ArticleID(latest) + 1; trailing > start {
			start = trailing
		}
	}
	return Window{Start: start, End: r.Boundary}
}

type pauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Discoverer probes IDs with a Resolver.
type Discoverer struct {
	cfg      Config
	resolver harvest.Resolver
	pause    pauseController
	logger   *zap.Logger
}

// New validates cfg and returns a Discoverer.
func New(cfg Config, resolver harvest.Resolver, logger *zap.Logger) (*Discoverer, error) {
	if resolver == nil {
		return nil, fmt.Errorf("%w: discovery requires a resolver", harvest.ErrConfig)
	}
	if cfg.Baseline <= 0 {
		return nil, fmt.Errorf("%w: discovery baseline must be positive", harvest.ErrConfig)
	}
	if cfg.MaxProbes <= 0 {
		return nil, fmt.Errorf("%w: discovery max probes must be positive", harvest.ErrConfig)
	}
	policy, err := ParsePolicy(string(cfg.OnError))
	if err != nil {
		return nil, err
	}
	cfg.OnError = policy
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		cfg:      cfg,
		resolver: resolver,
		pause:    &timerPauseController{},
		logger:   logger,
	}, nil
}

// Discover resolves Baseline, Baseline+1, ... until one is remote-404 or
// MaxProbes is spent. Pages without a media link still count as existing.
// Network errors are handled according to OnError; with PolicyAbort the
// returned error wraps harvest.ErrNetwork.
func (d *Discoverer) Discover(ctx context.Context) (Report, error) {
	report := Report{Start: d.cfg.Baseline}
	for id := d.cfg.Baseline; report.Probes < d.cfg.MaxProbes; id++ {
		if report.Probes > 0 {
			d.pause.Pause(ctx, d.cfg.Delay)
		}
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("discovery interrupted at %d: %w", id, err)
		}

		res := d.resolver.Resolve(ctx, id)
		report.Probes++

		switch {
		case res.IsBoundary():
			d.logger.Info("discovery boundary reached",
				zap.Int("probe", int(id)),
				zap.Int("boundary", int(report.Boundary)),
				zap.Int("probes", report.Probes))
			return report, nil
		case res.Kind == harvest.KindError:
			report.Failures = append(report.Failures, id)
			if d.cfg.OnError == PolicyAbort {
				return report, fmt.Errorf("probe %d: %w", id, res.Err)
			}
			d.logger.Warn("probe failed, continuing", zap.Int("article_id", int(id)), zap.Error(res.Err))
		default:
			report.Boundary = id
			d.logger.Debug("probe ok", zap.Int("article_id", int(id)), zap.String("kind", res.Kind.String()))
		}
	}

	report.CapReached = true
	d.logger.Warn("discovery probe cap reached",
		zap.Int("max_probes", d.cfg.MaxProbes),
		zap.Int("boundary", int(report.Boundary)))
	return report, nil
}
