// Package metrics collects Prometheus metrics for one harvest run.
package metrics

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
)

// Run holds the collectors of a single run on a private registry, so
// consecutive runs in one process never share counters.
type Run struct {
	registry *prometheus.Registry

	articlesTotal   *prometheus.CounterVec
	mediaBytesTotal *prometheus.CounterVec
	throttleDelays  prometheus.Histogram
	processedIDs    prometheus.Gauge
	manifestEntries prometheus.Gauge
	runDuration     prometheus.Gauge
	lastRun         prometheus.Gauge
}

// NewRun registers a fresh set of collectors.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Run{
		registry: reg,
		articlesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "okapi_harvest_articles_total",
				Help: "Articles dispatched in this run, labeled by terminal outcome.",
			},
			[]string{"outcome"},
		),
		mediaBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "okapi_harvest_media_bytes_total",
				Help: "Media bytes written in this run, labeled by site.",
			},
			[]string{"site"},
		),
		throttleDelays: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "okapi_harvest_throttle_delay_seconds",
				Help:    "Time spent waiting on the courtesy throttle.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		processedIDs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "okapi_harvest_processed_ids",
			Help: "Size of the processed-article set after the run.",
		}),
		manifestEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "okapi_harvest_manifest_entries",
			Help: "Entries in the manifest written by the run.",
		}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "okapi_harvest_run_duration_seconds",
			Help: "Wall-clock duration of the run.",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "okapi_harvest_last_run_timestamp_seconds",
			Help: "Unix time at which the run finished.",
		}),
	}
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveResult counts one terminal outcome and any bytes it wrote.
func (r *Run) ObserveResult(res harvest.Result) {
	r.articlesTotal.WithLabelValues(string(res.Outcome)).Inc()
	if res.Download.Bytes > 0 {
		r.mediaBytesTotal.WithLabelValues(SanitizeSite(res.Article.MediaURL)).Add(float64(res.Download.Bytes))
	}
}

// ObserveThrottleDelay records the duration of a throttle wait.
func (r *Run) ObserveThrottleDelay(d time.Duration) {
	r.throttleDelays.Observe(d.Seconds())
}

// SetProcessed records the processed-set size.
func (r *Run) SetProcessed(n int) {
	r.processedIDs.Set(float64(n))
}

// SetManifestEntries records the manifest size.
func (r *Run) SetManifestEntries(n int) {
	r.manifestEntries.Set(float64(n))
}

// Finish records the run duration and completion time.
func (r *Run) Finish(start, end time.Time) {
	r.runDuration.Set(end.Sub(start).Seconds())
	r.lastRun.Set(float64(end.Unix()))
}

// Registry exposes the run registry.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
