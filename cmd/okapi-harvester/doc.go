// Package main hosts the okapi-harvester entrypoint.
//
// Architecture overview:
//   - Planning: harvest either takes an explicit --start/--end window or probes upward from
//     discovery.baseline until the site answers 404 (internal/discovery). --latest trims the probed
//     window to its trailing N IDs and --incremental drops IDs already in processed_articles.json.
//   - Dispatch: a fixed pool of workers (internal/worker) pulls IDs from an unbuffered channel; each
//     worker resolves the article page with Colly, extracts the media link and streams the file to a
//     staged path before renaming it into place (internal/download). A single coordinator goroutine
//     drains completions (internal/dispatcher), so the processed set and counters have one writer.
//   - Persistence: the processed set is saved once at the end of the run, metadata documents are
//     written per downloaded item, and manifest.json is rebuilt from what is actually on disk.
//   - Out-of-process collaborators: upload mirrors the directory to Cloud Storage and can publish a
//     Pub/Sub notification; schedule re-runs harvest as a child process on a cron cadence.
//
// Operational notes:
//   - Courtesy throttle: every remote request, from any worker, waits on one shared limiter
//     (harvest.dispatch_delay). Discovery probes are spaced by discovery.probe_delay.
//   - No retries: each ID gets a single attempt per run; failed IDs are still recorded as processed.
//   - Observability: zap logs carry run_id and article_id; when metrics.textfile is set the run's
//     Prometheus metrics are written there for the node exporter textfile collector.
//
// Quick checklist:
//   - Configure via flags, a --config file, or HARVEST_* env vars (HARVEST_HARVEST_THREADS,
//     HARVEST_UPLOAD_BUCKET, GOOGLE_SERVICE_ACCOUNT for upload credentials).
//   - Run locally: go run ./cmd/okapi-harvester harvest --latest 5 --incremental
package main
