// Package dispatcher fans article IDs out to a pool of workers and funnels
// their results through a single coordinator.
package dispatcher

import (
	"context"
	"sync"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
)

// Processor runs the pipeline for one ID stream. *worker.Worker satisfies it.
type Processor interface {
	Run(ctx context.Context, jobs <-chan harvest.ArticleID, results chan<- harvest.Result)
}

// ResultHandler observes each completed ID. It is only ever called from the
// coordinating goroutine, so it may mutate shared state without locking.
type ResultHandler func(harvest.Result)

// Dispatcher fans out work to a pool of workers.
type Dispatcher struct {
	workers []Processor
}

// New creates a Dispatcher.
func New(workers []Processor) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// Size returns the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run dispatches ids to the workers and blocks until every ID has reported a
// result. onResult may be nil.
func (d *Dispatcher) Run(ctx context.Context, ids []harvest.ArticleID, onResult ResultHandler) harvest.Summary {
	summary := harvest.NewSummary()
	if len(ids) == 0 || len(d.workers) == 0 {
		return summary
	}

	jobs := make(chan harvest.ArticleID)
	results := make(chan harvest.Result, len(d.workers))

	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk Processor) {
			defer wg.Done()
			wk.Run(ctx, jobs, results)
		}(w)
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			jobs <- id
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		summary.Add(r.Outcome)
		if onResult != nil {
			onResult(r)
		}
	}
	return summary
}
