// Package collyfetcher fetches article pages using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultTimeout = 10 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Page is the raw result of one page fetch. Non-success statuses are
// reported through StatusCode, not as errors.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the page was served with a 2xx status.
func (p Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// Fetcher performs single-page GETs with a cloned Colly collector per call.
type Fetcher struct {
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState is written only by collector callbacks running on the visit goroutine.
type fetchState struct {
	page      Page
	responded bool
	err       error
}

// New builds a Fetcher. Revisits are allowed because discovery and harvesting
// may resolve the same article in one process.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.SetRequestTimeout(timeout)

	return &Fetcher{baseCollector: c}
}

// Fetch executes a single HTTP GET. It returns an error only when no HTTP
// response was obtained at all (connection failure, timeout, cancellation).
func (f *Fetcher) Fetch(ctx context.Context, url string) (Page, error) {
	collector := f.baseCollector.Clone()
	start := time.Now()
	state := &fetchState{}
	configureCollectorHooks(collector, start, state)

	done := make(chan fetchState, 1)
	go func() {
		visitErr := collector.Visit(url)
		if visitErr != nil && !state.responded && state.err == nil {
			state.err = visitErr
		}
		done <- *state
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case res := <-done:
		if res.responded {
			res.page.URL = url
			return res.page, nil
		}
		if res.err != nil {
			return Page{}, fmt.Errorf("colly visit failed: %w", res.err)
		}
		return Page{}, errors.New("colly fetch produced no result")
	}
}

func configureCollectorHooks(hooks collectorHooks, start time.Time, state *fetchState) {
	hooks.OnResponse(func(r *colly.Response) {
		state.page = Page{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		state.responded = true
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			state.page = Page{
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
				Duration:   time.Since(start),
			}
			state.responded = true
			return
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		state.err = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
