// Package download fetches resolved media to the output directory.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
	"github.com/JakeFAU/okapi-harvester/internal/storage/local"
)

const defaultTimeout = 15 * time.Second

// Config controls media requests.
type Config struct {
	UserAgent string
	// Timeout bounds time-to-headers and any stall between body reads.
	Timeout time.Duration
}

// Manager implements harvest.Downloader. A file exists at the target path
// only once its download completed; that presence is the idempotency marker.
type Manager struct {
	store    *local.Store
	client   *http.Client
	throttle harvest.Throttle
	cfg      Config
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// New constructs a Manager. A nil client gets one built by NewHTTPClient and
// a nil throttle disables request spacing.
func New(store *local.Store, client *http.Client, throttle harvest.Throttle, cfg Config, logger *zap.Logger) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if client == nil {
		client = NewHTTPClient(cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		client:   client,
		throttle: throttle,
		cfg:      cfg,
		logger:   logger,
		inflight: make(map[string]chan struct{}),
	}
}

// NewHTTPClient builds a streaming client whose transport bounds dialing,
// TLS and time-to-headers by cfg.Timeout.
func NewHTTPClient(cfg Config) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          16,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Download streams article.MediaURL to article.Filename. If the file already
// exists no request is made. On failure any staged data is removed and the
// error wraps harvest.ErrNetwork or harvest.ErrWrite.
func (m *Manager) Download(ctx context.Context, article harvest.ResolvedArticle) (harvest.DownloadResult, error) {
	name := article.Filename
	target, err := m.store.Path(name)
	if err != nil {
		return harvest.DownloadResult{}, fmt.Errorf("%w: %w", harvest.ErrWrite, err)
	}

	release, err := m.acquire(ctx, name)
	if err != nil {
		return harvest.DownloadResult{}, err
	}
	defer release()

	exists, err := m.store.Exists(name)
	if err != nil {
		return harvest.DownloadResult{}, fmt.Errorf("%w: %w", harvest.ErrWrite, err)
	}
	if exists {
		m.logger.Debug("media already present", zap.String("path", target))
		return harvest.DownloadResult{Path: target, Skipped: true}, nil
	}

	if m.throttle != nil {
		if err := m.throttle.Wait(ctx); err != nil {
			return harvest.DownloadResult{}, fmt.Errorf("%w: %w", harvest.ErrNetwork, err)
		}
	}

	n, written, err := m.fetch(ctx, article.MediaURL, name)
	if err != nil {
		return harvest.DownloadResult{}, err
	}
	if !written {
		return harvest.DownloadResult{Path: target, Skipped: true}, nil
	}
	return harvest.DownloadResult{Path: target, Bytes: n}, nil
}

func (m *Manager) fetch(ctx context.Context, mediaURL, name string) (int64, bool, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("%w: build request: %w", harvest.ErrNetwork, err)
	}
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("%w: get %s: %w", harvest.ErrNetwork, mediaURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, false, fmt.Errorf("%w: get %s: unexpected status %d", harvest.ErrNetwork, mediaURL, resp.StatusCode)
	}

	body := newIdleReader(resp.Body, m.cfg.Timeout, cancel)
	defer body.stop()

	n, written, err := m.store.WriteAtomic(name, body, false)
	if err != nil {
		if body.readErr != nil {
			return n, false, fmt.Errorf("%w: read %s after %d bytes: %w", harvest.ErrNetwork, mediaURL, n, err)
		}
		return n, false, fmt.Errorf("%w: %w", harvest.ErrWrite, err)
	}
	return n, written, nil
}

// acquire serializes downloads that target the same filename so a duplicate
// resolution waits and then observes the finished file instead of racing it.
func (m *Manager) acquire(ctx context.Context, name string) (func(), error) {
	for {
		m.mu.Lock()
		busy, ok := m.inflight[name]
		if !ok {
			done := make(chan struct{})
			m.inflight[name] = done
			m.mu.Unlock()
			return func() {
				m.mu.Lock()
				delete(m.inflight, name)
				m.mu.Unlock()
				close(done)
			}, nil
		}
		m.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: wait for in-flight %s: %w", harvest.ErrNetwork, name, ctx.Err())
		}
	}
}

// idleReader cancels the request when no bytes arrive for timeout and
// remembers the first read error so callers can tell network from disk failures.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	readErr error
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	return &idleReader{r: r, timeout: timeout, timer: time.AfterFunc(timeout, cancel)}
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	if err != nil && !errors.Is(err, io.EOF) && ir.readErr == nil {
		ir.readErr = err
	}
	return n, err
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}
