package discovery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
)

// scriptedResolver answers from a fixed table; unknown IDs are remote-404.
type scriptedResolver struct {
	mu      sync.Mutex
	found   map[harvest.ArticleID]bool
	noMedia map[harvest.ArticleID]bool
	failing map[harvest.ArticleID]bool
	calls   []harvest.ArticleID
}

func (s *scriptedResolver) Resolve(_ context.Context, id harvest.ArticleID) harvest.Resolution {
	s.mu.Lock()
	s.calls = append(s.calls, id)
	s.mu.Unlock()
	switch {
	case s.found[id]:
		return harvest.Found(harvest.ResolvedArticle{ID: id, Filename: fmt.Sprintf("%d.mp3", id)})
	case s.noMedia[id]:
		return harvest.NotFound(id, harvest.ReasonNoMediaPattern)
	case s.failing[id]:
		return harvest.Failed(id, fmt.Errorf("%w: connection reset", harvest.ErrNetwork))
	default:
		return harvest.NotFound(id, harvest.ReasonRemote404)
	}
}

func ids(from, to int) map[harvest.ArticleID]bool {
	m := make(map[harvest.ArticleID]bool)
	for i := from; i <= to; i++ {
		m[harvest.ArticleID(i)] = true
	}
	return m
}

type recordingPause struct{ delays []time.Duration }

func (r *recordingPause) Pause(_ context.Context, d time.Duration) { r.delays = append(r.delays, d) }

func newTestDiscoverer(t *testing.T, cfg Config, res harvest.Resolver) (*Discoverer, *recordingPause) {
	t.Helper()
	d, err := New(cfg, res, zap.NewNop())
	require.NoError(t, err)
	pause := &recordingPause{}
	d.pause = pause
	return d, pause
}

func TestDiscoverStopsAtRemote404(t *testing.T) {
	res := &scriptedResolver{found: ids(190, 195)}
	d, pause := newTestDiscoverer(t, Config{Baseline: 190, MaxProbes: 1000, Delay: time.Second}, res)

	report, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, harvest.ArticleID(195), report.Boundary)
	assert.Equal(t, 7, report.Probes)
	assert.False(t, report.CapReached)
	assert.Equal(t, Window{Start: 190, End: 195}, report.Window(0))
	assert.Len(t, res.calls, 7)
	assert.Len(t, pause.delays, 6)
	for _, delay := range pause.delays {
		assert.Equal(t, time.Second, delay)
	}
}

func TestDiscoverNoMediaExtendsBoundary(t *testing.T) {
	res := &scriptedResolver{found: ids(190, 191), noMedia: ids(192, 193)}
	d, _ := newTestDiscoverer(t, Config{Baseline: 190, MaxProbes: 100}, res)

	report, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, harvest.ArticleID(193), report.Boundary)
}

func TestDiscoverProbeErrorPolicy(t *testing.T) {
	t.Run("SkipContinuesPastFailure", func(t *testing.T) {
		res := &scriptedResolver{found: ids(190, 195), failing: ids(196, 196)}
		res.found[197] = true
		d, _ := newTestDiscoverer(t, Config{Baseline: 190, MaxProbes: 100, OnError: PolicySkip}, res)

		report, err := d.Discover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, harvest.ArticleID(197), report.Boundary)
		assert.Equal(t, []harvest.ArticleID{196}, report.Failures)
	})

	t.Run("AbortReturnsNetworkError", func(t *testing.T) {
		res := &scriptedResolver{found: ids(190, 192), failing: ids(193, 193)}
		res.found[194] = true
		d, _ := newTestDiscoverer(t, Config{Baseline: 190, MaxProbes: 100, OnError: PolicyAbort}, res)

		report, err := d.Discover(context.Background())
		require.ErrorIs(t, err, harvest.ErrNetwork)
		assert.Equal(t, harvest.ArticleID(192), report.Boundary)
		assert.NotContains(t, res.calls, harvest.ArticleID(194))
	})

	t.Run("TrailingFailuresDoNotMoveBoundary", func(t *testing.T) {
		res := &scriptedResolver{found: ids(190, 191), failing: ids(192, 193)}
		d, _ := newTestDiscoverer(t, Config{Baseline: 190, MaxProbes: 100}, res)

		report, err := d.Discover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, harvest.ArticleID(191), report.Boundary)
		assert.Equal(t, []harvest.ArticleID{192, 193}, report.Failures)
	})
}

func TestDiscoverCap(t *testing.T) {
	res := &scriptedResolver{found: ids(1, 10_000)}
	d, _ := newTestDiscoverer(t, Config{Baseline: 100, MaxProbes: 5}, res)

	report, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.True(t, report.CapReached)
	assert.Equal(t, 5, report.Probes)
	assert.Equal(t, harvest.ArticleID(104), report.Boundary)
}

func TestDiscoverFirstProbeMissing(t *testing.T) {
	d, _ := newTestDiscoverer(t, Config{Baseline: 190, MaxProbes: 10}, &scriptedResolver{})

	report, err := d.Discover(context.Background())
	require.NoError(t, err)
	w := report.Window(5)
	assert.True(t, w.Empty())
	assert.Empty(t, w.IDs())
}

func TestDiscoverCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d, _ := newTestDiscoverer(t, Config{Baseline: 190, MaxProbes: 10}, &scriptedResolver{found: ids(190, 200)})

	_, err := d.Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReportWindowLatest(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		latest int
		want   Window
	}{
		{"FullSpan", Report{Start: 190, Boundary: 195}, 0, Window{190, 195}},
		{"TrailingN", Report{Start: 190, Boundary: 250}, 5, Window{246, 250}},
		{"ClampedToStart", Report{Start: 190, Boundary: 192}, 10, Window{190, 192}},
		{"ExactFit", Report{Start: 190, Boundary: 194}, 5, Window{190, 194}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.report.Window(tt.latest))
		})
	}
}

func TestWindowIDs(t *testing.T) {
	w := Explicit(7, 9)
	assert.Equal(t, []harvest.ArticleID{7, 8, 9}, w.IDs())
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, "[7,9]", w.String())

	assert.True(t, Explicit(9, 7).Empty())
	assert.Equal(t, "[]", Explicit(9, 7).String())
}

func TestNewValidation(t *testing.T) {
	res := &scriptedResolver{}
	_, err := New(Config{Baseline: 0, MaxProbes: 1}, res, nil)
	require.ErrorIs(t, err, harvest.ErrConfig)
	_, err = New(Config{Baseline: 1, MaxProbes: 0}, res, nil)
	require.ErrorIs(t, err, harvest.ErrConfig)
	_, err = New(Config{Baseline: 1, MaxProbes: 1, OnError: "retry"}, res, nil)
	require.ErrorIs(t, err, harvest.ErrConfig)
	_, err = New(Config{Baseline: 1, MaxProbes: 1}, nil, nil)
	require.ErrorIs(t, err, harvest.ErrConfig)
}

func TestTimerPauseHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	(&timerPauseController{}).Pause(ctx, time.Hour)
	assert.Less(t, time.Since(start), time.Second)
}
