// Package system exercises the clock adapters.
package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClockNowUTC ensures the clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	require.NotNil(t, clk)

	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.WithinRange(t, got, before, after)
}

func TestFixed(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	clk := Fixed{T: at}
	assert.Equal(t, at, clk.Now())
	assert.Equal(t, at, clk.Now())
}
