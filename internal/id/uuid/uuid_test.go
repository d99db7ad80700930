// Package uuid includes tests for the run ID generator.
package uuid

import (
	"testing"
	"time"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGeneratorNewID ensures generated IDs are unique UUIDv7 values.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	assert.EqualValues(t, 7, parsed.Version())
}

func TestTimestamp(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	id, err := New().NewID()
	require.NoError(t, err)

	ts, err := Timestamp(id)
	require.NoError(t, err)
	assert.WithinRange(t, ts, before, time.Now().Add(time.Second))

	_, err = Timestamp(goUUID.NewString())
	assert.Error(t, err)
	_, err = Timestamp("not-a-uuid")
	assert.Error(t, err)
}
