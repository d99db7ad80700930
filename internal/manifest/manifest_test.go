package manifest_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
	"github.com/JakeFAU/okapi-harvester/internal/manifest"
	"github.com/JakeFAU/okapi-harvester/internal/metadata"
	"github.com/JakeFAU/okapi-harvester/internal/storage/local"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }

type fixture struct {
	fs       afero.Fs
	store    *local.Store
	recorder *metadata.Recorder
	builder  *manifest.Builder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := local.New(fs, local.Config{BaseDir: "/out"})
	require.NoError(t, err)
	rec := metadata.NewRecorder(store, fixedClock{}, "radio_okapi")
	b := manifest.NewBuilder(store, rec, manifest.Config{Source: "radio_okapi", Language: "ln"}, nil)
	return fixture{fs: fs, store: store, recorder: rec, builder: b}
}

func (f fixture) put(t *testing.T, name string, size int) {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, "/out/"+name, make([]byte, size), 0o600))
}

func TestBuildJoinsMetadata(t *testing.T) {
	f := newFixture(t)
	f.put(t, "JLM_02012025.mp3", 10)
	require.NoError(t, f.recorder.Record(harvest.ResolvedArticle{
		ID:        193,
		SourceURL: "https://example.test/193",
		MediaURL:  "https://example.test/JLM_02012025.mp3",
		Title:     "Journal du 2 janvier",
		Date:      "2025-01-02",
		Filename:  "JLM_02012025.mp3",
	}))

	entries, err := f.builder.Build()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "/out/JLM_02012025.mp3", e.AudioPath)
	assert.Equal(t, "Journal du 2 janvier", e.Title)
	require.NotNil(t, e.ArticleNumber)
	assert.Equal(t, harvest.ArticleID(193), *e.ArticleNumber)
	require.NotNil(t, e.SourceURL)
	assert.Equal(t, "https://example.test/193", *e.SourceURL)
	require.NotNil(t, e.Date)
	assert.Equal(t, "2025-01-02", *e.Date)
	assert.EqualValues(t, 10, e.FileSize)
	assert.Equal(t, "ln", e.Language)
	assert.True(t, e.NeedsTranscription)
}

func TestBuildFilenameDefaults(t *testing.T) {
	f := newFixture(t)
	f.put(t, "JLM_05032024.mp3", 3)
	f.put(t, "untitled.mp3", 1)

	entries, err := f.builder.Build()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	dated := entries[0]
	assert.Equal(t, "JLM_05032024", dated.Title)
	require.NotNil(t, dated.Date)
	assert.Equal(t, "2024-03-05", *dated.Date)
	assert.Nil(t, dated.ArticleNumber)
	assert.Nil(t, dated.SourceURL)
	assert.Equal(t, "radio_okapi", dated.Source)

	assert.Equal(t, "untitled", entries[1].Title)
	assert.Nil(t, entries[1].Date)
}

func TestBuildCorruptMetadataFallsBack(t *testing.T) {
	f := newFixture(t)
	f.put(t, "a.mp3", 1)
	require.NoError(t, afero.WriteFile(f.fs, "/out/metadata/a.json", []byte("nope"), 0o600))

	entries, err := f.builder.Build()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Title)
}

func TestWriteCountMatchesFilesOnDisk(t *testing.T) {
	f := newFixture(t)
	f.put(t, "a.mp3", 1)
	f.put(t, "b.MP3", 1)
	f.put(t, "c.mp3", 1)
	f.put(t, "notes.txt", 1)
	f.put(t, ".part-d.mp3-123", 1)
	f.put(t, "processed_articles.json", 1)

	n, err := f.builder.Write()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	raw, err := afero.ReadFile(f.fs, "/out/"+manifest.FileName)
	require.NoError(t, err)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(raw, &docs))
	assert.Len(t, docs, 3)
	for _, d := range docs {
		assert.Contains(t, d, "article_number")
		assert.Contains(t, d, "date")
		assert.Contains(t, d, "source_url")
	}

	loaded, err := manifest.Load(f.store)
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func TestWriteEmptyDirectory(t *testing.T) {
	f := newFixture(t)
	n, err := f.builder.Write()
	require.NoError(t, err)
	assert.Zero(t, n)

	raw, err := afero.ReadFile(f.fs, "/out/"+manifest.FileName)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestIsMedia(t *testing.T) {
	exts := []string{".mp3", ".m4a"}
	assert.True(t, manifest.IsMedia("x.mp3", exts))
	assert.True(t, manifest.IsMedia("x.M4A", exts))
	assert.False(t, manifest.IsMedia("x.json", exts))
	assert.False(t, manifest.IsMedia("mp3", exts))
}
