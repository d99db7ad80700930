package metadata_test

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
	"github.com/JakeFAU/okapi-harvester/internal/metadata"
	"github.com/JakeFAU/okapi-harvester/internal/storage/local"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newRecorder(t *testing.T) (*metadata.Recorder, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := local.New(fs, local.Config{BaseDir: "/out"})
	require.NoError(t, err)
	clk := fixedClock{t: time.Date(2025, 1, 2, 6, 30, 0, 0, time.UTC)}
	return metadata.NewRecorder(store, clk, "radio_okapi"), fs
}

var sample = harvest.ResolvedArticle{
	ID:        192,
	SourceURL: "https://www.radiookapi.net/journal-journal-lingala/journal-lingala-matin-192",
	MediaURL:  "https://www.radiookapi.net/sites/default/files/JLM_01012025.mp3",
	Title:     "Journal Lingala Matin",
	Date:      "2025-01-01",
	Filename:  "JLM_01012025.mp3",
}

func TestRecordWritesDocument(t *testing.T) {
	rec, fs := newRecorder(t)
	require.NoError(t, rec.Record(sample))

	raw, err := afero.ReadFile(fs, "/out/metadata/JLM_01012025.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"article_number": 192,
		"title": "Journal Lingala Matin",
		"date": "2025-01-01",
		"source_url": "https://www.radiookapi.net/journal-journal-lingala/journal-lingala-matin-192",
		"audio_url": "https://www.radiookapi.net/sites/default/files/JLM_01012025.mp3",
		"filename": "JLM_01012025.mp3",
		"downloaded_at": "2025-01-02T06:30:00Z",
		"source": "radio_okapi"
	}`, string(raw))
}

func TestRecordMissingDateIsNull(t *testing.T) {
	rec, fs := newRecorder(t)
	a := sample
	a.Date = ""
	require.NoError(t, rec.Record(a))

	raw, err := afero.ReadFile(fs, "/out/metadata/JLM_01012025.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"date": null`)
}

func TestRecordOverwrites(t *testing.T) {
	rec, _ := newRecorder(t)
	require.NoError(t, rec.Record(sample))

	updated := sample
	updated.Title = "Edition speciale"
	require.NoError(t, rec.Record(updated))

	got, ok, err := rec.Load("JLM_01012025")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Edition speciale", got.Title)
}

func TestRecordIfAbsent(t *testing.T) {
	rec, _ := newRecorder(t)
	wrote, err := rec.RecordIfAbsent(sample)
	require.NoError(t, err)
	assert.True(t, wrote)

	other := sample
	other.ID = 300
	wrote, err = rec.RecordIfAbsent(other)
	require.NoError(t, err)
	assert.False(t, wrote)

	got, _, err := rec.Load("JLM_01012025")
	require.NoError(t, err)
	assert.Equal(t, harvest.ArticleID(192), got.ArticleNumber)
}

func TestLoadMissing(t *testing.T) {
	rec, _ := newRecorder(t)
	_, ok, err := rec.Load("nothing")
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := rec.Exists("nothing")
	require.NoError(t, err)
	assert.False(t, exists)
}
