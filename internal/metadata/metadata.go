// Package metadata records one JSON document per downloaded item.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
	"github.com/JakeFAU/okapi-harvester/internal/storage/local"
)

// Dir is the metadata directory below the output root.
const Dir = "metadata"

// Record is the per-item metadata document.
type Record struct {
	ArticleNumber harvest.ArticleID `json:"article_number"`
	Title         string            `json:"title"`
	Date          *string           `json:"date"`
	SourceURL     string            `json:"source_url"`
	AudioURL      string            `json:"audio_url"`
	Filename      string            `json:"filename"`
	DownloadedAt  string            `json:"downloaded_at"`
	Source        string            `json:"source"`
}

// Recorder writes Records keyed by filename stem.
type Recorder struct {
	store  *local.Store
	clock  harvest.Clock
	source string
}

// NewRecorder returns a Recorder tagging records with source.
func NewRecorder(store *local.Store, clock harvest.Clock, source string) *Recorder {
	return &Recorder{store: store, clock: clock, source: source}
}

// Name returns the metadata document path for a filename stem.
func Name(stem string) string {
	return path.Join(Dir, stem+".json")
}

// NewRecord builds the document for a downloaded article.
func (r *Recorder) NewRecord(article harvest.ResolvedArticle) Record {
	rec := Record{
		ArticleNumber: article.ID,
		Title:         article.Title,
		SourceURL:     article.SourceURL,
		AudioURL:      article.MediaURL,
		Filename:      article.Filename,
		DownloadedAt:  r.clock.Now().UTC().Format(time.RFC3339),
		Source:        r.source,
	}
	if article.Date != "" {
		date := article.Date
		rec.Date = &date
	}
	return rec
}

// Record writes the article's document, replacing any existing one.
func (r *Recorder) Record(article harvest.ResolvedArticle) error {
	data, err := json.MarshalIndent(r.NewRecord(article), "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", article.Filename, err)
	}
	if err := r.store.WriteFile(Name(article.Stem()), data); err != nil {
		return fmt.Errorf("%w: write metadata for %s: %w", harvest.ErrWrite, article.Filename, err)
	}
	return nil
}

// RecordIfAbsent writes the document only when none exists for the stem and
// reports whether it wrote.
func (r *Recorder) RecordIfAbsent(article harvest.ResolvedArticle) (bool, error) {
	ok, err := r.Exists(article.Stem())
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	return true, r.Record(article)
}

// Exists reports whether a document exists for stem.
func (r *Recorder) Exists(stem string) (bool, error) {
	ok, err := r.store.Exists(Name(stem))
	if err != nil {
		return false, fmt.Errorf("check metadata for %s: %w", stem, err)
	}
	return ok, nil
}

// Load reads the document for stem. The boolean is false when none exists.
func (r *Recorder) Load(stem string) (Record, bool, error) {
	data, err := r.store.ReadFile(Name(stem))
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode metadata for %s: %w", stem, err)
	}
	return rec, true, nil
}
