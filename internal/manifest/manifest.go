// Package manifest builds the aggregate dataset index from the files present
// in the output directory.
package manifest

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
	"github.com/JakeFAU/okapi-harvester/internal/metadata"
	"github.com/JakeFAU/okapi-harvester/internal/storage/local"
)

// FileName is the manifest document inside the output directory.
const FileName = "manifest.json"

// Entry describes one downloaded item for downstream consumers.
type Entry struct {
	AudioPath          string             `json:"audio_path"`
	Filename           string             `json:"filename"`
	Title              string             `json:"title"`
	ArticleNumber      *harvest.ArticleID `json:"article_number"`
	Date               *string            `json:"date"`
	Source             string             `json:"source"`
	SourceURL          *string            `json:"source_url"`
	FileSize           int64              `json:"file_size"`
	Language           string             `json:"language"`
	NeedsTranscription bool               `json:"needs_transcription"`
}

// Config holds the defaults applied to every entry.
type Config struct {
	Source     string
	Language   string
	Extensions []string
}

// Builder scans the output directory and joins each item with its metadata.
type Builder struct {
	store    *local.Store
	recorder *metadata.Recorder
	cfg      Config
	logger   *zap.Logger
}

// NewBuilder returns a Builder. Without extensions only ".mp3" files count.
func NewBuilder(store *local.Store, recorder *metadata.Recorder, cfg Config, logger *zap.Logger) *Builder {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".mp3"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{store: store, recorder: recorder, cfg: cfg, logger: logger}
}

// IsMedia reports whether name carries one of the configured extensions.
func IsMedia(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// MediaFiles lists the downloaded items in filename order.
func (b *Builder) MediaFiles() ([]local.Entry, error) {
	all, err := b.store.List("")
	if err != nil {
		return nil, err
	}
	media := make([]local.Entry, 0, len(all))
	for _, e := range all {
		if IsMedia(e.Name, b.cfg.Extensions) {
			media = append(media, e)
		}
	}
	return media, nil
}

// Build returns one entry per item on disk.
func (b *Builder) Build() ([]Entry, error) {
	files, err := b.MediaFiles()
	if err != nil {
		return nil, fmt.Errorf("scan output directory: %w", err)
	}
	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		entries = append(entries, b.entry(f))
	}
	return entries, nil
}

func (b *Builder) entry(f local.Entry) Entry {
	stem := harvest.Stem(f.Name)
	e := Entry{
		AudioPath:          f.Path,
		Filename:           f.Name,
		Title:              stem,
		Source:             b.cfg.Source,
		FileSize:           f.Size,
		Language:           b.cfg.Language,
		NeedsTranscription: true,
	}
	if date := harvest.DateFromFilename(f.Name); date != "" {
		e.Date = &date
	}
	if b.recorder == nil {
		return e
	}

	rec, ok, err := b.recorder.Load(stem)
	if err != nil {
		b.logger.Warn("unreadable metadata, using filename defaults", zap.String("filename", f.Name), zap.Error(err))
		return e
	}
	if !ok {
		return e
	}
	if rec.Title != "" {
		e.Title = rec.Title
	}
	if rec.ArticleNumber > 0 {
		id := rec.ArticleNumber
		e.ArticleNumber = &id
	}
	if rec.Date != nil {
		e.Date = rec.Date
	}
	if rec.Source != "" {
		e.Source = rec.Source
	}
	if rec.SourceURL != "" {
		src := rec.SourceURL
		e.SourceURL = &src
	}
	return e
}

// Write builds the manifest and atomically replaces manifest.json. It
// returns the number of entries written.
func (b *Builder) Write() (int, error) {
	entries, err := b.Build()
	if err != nil {
		return 0, err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode manifest: %w", err)
	}
	if err := b.store.WriteFile(FileName, data); err != nil {
		return 0, fmt.Errorf("%w: write manifest: %w", harvest.ErrWrite, err)
	}
	b.logger.Info("manifest written", zap.Int("entries", len(entries)))
	return len(entries), nil
}

// Load reads a manifest previously written by Write.
func Load(store *local.Store) ([]Entry, error) {
	data, err := store.ReadFile(FileName)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return entries, nil
}
