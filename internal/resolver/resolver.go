// Package resolver turns article identifiers into media links and metadata.
package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/okapi-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/okapi-harvester/internal/harvest"
)

// PageFetcher retrieves one article page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Page, error)
}

// Config controls how source URLs are built and pages are parsed.
type Config struct {
	// BaseURL is the source URL template prefix; the article ID is appended.
	BaseURL string
	// Origin resolves relative media links. Defaults to BaseURL's scheme and host.
	Origin string
	// Series names the programme in synthesized titles.
	Series   string
	Patterns []*regexp.Regexp
}

// Resolver implements harvest.Resolver.
type Resolver struct {
	cfg     Config
	origin  *url.URL
	fetcher PageFetcher
	logger  *zap.Logger
}

// New validates cfg and builds a Resolver.
func New(cfg Config, fetcher PageFetcher, logger *zap.Logger) (*Resolver, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: page fetcher is required", harvest.ErrConfig)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid base url %q", harvest.ErrConfig, cfg.BaseURL)
	}
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	if cfg.Origin != "" {
		origin, err = url.Parse(cfg.Origin)
		if err != nil || origin.Scheme == "" || origin.Host == "" {
			return nil, fmt.Errorf("%w: invalid origin %q", harvest.ErrConfig, cfg.Origin)
		}
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns, err = CompilePatterns(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", harvest.ErrConfig, err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, origin: origin, fetcher: fetcher, logger: logger}, nil
}

// SourceURL builds the article page URL for id.
func (r *Resolver) SourceURL(id harvest.ArticleID) string {
	return r.cfg.BaseURL + id.String()
}

// Resolve fetches the article page for id and extracts its media link.
func (r *Resolver) Resolve(ctx context.Context, id harvest.ArticleID) harvest.Resolution {
	return r.ResolveURL(ctx, id, r.SourceURL(id))
}

// ResolveURL resolves an explicit article page URL, recording it under id.
func (r *Resolver) ResolveURL(ctx context.Context, id harvest.ArticleID, pageURL string) harvest.Resolution {
	page, err := r.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return harvest.Failed(id, fmt.Errorf("%w: fetch %s: %w", harvest.ErrNetwork, pageURL, err))
	}
	switch {
	case page.StatusCode == http.StatusNotFound || page.StatusCode == http.StatusGone:
		return harvest.NotFound(id, harvest.ReasonRemote404)
	case !page.OK():
		return harvest.Failed(id, fmt.Errorf("%w: fetch %s: unexpected status %d",
			harvest.ErrNetwork, pageURL, page.StatusCode))
	}

	link, pattern, ok := ExtractMediaURL(string(page.Body), r.cfg.Patterns)
	if !ok {
		return harvest.NotFound(id, harvest.ReasonNoMediaPattern)
	}
	mediaURL, err := r.absolute(link)
	if err != nil {
		r.logger.Debug("unusable media link", zap.Int("article_id", int(id)), zap.String("link", link), zap.Error(err))
		return harvest.NotFound(id, harvest.ReasonNoMediaPattern)
	}
	filename := harvest.FilenameFromURL(mediaURL)
	if filename == "" {
		return harvest.NotFound(id, harvest.ReasonNoMediaPattern)
	}

	title := ExtractTitle(page.Body)
	if title == "" {
		title = r.syntheticTitle(id)
	}
	r.logger.Debug("media link extracted",
		zap.Int("article_id", int(id)),
		zap.Int("pattern", pattern),
		zap.String("media_url", mediaURL),
	)
	return harvest.Found(harvest.ResolvedArticle{
		ID:        id,
		SourceURL: pageURL,
		MediaURL:  mediaURL,
		Title:     title,
		Date:      harvest.DateFromFilename(filename),
		Filename:  filename,
	})
}

func (r *Resolver) absolute(link string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("parse media link: %w", err)
	}
	return r.origin.ResolveReference(ref).String(), nil
}

func (r *Resolver) syntheticTitle(id harvest.ArticleID) string {
	series := strings.TrimSpace(r.cfg.Series)
	if series == "" {
		return id.String()
	}
	return series + " " + id.String()
}
