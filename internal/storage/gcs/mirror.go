// Package gcs mirrors the output directory to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
	"github.com/JakeFAU/okapi-harvester/internal/manifest"
	"github.com/JakeFAU/okapi-harvester/internal/metadata"
	"github.com/JakeFAU/okapi-harvester/internal/publisher"
	"github.com/JakeFAU/okapi-harvester/internal/storage/local"
)

// ClientConfig selects how the storage client authenticates.
type ClientConfig struct {
	CredentialsFile string
	CredentialsJSON string
	// Endpoint targets an emulator and disables authentication.
	Endpoint string
}

// Options returns the client options for cfg. Without any credential source
// it fails with harvest.ErrConfig.
func (c ClientConfig) Options() ([]option.ClientOption, error) {
	switch {
	case c.Endpoint != "":
		return []option.ClientOption{option.WithEndpoint(c.Endpoint), option.WithoutAuthentication()}, nil
	case c.CredentialsJSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(c.CredentialsJSON))}, nil
	case c.CredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(c.CredentialsFile)}, nil
	default:
		return nil, fmt.Errorf("%w: storage credentials are required", harvest.ErrConfig)
	}
}

// NewClient builds a storage client from cfg.
func NewClient(ctx context.Context, cfg ClientConfig) (*storage.Client, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create storage client: %w", harvest.ErrConfig, err)
	}
	return client, nil
}

// Config captures the mirror layout.
type Config struct {
	Bucket          string
	Prefix          string
	Concurrency     int
	MediaExtensions []string
	// ChunkSize is passed to each object writer; zero uploads in one request.
	ChunkSize int
}

// Summary reports one mirror pass.
type Summary struct {
	Bucket          string    `json:"bucket"`
	Prefix          string    `json:"prefix"`
	Uploaded        int       `json:"uploaded"`
	Skipped         int       `json:"skipped"`
	Failed          int       `json:"failed"`
	ManifestUpdated bool      `json:"manifest_updated"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Mirror copies finished items, their metadata and the manifest to a bucket.
type Mirror struct {
	client    *storage.Client
	store     *local.Store
	cfg       Config
	publisher publisher.Publisher
	clock     harvest.Clock
	logger    *zap.Logger
}

// New creates a Mirror. The publisher is optional.
func New(
	client *storage.Client,
	store *local.Store,
	cfg Config,
	pub publisher.Publisher,
	clock harvest.Clock,
	logger *zap.Logger,
) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: storage client is required", harvest.ErrConfig)
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%w: bucket name is required", harvest.ErrConfig)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{client: client, store: store, cfg: cfg, publisher: pub, clock: clock, logger: logger}, nil
}

type upload struct {
	local       string
	object      string
	contentType string
}

func (m *Mirror) objectName(parts ...string) string {
	prefix := strings.Trim(m.cfg.Prefix, "/")
	if prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{prefix}, parts...)...)
}

func (m *Mirror) plan() ([]upload, error) {
	files, err := m.store.List("")
	if err != nil {
		return nil, err
	}
	var uploads []upload
	for _, f := range files {
		if manifest.IsMedia(f.Name, m.cfg.MediaExtensions) {
			uploads = append(uploads, upload{local: f.Name, object: m.objectName("audio", f.Name), contentType: "audio/mpeg"})
		}
	}
	records, err := m.store.List(metadata.Dir)
	if err != nil {
		return nil, err
	}
	for _, f := range records {
		if strings.HasSuffix(f.Name, ".json") {
			uploads = append(uploads, upload{
				local:       path.Join(metadata.Dir, f.Name),
				object:      m.objectName(metadata.Dir, f.Name),
				contentType: "application/json",
			})
		}
	}
	return uploads, nil
}

// Sync uploads every item not yet present in the bucket, then rewrites the
// remote manifest. Individual upload failures are counted and logged; the
// returned error wraps harvest.ErrNetwork when any occurred.
func (m *Mirror) Sync(ctx context.Context) (Summary, error) {
	summary := Summary{Bucket: m.cfg.Bucket, Prefix: m.cfg.Prefix}
	uploads, err := m.plan()
	if err != nil {
		return summary, fmt.Errorf("scan output directory: %w", err)
	}

	var uploaded, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for _, u := range uploads {
		g.Go(func() error {
			created, err := m.uploadIfAbsent(gctx, u)
			switch {
			case err != nil:
				failed.Add(1)
				m.logger.Error("upload failed", zap.String("object", u.object), zap.Error(err))
			case created:
				uploaded.Add(1)
				m.logger.Info("uploaded", zap.String("object", u.object))
			default:
				skipped.Add(1)
				m.logger.Debug("already mirrored", zap.String("object", u.object))
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Uploaded = int(uploaded.Load())
	summary.Skipped = int(skipped.Load())
	summary.Failed = int(failed.Load())

	ok, err := m.store.Exists(manifest.FileName)
	if err != nil {
		return summary, fmt.Errorf("check manifest: %w", err)
	}
	if ok {
		if err := m.put(ctx, upload{local: manifest.FileName, object: m.objectName(manifest.FileName), contentType: "application/json"}, false); err != nil {
			return summary, fmt.Errorf("%w: refresh manifest: %w", harvest.ErrNetwork, err)
		}
		summary.ManifestUpdated = true
	}
	if m.clock != nil {
		summary.FinishedAt = m.clock.Now()
	}

	m.notify(ctx, summary)

	if summary.Failed > 0 {
		return summary, fmt.Errorf("%w: %d uploads failed", harvest.ErrNetwork, summary.Failed)
	}
	return summary, nil
}

func (m *Mirror) notify(ctx context.Context, summary Summary) {
	if m.publisher == nil {
		return
	}
	id, err := m.publisher.Publish(ctx, summary, map[string]string{"bucket": summary.Bucket, "prefix": summary.Prefix})
	if err != nil {
		m.logger.Warn("mirror notification failed", zap.Error(err))
		return
	}
	m.logger.Info("mirror notification published", zap.String("message_id", id))
}

// uploadIfAbsent reports whether it created the object.
func (m *Mirror) uploadIfAbsent(ctx context.Context, u upload) (bool, error) {
	_, err := m.client.Bucket(m.cfg.Bucket).Object(u.object).Attrs(ctx)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, storage.ErrObjectNotExist):
		return false, fmt.Errorf("stat object: %w", err)
	}

	err = m.put(ctx, u, true)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Mirror) put(ctx context.Context, u upload, onlyIfAbsent bool) error {
	f, err := m.store.Open(u.local)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	obj := m.client.Bucket(m.cfg.Bucket).Object(u.object)
	if onlyIfAbsent {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	writer := obj.NewWriter(ctx)
	writer.ContentType = u.contentType
	writer.ChunkSize = m.cfg.ChunkSize
	if _, err := io.Copy(writer, f); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
