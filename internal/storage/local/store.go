// Package local implements the output directory store on top of afero.
package local

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
)

// stagingPrefix marks in-progress writes. Staged files are hidden so they are
// never mistaken for finished items.
const stagingPrefix = ".part-"

// Config captures the parameters for the local output store.
type Config struct {
	// BaseDir is the root directory where items are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store reads and writes items under a base directory.
type Store struct {
	fs      afero.Fs
	baseDir string
}

// New creates the base directory if needed and verifies it is writable.
// Every failure wraps harvest.ErrConfig.
func New(fs afero.Fs, cfg Config) (*Store, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("%w: base directory is required", harvest.ErrConfig)
	}

	info, err := fs.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := fs.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("%w: create base directory: %w", harvest.ErrConfig, mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: stat base directory: %w", harvest.ErrConfig, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: base directory path is not a directory", harvest.ErrConfig)
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := afero.WriteFile(fs, testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("%w: base directory is not writable: %w", harvest.ErrConfig, err)
	}
	if err := fs.Remove(testFile); err != nil {
		return nil, fmt.Errorf("%w: clean up test file: %w", harvest.ErrConfig, err)
	}

	return &Store{fs: fs, baseDir: cfg.BaseDir}, nil
}

// BaseDir returns the root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Fs exposes the underlying filesystem.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Path resolves name below the base directory, rejecting traversal.
func (s *Store) Path(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("path is required")
	}
	fullPath := filepath.Join(s.baseDir, name)
	cleanBaseDir := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %s", name)
	}
	return fullPath, nil
}

// Exists reports whether a finished item is present at name.
func (s *Store) Exists(name string) (bool, error) {
	fullPath, err := s.Path(name)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(s.fs, fullPath)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", fullPath, err)
	}
	return ok, nil
}

// ReadFile returns the content stored at name.
func (s *Store) ReadFile(name string) ([]byte, error) {
	fullPath, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, fullPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fullPath, err)
	}
	return data, nil
}

// Open opens the item stored at name for reading.
func (s *Store) Open(name string) (afero.File, error) {
	fullPath, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fullPath, err)
	}
	return f, nil
}

// WriteAtomic stages r into a hidden temporary file next to the target and
// renames it into place once fully written. On any failure the staged file is
// removed, so the target either holds the complete content or does not exist.
// If replace is false and the target appeared meanwhile, the staged copy is
// discarded and written reports false.
func (s *Store) WriteAtomic(name string, r io.Reader, replace bool) (n int64, written bool, err error) {
	fullPath, err := s.Path(name)
	if err != nil {
		return 0, false, err
	}
	dir := filepath.Dir(fullPath)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return 0, false, fmt.Errorf("create parent directories: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, stagingPrefix+filepath.Base(fullPath)+"-*")
	if err != nil {
		return 0, false, fmt.Errorf("create staging file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = s.fs.Remove(tmpName)
		}
	}()

	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil {
		return n, false, fmt.Errorf("write %s: %w", fullPath, copyErr)
	}
	if closeErr != nil {
		return n, false, fmt.Errorf("close staging file: %w", closeErr)
	}

	if !replace {
		exists, err := afero.Exists(s.fs, fullPath)
		if err != nil {
			return n, false, fmt.Errorf("stat %s: %w", fullPath, err)
		}
		if exists {
			return n, false, nil
		}
	}
	if err := s.fs.Rename(tmpName, fullPath); err != nil {
		return n, false, fmt.Errorf("rename into %s: %w", fullPath, err)
	}
	committed = true
	return n, true, nil
}

// WriteFile atomically replaces the content at name.
func (s *Store) WriteFile(name string, data []byte) error {
	_, _, err := s.WriteAtomic(name, bytes.NewReader(data), true)
	return err
}

// Entry describes one regular file found by List.
type Entry struct {
	Name string
	Path string
	Size int64
}

// List returns visible regular files directly inside dir (relative to the
// base directory, "" for the root), sorted by name. Hidden files, including
// staged writes, are skipped. A missing directory yields no entries.
func (s *Store) List(dir string) ([]Entry, error) {
	root := s.baseDir
	if dir != "" {
		p, err := s.Path(dir)
		if err != nil {
			return nil, err
		}
		root = p
	}
	infos, err := afero.ReadDir(s.fs, root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if !info.Mode().IsRegular() || strings.HasPrefix(info.Name(), ".") {
			continue
		}
		entries = append(entries, Entry{
			Name: info.Name(),
			Path: filepath.Join(root, info.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
