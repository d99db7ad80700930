// Package localtest provides filesystem fakes for exercising write failures.
package localtest

import (
	"errors"
	"os"
	"sync"

	"github.com/spf13/afero"
)

// ErrDiskFull is returned once a FailingFs write budget is exhausted.
var ErrDiskFull = errors.New("no space left on device")

// FailingFs wraps an afero.Fs so that each newly created file accepts at most
// limit bytes before writes fail with ErrDiskFull.
type FailingFs struct {
	afero.Fs
	limit int
}

// NewFailingFs wraps base with a per-file write budget.
func NewFailingFs(base afero.Fs, limit int) *FailingFs {
	return &FailingFs{Fs: base, limit: limit}
}

// Create wraps the created file with the write budget.
func (f *FailingFs) Create(name string) (afero.File, error) {
	file, err := f.Fs.Create(name)
	if err != nil {
		return nil, err
	}
	return &failingFile{File: file, remaining: f.limit}, nil
}

// OpenFile wraps files opened for writing with the write budget.
func (f *FailingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	if flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return file, nil
	}
	return &failingFile{File: file, remaining: f.limit}, nil
}

type failingFile struct {
	afero.File
	mu        sync.Mutex
	remaining int
}

func (f *failingFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(p) <= f.remaining {
		f.remaining -= len(p)
		return f.File.Write(p)
	}
	n, err := f.File.Write(p[:f.remaining])
	f.remaining = 0
	if err != nil {
		return n, err
	}
	return n, ErrDiskFull
}
