// Package state persists the set of article IDs already attempted, so
// incremental runs can skip them.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
	"github.com/JakeFAU/okapi-harvester/internal/storage/local"
)

// FileName is the state document inside the output directory.
const FileName = "processed_articles.json"

// ProcessedSet is the lock-guarded set of attempted IDs. It is stored as a
// sorted JSON array of integers.
type ProcessedSet struct {
	store *local.Store

	mu  sync.Mutex
	ids map[harvest.ArticleID]struct{}
}

// Load reads the set from store. A missing document yields an empty set; an
// unreadable one is a configuration error.
func Load(store *local.Store) (*ProcessedSet, error) {
	ids, err := read(store)
	if err != nil {
		return nil, err
	}
	return &ProcessedSet{store: store, ids: ids}, nil
}

func read(store *local.Store) (map[harvest.ArticleID]struct{}, error) {
	ids := make(map[harvest.ArticleID]struct{})
	data, err := store.ReadFile(FileName)
	if errors.Is(err, os.ErrNotExist) {
		return ids, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load processed set: %w", harvest.ErrConfig, err)
	}
	var list []harvest.ArticleID
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", harvest.ErrConfig, FileName, err)
	}
	for _, id := range list {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// Contains reports whether id was attempted before.
func (s *ProcessedSet) Contains(id harvest.ArticleID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add marks id as attempted.
func (s *ProcessedSet) Add(id harvest.ArticleID) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

// Filter returns the IDs not yet in the set, preserving order.
func (s *ProcessedSet) Filter(ids []harvest.ArticleID) []harvest.ArticleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]harvest.ArticleID, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.ids[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the set size.
func (s *ProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// IDs returns the members in ascending order.
func (s *ProcessedSet) IDs() []harvest.ArticleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *ProcessedSet) sortedLocked() []harvest.ArticleID {
	out := make([]harvest.ArticleID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return harvest.SortIDs(out)
}

// Save unions the in-memory set with whatever is on disk and atomically
// rewrites the document, so the stored set never shrinks.
func (s *ProcessedSet) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	onDisk, err := read(s.store)
	if err != nil {
		return err
	}
	for id := range onDisk {
		s.ids[id] = struct{}{}
	}
	data, err := json.Marshal(s.sortedLocked())
	if err != nil {
		return fmt.Errorf("encode processed set: %w", err)
	}
	if err := s.store.WriteFile(FileName, data); err != nil {
		return fmt.Errorf("%w: save processed set: %w", harvest.ErrWrite, err)
	}
	return nil
}
