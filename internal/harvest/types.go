// Package harvest defines the core types shared across the harvesting pipeline.
package harvest

import (
	"sort"
	"strconv"
)

// ArticleID is the sequential numeric key of a remote article.
type ArticleID int

// String renders the ID in the remote naming scheme.
func (id ArticleID) String() string {
	return strconv.Itoa(int(id))
}

// ResolvedArticle carries everything downstream stages need about one article.
type ResolvedArticle struct {
	ID        ArticleID
	SourceURL string
	MediaURL  string
	Title     string
	// Date is YYYY-MM-DD, empty when the filename carries no date.
	Date     string
	Filename string
}

// Stem returns the filename without its extension.
func (a ResolvedArticle) Stem() string {
	return Stem(a.Filename)
}

// ResolutionKind tags a Resolution.
type ResolutionKind int

// Resolution kinds.
const (
	KindFound ResolutionKind = iota + 1
	KindNotFound
	KindError
)

func (k ResolutionKind) String() string {
	switch k {
	case KindFound:
		return "found"
	case KindNotFound:
		return "not-found"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// NotFoundReason explains a KindNotFound resolution.
type NotFoundReason string

// Not-found reasons reported by the resolver.
const (
	ReasonNoMediaPattern NotFoundReason = "no-media-pattern"
	ReasonRemote404      NotFoundReason = "remote-404"
)

// Resolution is the tagged outcome of resolving one article:
// Found(Article), NotFound(Reason) or Error(Err).
type Resolution struct {
	ID      ArticleID
	Kind    ResolutionKind
	Article ResolvedArticle
	Reason  NotFoundReason
	Err     error
}

// Found builds a KindFound resolution.
func Found(article ResolvedArticle) Resolution {
	return Resolution{ID: article.ID, Kind: KindFound, Article: article}
}

// NotFound builds a KindNotFound resolution.
func NotFound(id ArticleID, reason NotFoundReason) Resolution {
	return Resolution{ID: id, Kind: KindNotFound, Reason: reason}
}

// Failed builds a KindError resolution.
func Failed(id ArticleID, err error) Resolution {
	return Resolution{ID: id, Kind: KindError, Err: err}
}

// IsBoundary reports whether the remote confirmed the ID does not exist.
// Only this outcome terminates range discovery.
func (r Resolution) IsBoundary() bool {
	return r.Kind == KindNotFound && r.Reason == ReasonRemote404
}

// Outcome is the single terminal category recorded for a dispatched ID.
type Outcome string

// Terminal outcome categories.
const (
	OutcomeDownloaded      Outcome = "downloaded"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeDownloadFailed  Outcome = "download-failed"
	OutcomeNotFound        Outcome = "not-found"
	OutcomeNoMedia         Outcome = "no-media"
	OutcomeResolutionError Outcome = "resolution-error"
	OutcomeResolved        Outcome = "resolved"
)

// AllOutcomes lists every category in summary order.
var AllOutcomes = []Outcome{
	OutcomeDownloaded,
	OutcomeSkipped,
	OutcomeDownloadFailed,
	OutcomeNotFound,
	OutcomeNoMedia,
	OutcomeResolutionError,
	OutcomeResolved,
}

// DownloadResult reports what the download manager did for one article.
type DownloadResult struct {
	Path    string
	Bytes   int64
	Skipped bool
}

// Result is what a worker reports back to the coordinator for one ID.
type Result struct {
	ID       ArticleID
	Outcome  Outcome
	Article  ResolvedArticle
	Download DownloadResult
	Err      error
}

// HasArticle reports whether the ID resolved to an article.
func (r Result) HasArticle() bool {
	switch r.Outcome {
	case OutcomeDownloaded, OutcomeSkipped, OutcomeDownloadFailed, OutcomeResolved:
		return true
	default:
		return false
	}
}

// Summary aggregates terminal outcomes for a run.
type Summary struct {
	Dispatched int
	Counts     map[Outcome]int
}

// NewSummary returns an empty Summary.
func NewSummary() Summary {
	return Summary{Counts: make(map[Outcome]int, len(AllOutcomes))}
}

// Add records one terminal outcome.
func (s *Summary) Add(outcome Outcome) {
	if s.Counts == nil {
		s.Counts = make(map[Outcome]int, len(AllOutcomes))
	}
	s.Dispatched++
	s.Counts[outcome]++
}

// Count returns the number of IDs recorded under outcome.
func (s Summary) Count(outcome Outcome) int {
	return s.Counts[outcome]
}

// Failed returns the number of IDs that ended in a failure category.
func (s Summary) Failed() int {
	return s.Counts[OutcomeDownloadFailed] + s.Counts[OutcomeNoMedia] + s.Counts[OutcomeResolutionError]
}

// SortIDs sorts ids ascending in place and returns them.
func SortIDs(ids []ArticleID) []ArticleID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
