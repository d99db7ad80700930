package harvest

import (
	"context"
	"time"
)

// Resolver turns an ArticleID into a tagged Resolution. It never returns an
// error separately: failures are carried in the Resolution.
type Resolver interface {
	Resolve(ctx context.Context, id ArticleID) Resolution
}

// Downloader fetches a resolved article's media to local storage.
type Downloader interface {
	Download(ctx context.Context, article ResolvedArticle) (DownloadResult, error)
}

// Throttle blocks until the next remote request may be dispatched.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
