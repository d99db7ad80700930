package harvest

import "errors"

// Error taxonomy. Per-ID errors wrap one of the first four and never abort a
// run; only ErrConfig is fatal.
var (
	// ErrNetwork marks connection, timeout or unexpected-status failures.
	ErrNetwork = errors.New("network error")
	// ErrNotFound marks an identifier the remote confirmed does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExtraction marks a page that was retrieved but yielded no media link.
	ErrExtraction = errors.New("extraction error")
	// ErrWrite marks a local disk failure.
	ErrWrite = errors.New("write error")
	// ErrConfig marks missing or invalid startup input.
	ErrConfig = errors.New("config error")
)
