package domain

import "errors"

// Error taxonomy. Per-symbol failures wrap one of these sentinels and are
// isolated from the rest of the run; only ErrConfig aborts the whole run.
var (
	// ErrConfig marks a configuration problem. Fatal before any run starts.
	ErrConfig = errors.New("invalid configuration")

	// ErrDataUnavailable means no source could supply the requested range
	// for a symbol. The symbol is excluded from the run and reported.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrSourceUnavailable marks a transient source failure (network,
	// timeout, rate limit). Retried; after retry exhaustion it degrades to
	// ErrDataUnavailable for the affected symbol.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrValidation means a downloaded series failed quality checks
	// (too few trading days or too many missing bars).
	ErrValidation = errors.New("series validation failed")

	// ErrCacheCorrupt marks a cache entry that could not be deserialized.
	// Callers treat the entry as absent and re-fetch the full range.
	ErrCacheCorrupt = errors.New("cache entry corrupt")
)
