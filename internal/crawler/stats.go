package crawler

import "sync/atomic"

// Counters holds in-process crawl statistics. All fields are updated
// atomically from the dispatcher and fetch workers; PrintStats
// reconciles from storage before display.
type Counters struct {
	PagesCrawled atomic.Int64
	LinksFound   atomic.Int64
	Errors       atomic.Int64
	SkippedURLs  atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	PagesCrawled int64
	LinksFound   int64
	Errors       int64
	SkippedURLs  int64
}

// Snapshot returns a consistent-enough copy for reporting.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		PagesCrawled: c.PagesCrawled.Load(),
		LinksFound:   c.LinksFound.Load(),
		Errors:       c.Errors.Load(),
		SkippedURLs:  c.SkippedURLs.Load(),
	}
}
