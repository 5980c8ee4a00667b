// Package storage provides the durable crawl state: the URL frontier,
// downloaded pages, the link graph, and the session ledger.
package storage

import "time"

// Queue row statuses. A row moves from pending to exactly one terminal
// state and never transitions again.
const (
	StatusPending = "pending"
	StatusCrawled = "crawled"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Session statuses.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
)

// Session is a logical crawl run. All persisted rows are scoped to one.
type Session struct {
	ID        int64
	StartURL  string
	StartTime time.Time
	EndTime   *time.Time
	Status    string
}

// SessionSummary describes a resumable session for listing.
type SessionSummary struct {
	ID           int64
	StartURL     string
	StartTime    time.Time
	PagesCrawled int
	QueuedURLs   int
}

// Page is a stored download. Inserted only on HTTP 200 with a non-empty body.
type Page struct {
	ID            int64
	SessionID     int64
	URL           string
	Content       []byte
	ContentLength int64
	ResponseCode  int
	CrawlTime     time.Time
	Depth         int
}

// QueueEntry is a frontier row.
type QueueEntry struct {
	ID          int64
	SessionID   int64
	URL         string
	Depth       int
	Status      string
	AddedTime   time.Time
	CrawledTime *time.Time
	ErrorCount  int
}

// Link is one edge of the discovered link graph. Append-only.
type Link struct {
	ID             int64
	SessionID      int64
	SourceURL      string
	TargetURL      string
	DiscoveredTime time.Time
}

// Stats holds per-session counts derived from storage.
type Stats struct {
	Pages   int
	Links   int
	Errors  int
	Skipped int
	Pending int
}
