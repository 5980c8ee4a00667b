package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Database handles all database operations. A single coarse mutex
// serializes access from the dispatcher and all fetch workers; every
// exported operation is individually atomic.
type Database struct {
	db *sql.DB
	mu sync.Mutex

	// Hot-path prepared statements, reused across calls under mu.
	enqueueStmt    *sql.Stmt
	claimStmt      *sql.Stmt
	markStmt       *sql.Stmt
	pageCheckStmt  *sql.Stmt
	pageStoreStmt  *sql.Stmt
	linkStmt       *sql.Stmt
	fetchErrorStmt *sql.Stmt
}

// Open opens or creates the database at path, creating tables and
// indices if missing. WAL journaling is enabled for concurrent readers.
func Open(path string) (*Database, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	d := &Database{db: db}
	if err := d.prepare(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) prepare() error {
	var err error
	prep := func(dst **sql.Stmt, query string) {
		if err != nil {
			return
		}
		*dst, err = d.db.Prepare(query)
	}

	prep(&d.enqueueStmt, `
		INSERT OR IGNORE INTO url_queue (session_id, url, depth, status, added_time)
		VALUES (?, ?, ?, ?, ?)`)
	prep(&d.claimStmt, `
		SELECT url, depth FROM url_queue
		WHERE session_id = ? AND status = 'pending'
		ORDER BY depth, id LIMIT 1`)
	prep(&d.markStmt, `
		UPDATE url_queue SET status = 'crawled', crawled_time = ?
		WHERE session_id = ? AND url = ?`)
	prep(&d.pageCheckStmt, `
		SELECT 1 FROM pages WHERE session_id = ? AND url = ? LIMIT 1`)
	prep(&d.pageStoreStmt, `
		INSERT OR REPLACE INTO pages (session_id, url, content, content_length, response_code, crawl_time, depth)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	prep(&d.linkStmt, `
		INSERT INTO extracted_links (session_id, source_url, target_url, discovered_time)
		VALUES (?, ?, ?, ?)`)
	prep(&d.fetchErrorStmt, `
		UPDATE url_queue SET error_count = error_count + 1
		WHERE session_id = ? AND url = ?`)

	if err != nil {
		return fmt.Errorf("failed to prepare statements: %w", err)
	}
	return nil
}

// Close finalizes prepared statements and closes the database.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, stmt := range []*sql.Stmt{
		d.enqueueStmt, d.claimStmt, d.markStmt, d.pageCheckStmt,
		d.pageStoreStmt, d.linkStmt, d.fetchErrorStmt,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return d.db.Close()
}

// --- Session operations ---

// CreateSession inserts a new running session and returns its id.
func (d *Database) CreateSession(startURL string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.db.Exec(`
		INSERT INTO crawl_sessions (start_url, start_time, status)
		VALUES (?, ?, 'running')`, startURL, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create session: %w", err)
	}
	return result.LastInsertId()
}

// FindResumable returns the most recent running session, or nil.
func (d *Database) FindResumable() (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.scanSession(d.db.QueryRow(`
		SELECT id, start_url, start_time, end_time, status
		FROM crawl_sessions WHERE status = 'running'
		ORDER BY id DESC LIMIT 1`))
}

// GetSession returns the session with the given id, or nil if absent.
func (d *Database) GetSession(id int64) (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.scanSession(d.db.QueryRow(`
		SELECT id, start_url, start_time, end_time, status
		FROM crawl_sessions WHERE id = ?`, id))
}

func (d *Database) scanSession(row *sql.Row) (*Session, error) {
	var s Session
	var start int64
	var end sql.NullInt64
	err := row.Scan(&s.ID, &s.StartURL, &start, &end, &s.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.StartTime = time.Unix(start, 0)
	if end.Valid {
		t := time.Unix(end.Int64, 0)
		s.EndTime = &t
	}
	return &s, nil
}

// ListResumable returns a summary of every running session, newest first.
func (d *Database) ListResumable() ([]SessionSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query(`
		SELECT s.id, s.start_url, s.start_time,
		       (SELECT COUNT(*) FROM pages p WHERE p.session_id = s.id),
		       (SELECT COUNT(*) FROM url_queue q WHERE q.session_id = s.id AND q.status = 'pending')
		FROM crawl_sessions s
		WHERE s.status = 'running'
		ORDER BY s.start_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var start int64
		if err := rows.Scan(&sum.ID, &sum.StartURL, &start, &sum.PagesCrawled, &sum.QueuedURLs); err != nil {
			return nil, err
		}
		sum.StartTime = time.Unix(start, 0)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// CompleteSession marks a session as completed with an end time.
func (d *Database) CompleteSession(session int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		UPDATE crawl_sessions SET status = 'completed', end_time = ?
		WHERE id = ?`, time.Now().Unix(), session)
	return err
}

// --- Frontier operations ---

// Enqueue inserts a pending frontier row. It no-ops on a (session, url)
// collision and reports whether a row was actually inserted, so the
// caller counts links found only on real inserts.
func (d *Database) Enqueue(session int64, url string, depth int) (bool, error) {
	return d.insertQueueRow(session, url, depth, StatusPending)
}

// EnqueueSkipped inserts a frontier row directly in the terminal skipped
// state. Used for URLs rejected by the domain filter; they are never
// eligible for dispatch but leave a durable trace.
func (d *Database) EnqueueSkipped(session int64, url string, depth int) (bool, error) {
	return d.insertQueueRow(session, url, depth, StatusSkipped)
}

func (d *Database) insertQueueRow(session int64, url string, depth int, status string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.enqueueStmt.Exec(session, url, depth, status, time.Now().Unix())
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClaimNext returns the lowest-depth, earliest-inserted pending row.
// It does not modify status; the dispatcher marks the row crawled under
// the same claim cycle.
func (d *Database) ClaimNext(session int64) (url string, depth int, ok bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	err = d.claimStmt.QueryRow(session).Scan(&url, &depth)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return url, depth, true, nil
}

// MarkCrawled transitions a row to crawled and stamps the crawl time.
// Claiming is terminal for dispatch: the row is not reversed on fetch
// failure.
func (d *Database) MarkCrawled(session int64, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.markStmt.Exec(time.Now().Unix(), session, url)
	return err
}

// RecordFetchError increments the row's error count. Status is left
// untouched; crawled is terminal.
func (d *Database) RecordFetchError(session int64, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.fetchErrorStmt.Exec(session, url)
	return err
}

// PendingCount returns the number of pending frontier rows.
func (d *Database) PendingCount(session int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var n int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM url_queue
		WHERE session_id = ? AND status = 'pending'`, session).Scan(&n)
	return n, err
}

// --- Page operations ---

// IsPageStored reports whether a page row exists for the URL.
func (d *Database) IsPageStored(session int64, url string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var one int
	err := d.pageCheckStmt.QueryRow(session, url).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// StorePage inserts or replaces the page row. Replace semantics tolerate
// a re-fetch after a crash.
func (d *Database) StorePage(session int64, url string, body []byte, responseCode, depth int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.pageStoreStmt.Exec(session, url, body, int64(len(body)), responseCode, time.Now().Unix(), depth)
	return err
}

// GetPages returns all stored pages for a session, oldest first.
func (d *Database) GetPages(session int64) ([]*Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query(`
		SELECT id, session_id, url, content, content_length, response_code, crawl_time, depth
		FROM pages WHERE session_id = ? ORDER BY id`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		var p Page
		var crawl int64
		if err := rows.Scan(&p.ID, &p.SessionID, &p.URL, &p.Content, &p.ContentLength, &p.ResponseCode, &crawl, &p.Depth); err != nil {
			return nil, err
		}
		p.CrawlTime = time.Unix(crawl, 0)
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}

// GetQueue returns all frontier rows for a session in insertion order.
func (d *Database) GetQueue(session int64) ([]*QueueEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query(`
		SELECT id, session_id, url, depth, status, added_time, crawled_time, error_count
		FROM url_queue WHERE session_id = ? ORDER BY id`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*QueueEntry
	for rows.Next() {
		var e QueueEntry
		var added int64
		var crawled sql.NullInt64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.URL, &e.Depth, &e.Status, &added, &crawled, &e.ErrorCount); err != nil {
			return nil, err
		}
		e.AddedTime = time.Unix(added, 0)
		if crawled.Valid {
			t := time.Unix(crawled.Int64, 0)
			e.CrawledTime = &t
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- Link graph operations ---

// RecordLink appends an edge to the discovered link graph.
func (d *Database) RecordLink(session int64, source, target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.linkStmt.Exec(session, source, target, time.Now().Unix())
	return err
}

// GetLinks returns all link edges for a session in insertion order.
func (d *Database) GetLinks(session int64) ([]*Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query(`
		SELECT id, session_id, source_url, target_url, discovered_time
		FROM extracted_links WHERE session_id = ? ORDER BY id`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*Link
	for rows.Next() {
		var l Link
		var discovered int64
		if err := rows.Scan(&l.ID, &l.SessionID, &l.SourceURL, &l.TargetURL, &discovered); err != nil {
			return nil, err
		}
		l.DiscoveredTime = time.Unix(discovered, 0)
		links = append(links, &l)
	}
	return links, rows.Err()
}

// --- Statistics ---

// SessionStats derives per-session counts from storage.
func (d *Database) SessionStats(session int64) (*Stats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := &Stats{}
	err := d.db.QueryRow(`
		SELECT
		    (SELECT COUNT(*) FROM pages WHERE session_id = ?),
		    (SELECT COUNT(*) FROM extracted_links WHERE session_id = ?),
		    (SELECT COUNT(*) FROM url_queue WHERE session_id = ? AND error_count > 0),
		    (SELECT COUNT(*) FROM url_queue WHERE session_id = ? AND status = 'skipped'),
		    (SELECT COUNT(*) FROM url_queue WHERE session_id = ? AND status = 'pending')`,
		session, session, session, session, session).Scan(
		&stats.Pages, &stats.Links, &stats.Errors, &stats.Skipped, &stats.Pending)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
