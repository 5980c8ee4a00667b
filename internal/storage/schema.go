package storage

// Schema contains SQL statements to create database tables.
// The column layout and the (session_id, url) unique constraints are the
// on-disk contract for external tools reading the database between runs.
const Schema = `
CREATE TABLE IF NOT EXISTS crawl_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    start_url TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER,
    status TEXT DEFAULT 'running'
);

CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER,
    url TEXT NOT NULL,
    content BLOB,
    content_length INTEGER,
    response_code INTEGER,
    crawl_time INTEGER,
    depth INTEGER,
    FOREIGN KEY(session_id) REFERENCES crawl_sessions(id),
    UNIQUE(session_id, url)
);

CREATE TABLE IF NOT EXISTS url_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER,
    url TEXT NOT NULL,
    depth INTEGER,
    status TEXT DEFAULT 'pending',
    added_time INTEGER,
    crawled_time INTEGER,
    error_count INTEGER DEFAULT 0,
    FOREIGN KEY(session_id) REFERENCES crawl_sessions(id),
    UNIQUE(session_id, url)
);

CREATE TABLE IF NOT EXISTS extracted_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER,
    source_url TEXT NOT NULL,
    target_url TEXT NOT NULL,
    discovered_time INTEGER,
    FOREIGN KEY(session_id) REFERENCES crawl_sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_url_queue_status ON url_queue(session_id, status);
CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(session_id, url);
CREATE INDEX IF NOT EXISTS idx_extracted_links_source ON extracted_links(session_id, source_url);
`
