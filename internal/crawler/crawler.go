// Package crawler implements the crawl coordinator: a dispatcher that
// claims URLs from the durable frontier and a pool of fetch workers
// that download pages, persist them, and enqueue discovered links.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/durable-crawler/crawld/internal/config"
	"github.com/durable-crawler/crawld/internal/fetcher"
	"github.com/durable-crawler/crawld/internal/parser"
	"github.com/durable-crawler/crawld/internal/pool"
	"github.com/durable-crawler/crawld/internal/storage"
	"github.com/durable-crawler/crawld/internal/urlutil"
)

const (
	claimInterval  = 100 * time.Millisecond
	emptyInterval  = 500 * time.Millisecond
	reportInterval = 60 * time.Second
)

// Crawler coordinates one crawl session.
type Crawler struct {
	cfg     *config.Config
	db      *storage.Database
	pool    *pool.Pool
	fetcher *fetcher.Fetcher
	limiter *rate.Limiter
	logger  *slog.Logger

	session  *storage.Session
	seedHost string

	stats   Counters
	started time.Time
}

// New creates a crawler bound to an open database. The session is
// attached later via StartSession or Resume.
func New(cfg *config.Config, db *storage.Database, logger *slog.Logger) *Crawler {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	return &Crawler{
		cfg:     cfg,
		db:      db,
		pool:    pool.New(cfg.Concurrency),
		fetcher: fetcher.New(cfg),
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// StartSession creates a fresh session for the seed URL and enqueues
// the seed at depth 0.
func (c *Crawler) StartSession(seedURL string) error {
	if !urlutil.IsCrawlableScheme(seedURL) {
		return fmt.Errorf("seed URL must start with http:// or https://: %s", seedURL)
	}

	seedURL = urlutil.Normalize(seedURL)
	id, err := c.db.CreateSession(seedURL)
	if err != nil {
		return err
	}
	session, err := c.db.GetSession(id)
	if err != nil {
		return err
	}
	if err := c.attach(session); err != nil {
		return err
	}

	if _, err := c.db.Enqueue(id, seedURL, 0); err != nil {
		return fmt.Errorf("failed to enqueue seed: %w", err)
	}
	return nil
}

// Resume attaches to a running session: the newest one when id is zero,
// or the specific session otherwise.
func (c *Crawler) Resume(id int64) error {
	var session *storage.Session
	var err error

	if id == 0 {
		session, err = c.db.FindResumable()
		if err != nil {
			return err
		}
		if session == nil {
			return fmt.Errorf("no resumable session found")
		}
	} else {
		session, err = c.db.GetSession(id)
		if err != nil {
			return err
		}
		if session == nil {
			return fmt.Errorf("session %d does not exist", id)
		}
		if session.Status != storage.SessionRunning {
			return fmt.Errorf("session %d is not running (status %q)", id, session.Status)
		}
	}

	return c.attach(session)
}

func (c *Crawler) attach(session *storage.Session) error {
	host, err := urlutil.Host(session.StartURL)
	if err != nil {
		return fmt.Errorf("invalid session start URL %q: %w", session.StartURL, err)
	}
	c.session = session
	c.seedHost = host
	return nil
}

// Session returns the attached session.
func (c *Crawler) Session() *storage.Session { return c.session }

// Run executes the dispatcher loop until the crawl bound is reached or
// the frontier drains with no work in flight, then shuts the pool down,
// prints statistics, and completes the session.
func (c *Crawler) Run(ctx context.Context) error {
	if c.session == nil {
		return fmt.Errorf("no session attached")
	}

	if c.cfg.SavePages {
		if err := os.MkdirAll(c.cfg.PagesDir, 0o755); err != nil {
			c.logger.Error("failed to create pages directory, continuing without saving",
				"dir", c.cfg.PagesDir, "error", err)
			c.cfg.SavePages = false
		}
	}

	c.started = time.Now()
	lastReport := c.started
	sid := c.session.ID

	c.logger.Info("starting crawl",
		"session", sid,
		"seed", c.session.StartURL,
		"max_depth", c.cfg.MaxDepth,
		"max_urls", c.cfg.MaxURLs,
		"workers", c.cfg.Concurrency)

	for c.stats.PagesCrawled.Load() < int64(c.cfg.MaxURLs) {
		if err := ctx.Err(); err != nil {
			break
		}

		url, depth, ok, err := c.db.ClaimNext(sid)
		if err != nil {
			c.logger.Error("claim failed", "error", err)
			c.stats.Errors.Add(1)
			time.Sleep(claimInterval)
			continue
		}

		if ok {
			stored, err := c.db.IsPageStored(sid, url)
			if err != nil {
				c.logger.Error("page lookup failed", "url", url, "error", err)
				c.stats.Errors.Add(1)
			}

			// Claim: terminal for dispatch. Any concurrent observer
			// sees the row leave pending before the fetch begins.
			if err := c.db.MarkCrawled(sid, url); err != nil {
				c.logger.Error("mark crawled failed", "url", url, "error", err)
				c.stats.Errors.Add(1)
			}

			if stored {
				continue
			}

			if err := c.limiter.Wait(ctx); err != nil {
				break
			}

			taskURL, taskDepth := url, depth
			c.pool.Submit(func() {
				c.crawlTask(ctx, taskURL, taskDepth)
			})
		} else {
			time.Sleep(emptyInterval)

			// Re-check with no work in flight: an in-flight worker
			// may yet enqueue children. The pool must be observed
			// idle before the frontier emptiness check is trusted.
			if !c.pool.IsBusy() {
				if _, _, again, err := c.db.ClaimNext(sid); err == nil && !again {
					break
				}
			}
		}

		time.Sleep(claimInterval)

		if time.Since(lastReport) >= reportInterval {
			c.reportProgress()
			lastReport = time.Now()
		}
	}

	c.pool.Wait()
	c.pool.Stop()
	c.fetcher.Close()

	c.PrintStats()

	if err := c.db.CompleteSession(sid); err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	return nil
}

// crawlTask fetches one URL, persists the page, and enqueues its links.
// Runs on a pool worker.
func (c *Crawler) crawlTask(ctx context.Context, url string, depth int) {
	sid := c.session.ID

	if c.cfg.Verbose {
		c.logger.Info("crawling", "url", url, "depth", depth)
	}

	resp := c.fetcher.Fetch(ctx, url)
	if !resp.IsSuccess() {
		c.stats.Errors.Add(1)
		if err := c.db.RecordFetchError(sid, url); err != nil {
			c.logger.Error("failed to record fetch error", "url", url, "error", err)
		}
		if resp.Err != nil {
			c.logger.Warn("fetch failed", "url", url, "error", resp.Err)
		} else {
			c.logger.Warn("fetch rejected", "url", url, "status", resp.StatusCode, "bytes", resp.BodySize)
		}
		return
	}

	n := c.stats.PagesCrawled.Add(1)

	if err := c.db.StorePage(sid, url, resp.Body, resp.StatusCode, depth); err != nil {
		c.logger.Error("failed to store page", "url", url, "error", err)
		c.stats.Errors.Add(1)
	}

	if c.cfg.SavePages {
		c.dumpPage(n, resp.Body)
	}

	if c.cfg.Verbose {
		c.logger.Info("downloaded", "url", url, "bytes", resp.BodySize, "elapsed", resp.Elapsed)
	}

	c.extractAndEnqueue(url, depth, resp.Body)
}

// extractAndEnqueue parses the fetched body and inserts eligible child
// URLs into the frontier, using the fetched page URL as the resolution
// base.
func (c *Crawler) extractAndEnqueue(pageURL string, depth int, body []byte) {
	sid := c.session.ID

	hrefs, err := parser.ExtractLinks(body)
	if err != nil {
		c.logger.Warn("parse failed", "url", pageURL, "error", err)
		c.stats.Errors.Add(1)
		return
	}

	for _, href := range hrefs {
		absolute, err := urlutil.Resolve(pageURL, href)
		if err != nil {
			continue
		}
		if !urlutil.IsCrawlableScheme(absolute) || len(absolute) >= c.cfg.MaxURLLength {
			continue
		}

		target := urlutil.Normalize(absolute)

		if urlutil.ShouldSkip(target, c.cfg.SkipPatterns) {
			continue
		}

		if !urlutil.AllowedDomain(target, c.seedHost, c.cfg.FollowExternalLinks, c.cfg.AllowedDomains) {
			if inserted, err := c.db.EnqueueSkipped(sid, target, depth+1); err == nil && inserted {
				c.stats.SkippedURLs.Add(1)
			}
			continue
		}

		if depth+1 > c.cfg.MaxDepth {
			continue
		}

		stored, err := c.db.IsPageStored(sid, target)
		if err != nil {
			c.logger.Error("page lookup failed", "url", target, "error", err)
			c.stats.Errors.Add(1)
			continue
		}
		if stored {
			continue
		}

		inserted, err := c.db.Enqueue(sid, target, depth+1)
		if err != nil {
			c.logger.Error("enqueue failed", "url", target, "error", err)
			c.stats.Errors.Add(1)
			continue
		}
		if inserted {
			c.stats.LinksFound.Add(1)
		}

		if err := c.db.RecordLink(sid, pageURL, target); err != nil {
			c.logger.Error("failed to record link", "source", pageURL, "target", target, "error", err)
			c.stats.Errors.Add(1)
		}
	}
}

// dumpPage writes the fetched body, binary-identical, to
// <pages_dir>/<prefix><n>.html.
func (c *Crawler) dumpPage(n int64, body []byte) {
	name := fmt.Sprintf("%s%d.html", c.cfg.PageFilePrefix, n)
	path := filepath.Join(c.cfg.PagesDir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		c.logger.Error("failed to save page file", "path", path, "error", err)
	}
}

func (c *Crawler) reportProgress() {
	snap := c.stats.Snapshot()
	elapsed := time.Since(c.started)

	pagesPerSec := float64(0)
	if secs := elapsed.Seconds(); secs > 0 {
		pagesPerSec = float64(snap.PagesCrawled) / secs
	}

	pending, err := c.db.PendingCount(c.session.ID)
	if err != nil {
		pending = -1
	}

	c.logger.Info("progress",
		"session", c.session.ID,
		"pending", pending,
		"pages", snap.PagesCrawled,
		"links", snap.LinksFound,
		"errors", snap.Errors,
		"skipped", snap.SkippedURLs,
		"pages_per_sec", fmt.Sprintf("%.2f", pagesPerSec))
}

// PrintStats reconciles the counters from storage and prints the final
// session statistics.
func (c *Crawler) PrintStats() {
	snap := c.stats.Snapshot()

	if dbStats, err := c.db.SessionStats(c.session.ID); err == nil {
		snap.PagesCrawled = int64(dbStats.Pages)
		snap.LinksFound = int64(dbStats.Links)
		snap.Errors = int64(dbStats.Errors)
		snap.SkippedURLs = int64(dbStats.Skipped)
	} else {
		c.logger.Error("failed to reconcile stats from storage", "error", err)
	}

	elapsed := time.Since(c.started)

	fmt.Println("\n=== Crawler Statistics ===")
	fmt.Printf("Session ID: %d\n", c.session.ID)
	fmt.Printf("Pages crawled: %d\n", snap.PagesCrawled)
	fmt.Printf("Links found: %d\n", snap.LinksFound)
	fmt.Printf("URLs skipped: %d\n", snap.SkippedURLs)
	fmt.Printf("Errors: %d\n", snap.Errors)
	fmt.Printf("Time elapsed: %.2f seconds\n", elapsed.Seconds())
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Printf("Average pages/second: %.2f\n", float64(snap.PagesCrawled)/secs)
	}
}
