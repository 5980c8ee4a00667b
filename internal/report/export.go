// Package report exports crawl results to CSV, XLSX, and JSON.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"github.com/durable-crawler/crawld/internal/storage"
)

// Format defines the export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat converts a user-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported export format: %s", s)
}

// Report is the exportable view of one crawl session.
type Report struct {
	Session *storage.Session     `json:"session"`
	Stats   *storage.Stats       `json:"stats"`
	Pages   []PageRow            `json:"pages"`
	Queue   []*storage.QueueEntry `json:"queue"`
	Links   []*storage.Link      `json:"links"`
}

// PageRow is a page with its title pulled out of the stored body.
type PageRow struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Depth         int       `json:"depth"`
	ResponseCode  int       `json:"response_code"`
	ContentLength int64     `json:"content_length"`
	CrawlTime     time.Time `json:"crawl_time"`
}

// Build assembles a report for a session from storage.
func Build(db *storage.Database, sessionID int64) (*Report, error) {
	session, err := db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session %d does not exist", sessionID)
	}

	stats, err := db.SessionStats(sessionID)
	if err != nil {
		return nil, err
	}
	pages, err := db.GetPages(sessionID)
	if err != nil {
		return nil, err
	}
	queue, err := db.GetQueue(sessionID)
	if err != nil {
		return nil, err
	}
	links, err := db.GetLinks(sessionID)
	if err != nil {
		return nil, err
	}

	rows := make([]PageRow, 0, len(pages))
	for _, p := range pages {
		rows = append(rows, PageRow{
			URL:           p.URL,
			Title:         pageTitle(p.Content),
			Depth:         p.Depth,
			ResponseCode:  p.ResponseCode,
			ContentLength: p.ContentLength,
			CrawlTime:     p.CrawlTime,
		})
	}

	return &Report{
		Session: session,
		Stats:   stats,
		Pages:   rows,
		Queue:   queue,
		Links:   links,
	}, nil
}

// pageTitle extracts the <title> text from a stored body. Unparseable
// content yields an empty title.
func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// Export writes the report to path in the given format.
func Export(r *Report, format Format, path string) error {
	switch format {
	case FormatCSV:
		return exportCSV(r, path)
	case FormatXLSX:
		return exportXLSX(r, path)
	case FormatJSON:
		return exportJSON(r, path)
	}
	return fmt.Errorf("unsupported export format: %s", format)
}

var pageHeader = []string{"url", "title", "depth", "response_code", "content_length", "crawl_time"}

func pageRecord(p PageRow) []string {
	return []string{
		p.URL,
		p.Title,
		strconv.Itoa(p.Depth),
		strconv.Itoa(p.ResponseCode),
		strconv.FormatInt(p.ContentLength, 10),
		p.CrawlTime.Format(time.RFC3339),
	}
}

func exportCSV(r *Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(pageHeader); err != nil {
		return err
	}
	for _, p := range r.Pages {
		if err := w.Write(pageRecord(p)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func exportJSON(r *Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func exportXLSX(r *Report, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheet(f, "Pages", pageHeader, len(r.Pages), func(i int) []interface{} {
		p := r.Pages[i]
		return []interface{}{p.URL, p.Title, p.Depth, p.ResponseCode, p.ContentLength, p.CrawlTime.Format(time.RFC3339)}
	}); err != nil {
		return err
	}

	if err := writeSheet(f, "Queue", []string{"url", "depth", "status", "added_time", "error_count"}, len(r.Queue), func(i int) []interface{} {
		q := r.Queue[i]
		return []interface{}{q.URL, q.Depth, q.Status, q.AddedTime.Format(time.RFC3339), q.ErrorCount}
	}); err != nil {
		return err
	}

	if err := writeSheet(f, "Links", []string{"source_url", "target_url", "discovered_time"}, len(r.Links), func(i int) []interface{} {
		l := r.Links[i]
		return []interface{}{l.SourceURL, l.TargetURL, l.DiscoveredTime.Format(time.RFC3339)}
	}); err != nil {
		return err
	}

	// The default sheet excelize creates is replaced by our first one.
	f.DeleteSheet("Sheet1")
	return f.SaveAs(path)
}

func writeSheet(f *excelize.File, name string, header []string, rows int, record func(int) []interface{}) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}

	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := setRow(f, name, 1, cells); err != nil {
		return err
	}

	for i := 0; i < rows; i++ {
		if err := setRow(f, name, i+2, record(i)); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
