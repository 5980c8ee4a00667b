package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/durable-crawler/crawld/internal/storage"
)

func seedSession(t *testing.T) (*storage.Database, int64) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "crawler.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	id, err := db.CreateSession("http://seed")
	if err != nil {
		t.Fatal(err)
	}
	db.Enqueue(id, "http://seed", 0)
	db.MarkCrawled(id, "http://seed")
	db.StorePage(id, "http://seed", []byte("<html><head><title>Seed Page</title></head></html>"), 200, 0)
	db.RecordLink(id, "http://seed", "http://seed/a")
	db.Enqueue(id, "http://seed/a", 1)
	return db, id
}

func TestBuild(t *testing.T) {
	db, id := seedSession(t)

	r, err := Build(db, id)
	if err != nil {
		t.Fatal(err)
	}
	if r.Session.ID != id {
		t.Errorf("session id = %d", r.Session.ID)
	}
	if len(r.Pages) != 1 {
		t.Fatalf("pages = %d", len(r.Pages))
	}
	if r.Pages[0].Title != "Seed Page" {
		t.Errorf("title = %q", r.Pages[0].Title)
	}
	if len(r.Links) != 1 || len(r.Queue) != 2 {
		t.Errorf("links = %d, queue = %d", len(r.Links), len(r.Queue))
	}
	if r.Stats.Pages != 1 {
		t.Errorf("stats pages = %d", r.Stats.Pages)
	}
}

func TestBuildUnknownSession(t *testing.T) {
	db, id := seedSession(t)
	if _, err := Build(db, id+42); err == nil {
		t.Error("unknown session should fail")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"csv": FormatCSV, "XLSX": FormatXLSX, "json": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = (%v, %v)", in, got, err)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Error("unsupported format accepted")
	}
}

func TestExportCSV(t *testing.T) {
	db, id := seedSession(t)
	r, err := Build(db, id)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := Export(r, FormatCSV, path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want header + 1 row", len(lines))
	}
	if !strings.Contains(lines[1], "http://seed") || !strings.Contains(lines[1], "Seed Page") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestExportJSON(t *testing.T) {
	db, id := seedSession(t)
	r, err := Build(db, id)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "out.json")
	if err := Export(r, FormatJSON, path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded.Pages) != 1 || decoded.Pages[0].URL != "http://seed" {
		t.Errorf("decoded pages = %+v", decoded.Pages)
	}
}

func TestExportXLSX(t *testing.T) {
	db, id := seedSession(t)
	r, err := Build(db, id)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "out.xlsx")
	if err := Export(r, FormatXLSX, path); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("empty xlsx file")
	}
}
