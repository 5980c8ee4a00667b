package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/durable-crawler/crawld/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RequestTimeout = 5 * time.Second
	cfg.MaxPageSize = 1 << 20
	return cfg
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "WebCrawler/1.0" {
			t.Errorf("User-Agent = %q", ua)
		}
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer server.Close()

	f := New(testConfig())
	defer f.Close()

	resp := f.Fetch(context.Background(), server.URL)
	if !resp.IsSuccess() {
		t.Fatalf("fetch failed: status=%d err=%v", resp.StatusCode, resp.Err)
	}
	if string(resp.Body) != "<html>ok</html>" {
		t.Errorf("body = %q", resp.Body)
	}
	if resp.BodySize != int64(len(resp.Body)) {
		t.Errorf("BodySize = %d, want %d", resp.BodySize, len(resp.Body))
	}
}

func TestFetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	f := New(testConfig())
	defer f.Close()

	resp := f.Fetch(context.Background(), server.URL)
	if resp.Err != nil {
		t.Fatalf("transport error on a 500: %v", resp.Err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.IsSuccess() {
		t.Error("500 counted as success")
	}
}

func TestFetchEmptyBodyNotSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := New(testConfig())
	defer f.Close()

	resp := f.Fetch(context.Background(), server.URL)
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}
	if resp.IsSuccess() {
		t.Error("200 with empty body counted as success")
	}
}

func TestFetchTransportError(t *testing.T) {
	f := New(testConfig())
	defer f.Close()

	resp := f.Fetch(context.Background(), "http://127.0.0.1:1")
	if resp.Err == nil {
		t.Fatal("expected a transport error")
	}
	if resp.IsSuccess() {
		t.Error("transport failure counted as success")
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "arrived")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := New(testConfig())
	defer f.Close()

	resp := f.Fetch(context.Background(), server.URL+"/")
	if !resp.IsSuccess() {
		t.Fatalf("fetch failed: %v", resp.Err)
	}
	if !strings.HasSuffix(resp.FinalURL, "/final") {
		t.Errorf("FinalURL = %q", resp.FinalURL)
	}
}

func TestFetchRedirectCap(t *testing.T) {
	var server *httptest.Server
	hops := 0
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, fmt.Sprintf("/%d", hops), http.StatusFound)
	}))
	defer server.Close()

	f := New(testConfig())
	defer f.Close()

	resp := f.Fetch(context.Background(), server.URL)
	if resp.Err == nil {
		t.Fatal("redirect loop did not error")
	}
	if resp.IsSuccess() {
		t.Error("redirect loop counted as success")
	}
}

func TestFetchOversizeBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		big := make([]byte, 64*1024)
		w.Write(big)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxPageSize = 1024
	f := New(cfg)
	defer f.Close()

	resp := f.Fetch(context.Background(), server.URL)
	if !errors.Is(resp.Err, ErrBodyTooLarge) {
		t.Fatalf("err = %v, want ErrBodyTooLarge", resp.Err)
	}
}

func TestFetchGzipBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		fmt.Fprint(gz, "<html>compressed</html>")
		gz.Close()
	}))
	defer server.Close()

	f := New(testConfig())
	defer f.Close()

	resp := f.Fetch(context.Background(), server.URL)
	if !resp.IsSuccess() {
		t.Fatalf("fetch failed: %v", resp.Err)
	}
	if string(resp.Body) != "<html>compressed</html>" {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestFetchRetriesWhenEnabled(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "eventually")
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RetryFailedRequests = true
	cfg.MaxRetries = 3
	cfg.RequestTimeout = 30 * time.Second
	f := New(cfg)
	defer f.Close()

	resp := f.Fetch(context.Background(), server.URL)
	if !resp.IsSuccess() {
		t.Fatalf("fetch failed after retries: status=%d err=%v", resp.StatusCode, resp.Err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}
