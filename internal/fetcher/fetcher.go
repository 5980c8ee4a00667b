// Package fetcher handles HTTP downloading with redirect and size caps.
package fetcher

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/rehttp"
	"github.com/andybalholm/brotli"

	"github.com/durable-crawler/crawld/internal/config"
)

// ErrBodyTooLarge is returned when a response body exceeds the
// configured maximum page size.
var ErrBodyTooLarge = errors.New("response body exceeds maximum page size")

// Fetcher downloads pages over HTTP. Safe for concurrent use; the
// crawler shares one instance across all of its fetch workers.
type Fetcher struct {
	client          *http.Client
	userAgent       string
	maxBodySize     int64
	initialPageSize int
}

// New creates a fetcher from the crawl configuration: redirects capped
// at MaxRedirects, overall timeout RequestTimeout, TLS verification as
// configured. When retrying is enabled the transport retries temporary
// errors and 429/502/503/504 responses up to MaxRetries times with
// exponential jitter backoff, all within the URL's single dispatch; a
// failure that outlasts the retries is returned as is.
func New(cfg *config.Config) *Fetcher {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.TLSVerify,
		},
		// Decompression handled in readBody, including brotli
		DisableCompression: true,
	}

	var rt http.RoundTripper = transport
	if cfg.RetryFailedRequests {
		rt = rehttp.NewTransport(
			transport,
			rehttp.RetryAll(
				rehttp.RetryMaxRetries(cfg.MaxRetries),
				rehttp.RetryAny(
					rehttp.RetryTemporaryErr(),
					rehttp.RetryStatuses(http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout),
				),
			),
			rehttp.ExpJitterDelay(time.Second, 10*time.Second),
		)
	}

	maxRedirects := cfg.MaxRedirects
	return &Fetcher{
		client: &http.Client{
			Transport: rt,
			Timeout:   cfg.RequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent:       cfg.UserAgent,
		maxBodySize:     cfg.MaxPageSize,
		initialPageSize: cfg.InitialPageSize,
	}
}

// Fetch downloads a URL. Transport failures, redirect-cap breaches, and
// oversize bodies are reported in Response.Err; HTTP status
// classification is left to the caller.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) *Response {
	start := time.Now()
	resp := &Response{RequestURL: rawURL, FinalURL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		resp.Err = fmt.Errorf("failed to create request: %w", err)
		return resp
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, br")

	httpResp, err := f.client.Do(req)
	if err != nil {
		resp.Err = fmt.Errorf("request failed: %w", err)
		return resp
	}
	defer httpResp.Body.Close()

	resp.StatusCode = httpResp.StatusCode
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		resp.FinalURL = httpResp.Request.URL.String()
	}

	body, err := f.readBody(httpResp)
	if err != nil {
		resp.Err = err
		return resp
	}

	resp.Body = body
	resp.BodySize = int64(len(body))
	resp.Elapsed = time.Since(start)
	return resp
}

// readBody reads the response body into a buffer seeded at the initial
// page size, doubling on growth. Reading aborts once the body exceeds
// the maximum page size.
func (f *Fetcher) readBody(httpResp *http.Response) ([]byte, error) {
	var reader io.Reader = httpResp.Body

	switch httpResp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(httpResp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode error: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(httpResp.Body)
	}

	buf := make([]byte, 0, f.initialPageSize)
	chunk := make([]byte, f.initialPageSize)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			if int64(len(buf)+n) > f.maxBodySize {
				return nil, ErrBodyTooLarge
			}
			if need := len(buf) + n; need > cap(buf) {
				newCap := 2 * cap(buf)
				if newCap < need {
					newCap = need
				}
				grown := make([]byte, len(buf), newCap)
				copy(grown, buf)
				buf = grown
			}
			buf = append(buf, chunk[:n]...)
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
	}
}

// Close releases idle connections held by the underlying transport.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}
