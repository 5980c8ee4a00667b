// Package urlutil provides URL normalization, resolution, and filtering
// for the crawl frontier.
package urlutil

import (
	"net/url"
	"strings"
)

// Normalize canonicalizes a URL for frontier insertion: the fragment is
// truncated and a single trailing slash is stripped, unless it is the
// slash immediately following the scheme separator. No case folding,
// percent-encoding normalization, or query sorting is performed.
// Applying Normalize twice yields the same result as applying it once,
// except for URLs ending in more than one slash: each call strips only
// one, so "http://a/b//" becomes "http://a/b/" and then "http://a/b".
func Normalize(rawURL string) string {
	if idx := strings.IndexByte(rawURL, '#'); idx != -1 {
		rawURL = rawURL[:idx]
	}

	if len(rawURL) > 1 && strings.HasSuffix(rawURL, "/") {
		if sep := strings.Index(rawURL, "://"); sep == -1 || sep+3 != len(rawURL) {
			rawURL = rawURL[:len(rawURL)-1]
		}
	}

	return rawURL
}

// Resolve resolves a possibly relative reference against a base URL per
// RFC 3986. A reference that is already absolute http(s) is returned
// unchanged.
func Resolve(base, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// IsCrawlableScheme reports whether the URL uses http or https.
func IsCrawlableScheme(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

// ShouldSkip reports whether the URL matches any skip pattern.
// Matching is case-sensitive substring containment.
func ShouldSkip(rawURL string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(rawURL, p) {
			return true
		}
	}
	return false
}

// Host extracts the lowercased host of a URL.
func Host(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Host), nil
}

// AllowedDomain reports whether the URL's host is eligible for crawling.
// With external links allowed, every host passes. Otherwise the host
// must match one of the allowed domains, or the seed's host when the
// list is empty.
func AllowedDomain(rawURL, seedHost string, followExternal bool, allowed []string) bool {
	if followExternal {
		return true
	}

	host, err := Host(rawURL)
	if err != nil || host == "" {
		return false
	}

	if len(allowed) == 0 {
		return host == seedHost
	}
	for _, domain := range allowed {
		if host == strings.ToLower(domain) {
			return true
		}
	}
	return false
}
