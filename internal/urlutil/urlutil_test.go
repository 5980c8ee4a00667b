package urlutil

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"http://a/c#frag", "http://a/c"},
		{"http://a/b/", "http://a/b"},
		{"http://a/", "http://a"},
		{"http://", "http://"},
		{"/", "/"},
		{"http://a/b", "http://a/b"},
		{"http://a/b/#x/", "http://a/b"},
		{"http://A/Path?q=Z", "http://A/Path?q=Z"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"http://a/c#frag",
		"http://a/b/",
		"http://a",
		"https://example.com/x/y/?q=1#z",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		base, ref, want string
	}{
		{"http://a/page", "/b", "http://a/b"},
		{"http://a/dir/page", "child", "http://a/dir/child"},
		{"http://a/page", "http://b/x", "http://b/x"},
		{"http://a/page", "https://b/x", "https://b/x"},
		{"http://a/dir/", "../up", "http://a/up"},
	}
	for _, c := range cases {
		got, err := Resolve(c.base, c.ref)
		if err != nil {
			t.Fatalf("Resolve(%q, %q) error: %v", c.base, c.ref, err)
		}
		if got != c.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", c.base, c.ref, got, c.want)
		}
	}
}

func TestResolveAbsolutePassthrough(t *testing.T) {
	u := "https://example.com/path?q=1"
	got, err := Resolve("http://base/", u)
	if err != nil {
		t.Fatal(err)
	}
	if got != u {
		t.Errorf("absolute URL changed by Resolve: %q -> %q", u, got)
	}
}

func TestIsCrawlableScheme(t *testing.T) {
	if !IsCrawlableScheme("http://a") || !IsCrawlableScheme("https://a") {
		t.Error("http/https should be crawlable")
	}
	for _, u := range []string{"ftp://a", "mailto:x@y", "javascript:void(0)", "a/b"} {
		if IsCrawlableScheme(u) {
			t.Errorf("%q should not be crawlable", u)
		}
	}
}

func TestShouldSkip(t *testing.T) {
	patterns := []string{".pdf", "mailto:", ".jpg"}

	if !ShouldSkip("http://a/doc.pdf", patterns) {
		t.Error("pdf URL should be skipped")
	}
	if !ShouldSkip("mailto:x@y", patterns) {
		t.Error("mailto URL should be skipped")
	}
	if ShouldSkip("http://a/page.html", patterns) {
		t.Error("html URL should not be skipped")
	}
	// Matching is case-sensitive.
	if ShouldSkip("http://a/doc.PDF", patterns) {
		t.Error("skip match should be case-sensitive")
	}
}

func TestAllowedDomain(t *testing.T) {
	if !AllowedDomain("http://other.com/x", "seed.com", true, nil) {
		t.Error("external links allowed: every host passes")
	}
	if !AllowedDomain("http://seed.com/x", "seed.com", false, nil) {
		t.Error("seed host must pass with empty allow list")
	}
	if AllowedDomain("http://other.com/x", "seed.com", false, nil) {
		t.Error("foreign host must fail with empty allow list")
	}
	if !AllowedDomain("http://ok.com/x", "seed.com", false, []string{"ok.com"}) {
		t.Error("listed host must pass")
	}
	if AllowedDomain("http://no.com/x", "seed.com", false, []string{"ok.com"}) {
		t.Error("unlisted host must fail")
	}
}
