package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/security"
)

// testGuard はループバックへの接続を許可するテスト用のURLGuard。
type testGuard struct {
	blocked string
}

func (g *testGuard) ValidateURL(rawURL string) error {
	if g.blocked != "" && strings.Contains(rawURL, g.blocked) {
		return security.ErrBlockedURL
	}
	return nil
}

func (g *testGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

const testRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Go Weekly</title><link>https://golangweekly.example/</link>
<item><guid>1</guid><title>Generics deep dive</title><link>https://golangweekly.example/1</link></item>
</channel></rss>`

const testAtom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>Atom Blog</title>
<entry><id>urn:1</id><title>Hello</title></entry></feed>`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rss.xml", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != UserAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, testRSS)
	})
	mux.HandleFunc("/atom", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		io.WriteString(w, testAtom)
	})
	mux.HandleFunc("/blog", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, `<html><head>
<link rel="stylesheet" href="/style.css">
<link rel="alternate" type="application/rss+xml" href="https://other.example/feed">
<link rel="alternate" type="application/rss+xml" href="/rss.xml">
</head><body><link rel="alternate" type="application/atom+xml" href="/atom"></body></html>`)
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head><title>no feeds</title></head></html>`)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, `<rss><channel><title>oops`)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	return httptest.NewServer(mux)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != code {
		t.Fatalf("expected APIError %s, got %v", code, err)
	}
}

func TestDiscoverer_DirectFeed(t *testing.T) {
	ts := newFeedServer(t)
	defer ts.Close()

	feed, err := NewDiscoverer(&testGuard{}).Discover(context.Background(), ts.URL+"/rss.xml")
	if err != nil {
		t.Fatalf("Discover がエラーを返した: %v", err)
	}
	if feed.URL != ts.URL+"/rss.xml" || feed.Title != "Go Weekly" || feed.SiteURL != "https://golangweekly.example/" {
		t.Errorf("feed = %+v", feed)
	}
}

func TestDiscoverer_GenericXMLAtom(t *testing.T) {
	ts := newFeedServer(t)
	defer ts.Close()

	feed, err := NewDiscoverer(&testGuard{}).Discover(context.Background(), ts.URL+"/atom")
	if err != nil {
		t.Fatalf("Discover がエラーを返した: %v", err)
	}
	if feed.Title != "Atom Blog" || feed.SiteURL != ts.URL {
		t.Errorf("feed = %+v", feed)
	}
}

// TestDiscoverer_FromHTML は同一ホストのリンクが優先され、body 内のリンクは無視されることを検証する。
func TestDiscoverer_FromHTML(t *testing.T) {
	ts := newFeedServer(t)
	defer ts.Close()

	feed, err := NewDiscoverer(&testGuard{}).Discover(context.Background(), ts.URL+"/blog")
	if err != nil {
		t.Fatalf("Discover がエラーを返した: %v", err)
	}
	if feed.URL != ts.URL+"/rss.xml" {
		t.Errorf("URL = %s, want %s/rss.xml", feed.URL, ts.URL)
	}
}

func TestDiscoverer_Errors(t *testing.T) {
	ts := newFeedServer(t)
	defer ts.Close()

	tests := []struct {
		name  string
		guard *testGuard
		url   string
		code  string
	}{
		{"empty", &testGuard{}, "  ", model.ErrCodeInvalidURL},
		{"blocked", &testGuard{blocked: "127.0.0.1"}, ts.URL + "/rss.xml", model.ErrCodeSSRFBlocked},
		{"no feed link", &testGuard{}, ts.URL + "/plain", model.ErrCodeFeedNotDetected},
		{"broken feed", &testGuard{}, ts.URL + "/broken", model.ErrCodeParseFailed},
		{"gone", &testGuard{}, ts.URL + "/gone", model.ErrCodeFetchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDiscoverer(tt.guard).Discover(context.Background(), tt.url)
			assertCode(t, err, tt.code)
		})
	}
}

func TestPickFeedLink(t *testing.T) {
	links := []feedLink{
		{url: "https://cdn.example/rss", atom: false},
		{url: "https://blog.example/rss", atom: false},
		{url: "https://blog.example/atom", atom: true},
	}
	if got := pickFeedLink(links, "https://blog.example/posts"); got != "https://blog.example/atom" {
		t.Errorf("pickFeedLink = %s", got)
	}
	if got := pickFeedLink(links[:2], "https://blog.example/"); got != "https://blog.example/rss" {
		t.Errorf("pickFeedLink = %s", got)
	}
	if got := pickFeedLink(nil, "https://blog.example/"); got != "" {
		t.Errorf("pickFeedLink = %s", got)
	}
}

func TestLooksLikeFeed(t *testing.T) {
	tests := []struct {
		contentType string
		body        string
		want        bool
	}{
		{"application/atom+xml", "", true},
		{"application/rss+xml; charset=utf-8", "", true},
		{"text/xml", "<rss version='2.0'>", true},
		{"application/xml", `<rdf:RDF xmlns:rdf="x">`, true},
		{"application/xml", `<feed xmlns="http://www.w3.org/2005/Atom">`, true},
		{"application/xml", `<sitemap/>`, false},
		{"text/html", "<rss>", false},
	}
	for _, tt := range tests {
		if got := looksLikeFeed(tt.contentType, []byte(tt.body)); got != tt.want {
			t.Errorf("looksLikeFeed(%q, %q) = %v, want %v", tt.contentType, tt.body, got, tt.want)
		}
	}
}
