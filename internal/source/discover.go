// Package source はフィードの購読（取り込み元）の登録と管理を提供する。
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/security"
)

const (
	// UserAgent はフィード取得時に送るUser-Agent。
	UserAgent = "SkillStack/1.0 (+feed importer)"

	discoverTimeout = 10 * time.Second
	maxBodySize     = 5 << 20
)

// Feed はURLから検出・パースしたフィード。
type Feed struct {
	URL     string
	Title   string
	SiteURL string
}

type feedLink struct {
	url  string
	atom bool
}

// Discoverer はURLからフィードを検出し、タイトルを得るために一度パースする。
type Discoverer struct {
	guard  security.URLGuard
	client *http.Client
	parser *gofeed.Parser
}

// NewDiscoverer はDiscovererを生成する。
func NewDiscoverer(guard security.URLGuard) *Discoverer {
	return &Discoverer{
		guard:  guard,
		client: guard.NewSafeClient(discoverTimeout),
		parser: gofeed.NewParser(),
	}
}

// Discover はURLがフィードであればそのまま、HTMLであれば <link rel="alternate"> から
// フィードを探して取得し、パース結果を返す。
func (d *Discoverer) Discover(ctx context.Context, rawURL string) (*Feed, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, model.NewInvalidURLError("URL is required")
	}
	if err := d.guard.ValidateURL(rawURL); err != nil {
		if errors.Is(err, security.ErrBlockedURL) {
			return nil, model.NewSSRFBlockedError()
		}
		return nil, model.NewInvalidURLError(err.Error())
	}

	body, contentType, err := d.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if looksLikeFeed(contentType, body) {
		return d.parse(rawURL, body)
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.Contains(mediaType, "html") {
		return nil, model.NewFeedNotDetectedError(rawURL)
	}
	link := pickFeedLink(findFeedLinks(body, rawURL), rawURL)
	if link == "" {
		return nil, model.NewFeedNotDetectedError(rawURL)
	}
	if err := d.guard.ValidateURL(link); err != nil {
		return nil, model.NewSSRFBlockedError()
	}

	body, _, err = d.get(ctx, link)
	if err != nil {
		return nil, err
	}
	return d.parse(link, body)
}

func (d *Discoverer) get(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.9, */*;q=0.1")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", model.NewFetchFailedError(fmt.Sprintf("status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", model.NewFetchFailedError(err.Error())
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (d *Discoverer) parse(feedURL string, body []byte) (*Feed, error) {
	parsed, err := d.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, model.NewParseFailedError()
	}
	feed := &Feed{URL: feedURL, Title: strings.TrimSpace(parsed.Title), SiteURL: parsed.Link}
	if feed.Title == "" {
		feed.Title = feedURL
	}
	if feed.SiteURL == "" {
		feed.SiteURL = siteRoot(feedURL)
	}
	return feed, nil
}

// looksLikeFeed はContent-Typeと本文の先頭からRSS/Atomかを判定する。
func looksLikeFeed(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	switch strings.ToLower(mediaType) {
	case "application/rss+xml", "application/atom+xml":
		return true
	case "text/xml", "application/xml", "":
	default:
		return false
	}

	head := strings.ToLower(string(body[:min(len(body), 4096)]))
	return strings.Contains(head, "<rss") ||
		strings.Contains(head, "<rdf:rdf") ||
		(strings.Contains(head, "<feed") && strings.Contains(head, "http://www.w3.org/2005/atom"))
}

// findFeedLinks はHTMLの head 内にある RSS/Atom の alternate リンクを文書順に返す。
func findFeedLinks(body []byte, baseURL string) []feedLink {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var links []feedLink
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return links
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "body" {
				return links
			}
			if string(name) != "link" || !hasAttr {
				continue
			}
			var rel, typ, href string
			for more := true; more; {
				var k, v []byte
				k, v, more = z.TagAttr()
				switch strings.ToLower(string(k)) {
				case "rel":
					rel = strings.ToLower(string(v))
				case "type":
					typ = strings.ToLower(string(v))
				case "href":
					href = strings.TrimSpace(string(v))
				}
			}
			if !strings.Contains(rel, "alternate") || href == "" {
				continue
			}
			if typ != "application/rss+xml" && typ != "application/atom+xml" {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			links = append(links, feedLink{url: base.ResolveReference(ref).String(), atom: typ == "application/atom+xml"})
		}
	}
}

// pickFeedLink は同一ホストのリンクを優先し、同点ならAtom、さらに同点なら文書順で選ぶ。
func pickFeedLink(links []feedLink, pageURL string) string {
	host := hostOf(pageURL)
	best, bestScore := "", -1
	for _, l := range links {
		score := 0
		if hostOf(l.url) == host {
			score += 2
		}
		if l.atom {
			score++
		}
		if score > bestScore {
			best, bestScore = l.url, score
		}
	}
	return best
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func siteRoot(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
}
