// Package duckduckgo implements search.Provider by scraping the DuckDuckGo lite HTML page.
// No API key is required.
package duckduckgo

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/bububa/atomic-orchestrator/components/search"
)

const (
	DefaultEndpoint  = "https://lite.duckduckgo.com/lite/"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// DefaultRateLimit is one query per second
	DefaultRateLimit = 1
)

type Config struct {
	endpoint   string
	userAgent  string
	rps        float64
	httpClient *http.Client
}

// Provider scrapes DuckDuckGo lite
type Provider struct {
	Config
	limiter *rate.Limiter
}

var _ search.Provider = (*Provider)(nil)

func New(opts ...Option) *Provider {
	ret := &Provider{
		Config: Config{
			endpoint:  DefaultEndpoint,
			userAgent: DefaultUserAgent,
			rps:       DefaultRateLimit,
		},
	}
	for _, opt := range opts {
		opt(&ret.Config)
	}
	if ret.httpClient == nil {
		ret.httpClient = search.DefaultHTTPClient()
	}
	ret.limiter = search.NewLimiter(ret.rps)
	return ret
}

func (p *Provider) Kind() search.Kind {
	return search.DuckDuckGo
}

// Search posts the query form and parses result links and snippets from the page
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	if err := search.ValidateRequest(query, limit); err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("q", query)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, search.Unavailable(p.Kind(), 0, err)
	}
	httpReq.Header.Set("User-Agent", p.userAgent)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := search.Do(ctx, p.Kind(), p.httpClient, p.limiter, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	results, err := parseResults(resp.Body)
	if err != nil {
		return nil, search.Unavailable(p.Kind(), resp.StatusCode, err)
	}
	return search.Truncate(results, limit), nil
}

// parseResults extracts links with class result-link and pairs them with the
// result-snippet cells in document order
func parseResults(r io.Reader) ([]search.Result, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	var snippets []string
	doc.Find("td.result-snippet").Each(func(_ int, s *goquery.Selection) {
		snippets = append(snippets, normalizeSpace(s.Text()))
	})
	var results []search.Result
	doc.Find("a.result-link").Each(func(idx int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		item := search.Result{
			Title: normalizeSpace(s.Text()),
			URL:   resolveLink(href),
		}
		if idx < len(snippets) {
			item.Snippet = snippets[idx]
		}
		results = append(results, item)
	})
	return results, nil
}

// resolveLink unwraps DuckDuckGo redirect links of the form //duckduckgo.com/l/?uddg=<target>
func resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" && strings.HasSuffix(u.Host, "duckduckgo.com") {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return href
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
