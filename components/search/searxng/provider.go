// Package searxng implements search.Provider on top of a SearxNG instance JSON API
package searxng

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/bububa/atomic-orchestrator/components/search"
)

type Category = string

const (
	GeneralCategory     Category = "general"
	NewsCategory        Category = "news"
	SocialMediaCategory Category = "social_media"
)

var defaultEngines = []string{"bing", "duckduckgo", "google", "startpage", "yandex"}

// resultItem represents a single item of the SearxNG response
type resultItem struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// searchResponse represents the entire response from the search engine
type searchResponse struct {
	Query           string       `json:"query"`
	NumberOfResults int          `json:"number_of_results"`
	Results         []resultItem `json:"results"`
}

type Config struct {
	baseURL    string
	language   string
	category   Category
	engines    []string
	rps        float64
	httpClient *http.Client
}

// Provider queries SearxNG
type Provider struct {
	Config
	limiter *rate.Limiter
}

var _ search.Provider = (*Provider)(nil)

func New(opts ...Option) *Provider {
	ret := new(Provider)
	for _, opt := range opts {
		opt(&ret.Config)
	}
	ret.baseURL = strings.TrimRight(ret.baseURL, "/")
	if ret.category == "" {
		ret.category = GeneralCategory
	}
	if len(ret.engines) == 0 {
		ret.engines = defaultEngines
	}
	if ret.httpClient == nil {
		ret.httpClient = search.DefaultHTTPClient()
	}
	ret.limiter = search.NewLimiter(ret.rps)
	return ret
}

func (p *Provider) Kind() search.Kind {
	return search.SearxNG
}

// Search queries the SearxNG instance and returns at most limit results in rank order
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	if err := search.ValidateRequest(query, limit); err != nil {
		return nil, err
	}
	if p.baseURL == "" {
		return nil, search.Unavailable(p.Kind(), 0, errors.New("base url not configured"))
	}
	values := url.Values{}
	values.Set("q", query)
	values.Set("safesearch", "0")
	values.Set("format", "json")
	values.Set("engines", strings.Join(p.engines, ","))
	if p.language != "" {
		values.Set("language", p.language)
	}
	if p.category != "" {
		values.Set("categories", p.category)
	}
	searchURL := fmt.Sprintf("%s/search?%s", p.baseURL, values.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, search.Unavailable(p.Kind(), 0, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	var resp searchResponse
	if err := search.DoJSON(ctx, p.Kind(), p.httpClient, p.limiter, httpReq, &resp); err != nil {
		return nil, err
	}
	results := make([]search.Result, 0, len(resp.Results))
	for _, v := range resp.Results {
		results = append(results, search.Result{
			Title:   strings.TrimSpace(v.Title),
			Snippet: strings.TrimSpace(v.Content),
			URL:     v.URL,
		})
	}
	return search.Truncate(results, limit), nil
}
