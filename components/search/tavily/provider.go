// Package tavily implements search.Provider with the Tavily search API
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/bububa/atomic-orchestrator/components/search"
)

const DefaultEndpoint = "https://api.tavily.com/search"

type Depth = string

const (
	BasicDepth    Depth = "basic"
	AdvancedDepth Depth = "advanced"
)

type Option func(*Config)

func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.apiKey = key
	}
}

func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.endpoint = endpoint
	}
}

func WithDepth(depth Depth) Option {
	return func(c *Config) {
		c.depth = depth
	}
}

func WithRateLimit(rps float64) Option {
	return func(c *Config) {
		c.rps = rps
	}
}

func WithHttpClient(clt *http.Client) Option {
	return func(c *Config) {
		c.httpClient = clt
	}
}

type Config struct {
	apiKey     string
	endpoint   string
	depth      Depth
	rps        float64
	httpClient *http.Client
}

type request struct {
	Query       string `json:"query"`
	APIKey      string `json:"api_key"`
	SearchDepth Depth  `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type response struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Provider calls the Tavily API
type Provider struct {
	Config
	limiter *rate.Limiter
}

var _ search.Provider = (*Provider)(nil)

func New(opts ...Option) *Provider {
	ret := &Provider{
		Config: Config{
			endpoint: DefaultEndpoint,
			depth:    BasicDepth,
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
	return search.Tavily
}

func (p *Provider) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	if err := search.ValidateRequest(query, limit); err != nil {
		return nil, err
	}
	if p.apiKey == "" {
		return nil, search.Unavailable(p.Kind(), 0, errors.New("api key not configured"))
	}
	body, err := json.Marshal(request{
		Query:       query,
		APIKey:      p.apiKey,
		SearchDepth: p.depth,
		MaxResults:  limit,
	})
	if err != nil {
		return nil, search.Unavailable(p.Kind(), 0, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, search.Unavailable(p.Kind(), 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	var resp response
	if err := search.DoJSON(ctx, p.Kind(), p.httpClient, p.limiter, httpReq, &resp); err != nil {
		return nil, err
	}
	results := make([]search.Result, 0, len(resp.Results))
	for _, v := range resp.Results {
		results = append(results, search.Result{
			Title:   v.Title,
			Snippet: v.Content,
			URL:     v.URL,
		})
	}
	return search.Truncate(results, limit), nil
}
