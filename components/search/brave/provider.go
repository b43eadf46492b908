// Package brave implements search.Provider with the Brave Search API
package brave

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/bububa/atomic-orchestrator/components/search"
)

const (
	DefaultEndpoint = "https://api.search.brave.com/res/v1/web/search"
	// DefaultRateLimit matches the free plan quota of one request per second
	DefaultRateLimit = 1
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
	rps        float64
	httpClient *http.Client
}

type response struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Provider calls the Brave Search API
type Provider struct {
	Config
	limiter *rate.Limiter
}

var _ search.Provider = (*Provider)(nil)

func New(opts ...Option) *Provider {
	ret := &Provider{
		Config: Config{
			endpoint: DefaultEndpoint,
			rps:      DefaultRateLimit,
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
	return search.Brave
}

func (p *Provider) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	if err := search.ValidateRequest(query, limit); err != nil {
		return nil, err
	}
	if p.apiKey == "" {
		return nil, search.Unavailable(p.Kind(), 0, errors.New("api key not configured"))
	}
	values := url.Values{}
	values.Set("q", query)
	values.Set("count", strconv.Itoa(limit))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return nil, search.Unavailable(p.Kind(), 0, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", p.apiKey)
	var resp response
	if err := search.DoJSON(ctx, p.Kind(), p.httpClient, p.limiter, httpReq, &resp); err != nil {
		return nil, err
	}
	results := make([]search.Result, 0, len(resp.Web.Results))
	for _, v := range resp.Web.Results {
		results = append(results, search.Result{
			Title:   v.Title,
			Snippet: v.Description,
			URL:     v.URL,
		})
	}
	return search.Truncate(results, limit), nil
}
