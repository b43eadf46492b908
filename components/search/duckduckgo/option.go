package duckduckgo

import "net/http"

type Option func(*Config)

// WithEndpoint overrides the lite HTML endpoint
func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.endpoint = endpoint
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Config) {
		c.userAgent = ua
	}
}

// WithRateLimit limits outgoing requests to rps per second
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
