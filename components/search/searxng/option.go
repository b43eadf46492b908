package searxng

import "net/http"

type Option func(*Config)

func WithBaseURL(baseURL string) Option {
	return func(c *Config) {
		c.baseURL = baseURL
	}
}

func WithLanguage(lang string) Option {
	return func(c *Config) {
		c.language = lang
	}
}

func WithCategory(category Category) Option {
	return func(c *Config) {
		c.category = category
	}
}

func WithEngines(engines ...string) Option {
	return func(c *Config) {
		c.engines = engines
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
