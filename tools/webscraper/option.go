package webscraper

import (
	"net/http"
	"time"

	"github.com/bububa/atomic-orchestrator/tools"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultAccept    = "text/html,application/xhtml+xml,application/xml;"
)

type Option func(*Config)

func WithUserAgent(ua string) Option {
	return func(c *Config) {
		c.userAgent = ua
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.timeout = timeout
	}
}

// WithMaxContentLength limits the number of bytes read from the page
func WithMaxContentLength(l int64) Option {
	return func(c *Config) {
		c.maxContentLength = l
	}
}

// WithMaxMarkdownLength truncates the converted markdown to l counter units, runes by default
func WithMaxMarkdownLength(l int) Option {
	return func(c *Config) {
		c.maxMarkdownLength = l
	}
}

// WithCounter sets the unit of the markdown length limit
func WithCounter(counter Counter) Option {
	return func(c *Config) {
		c.counter = counter
	}
}

func WithHttpClient(clt *http.Client) Option {
	return func(c *Config) {
		c.httpClient = clt
	}
}

// WithToolOptions applies generic tool options such as title and hooks
func WithToolOptions(opts ...tools.Option) Option {
	return func(c *Config) {
		for _, opt := range opts {
			opt(&c.Config)
		}
	}
}
