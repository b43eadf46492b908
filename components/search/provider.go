// Package search defines the search provider capability used by the search tool
// and its interchangeable backends.
//
// Available providers:
//
//   - searxng: self-hosted SearxNG JSON API
//   - duckduckgo: free, no API key required (scrapes lite.duckduckgo.com)
//   - brave: Brave Search API, requires an API key
//   - tavily: Tavily API, requires an API key
//
// Exactly one provider is selected at configuration time and used for the whole run.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxLimit is the largest number of results a single search may request
const MaxLimit = 20

var (
	// ErrProviderUnavailable is returned for any provider failure (auth, rate limit, network)
	ErrProviderUnavailable = errors.New("search provider unavailable")
	// ErrInvalidLimit is returned when the requested limit is out of bounds
	ErrInvalidLimit = errors.New("invalid search limit")
	// ErrEmptyQuery is returned for blank queries
	ErrEmptyQuery = errors.New("search query is empty")
)

// Kind enumerates the supported providers
type Kind string

const (
	SearxNG    Kind = "searxng"
	DuckDuckGo Kind = "duckduckgo"
	Brave      Kind = "brave"
	Tavily     Kind = "tavily"
)

// Kinds returns every supported provider kind
func Kinds() []Kind {
	return []Kind{SearxNG, DuckDuckGo, Brave, Tavily}
}

// Valid reports whether k names a supported provider
func (k Kind) Valid() bool {
	for _, v := range Kinds() {
		if v == k {
			return true
		}
	}
	return false
}

// Result is a single ranked search hit
type Result struct {
	// Title The title of the search result
	Title string `json:"title" jsonschema:"title=title,description=The title of the search result"`
	// Snippet The content snippet of the search result
	Snippet string `json:"snippet" jsonschema:"title=snippet,description=The content snippet of the search result"`
	// URL The URL of the search result
	URL string `json:"source_url" jsonschema:"title=source_url,description=The URL of the search result"`
}

// Provider executes a query and returns at most limit results in rank order
type Provider interface {
	Kind() Kind
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// ValidateRequest checks query and limit before a provider is called
func ValidateRequest(query string, limit int) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	if limit <= 0 || limit > MaxLimit {
		return fmt.Errorf("%w: %d is not within 1..%d", ErrInvalidLimit, limit, MaxLimit)
	}
	return nil
}

// ProviderError wraps a provider failure. It always matches ErrProviderUnavailable.
type ProviderError struct {
	Provider   Kind
	StatusCode int
	Err        error
}

// Unavailable wraps err as a ProviderError
func Unavailable(kind Kind, statusCode int, err error) *ProviderError {
	return &ProviderError{Provider: kind, StatusCode: statusCode, Err: err}
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrProviderUnavailable.Error(), e.Provider)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderUnavailable
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Truncate drops incomplete results and keeps at most limit entries
func Truncate(results []Result, limit int) []Result {
	ret := make([]Result, 0, min(len(results), limit))
	for _, v := range results {
		if len(ret) >= limit {
			break
		}
		if strings.TrimSpace(v.Title) == "" || strings.TrimSpace(v.URL) == "" {
			continue
		}
		ret = append(ret, v)
	}
	return ret
}
