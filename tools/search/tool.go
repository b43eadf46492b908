// Package search exposes a search.Provider to the model as the "search" tool
package search

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bububa/atomic-orchestrator/components"
	provider "github.com/bububa/atomic-orchestrator/components/search"
	"github.com/bububa/atomic-orchestrator/tools"
)

const (
	DefaultTitle       = "search"
	DefaultDescription = "Search the web for information and news. Returns a ranked list of results with a title and a short snippet and the source URL."
	// DefaultLimit applies when neither the call nor the run context sets a limit
	DefaultLimit = 5
)

// Input Schema for input to the web search tool
type Input struct {
	// Query the search query
	Query string `json:"query" jsonschema:"title=query,description=The search query.,minLength=1" validate:"required,notblank"`
	// Limit maximum number of results
	Limit int `json:"limit,omitempty" jsonschema:"title=limit,description=Maximum number of results to return. Defaults to the result limit of the run.,minimum=1,maximum=20"`
}

func NewInput(query string, limit int) *Input {
	return &Input{
		Query: query,
		Limit: limit,
	}
}

func (s Input) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// Output represents the output of the search tool
type Output struct {
	// Results List of search result items in rank order
	Results []provider.Result `json:"results" jsonschema:"title=results,description=List of search result items"`
}

func (s Output) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// Tool searches the web with the configured provider
type Tool struct {
	tools.Config
	provider provider.Provider
}

var _ tools.Tool[Input, Output] = (*Tool)(nil)

func New(p provider.Provider, opts ...tools.Option) *Tool {
	ret := &Tool{provider: p}
	for _, opt := range opts {
		opt(&ret.Config)
	}
	if ret.Title() == "" {
		ret.SetTitle(DefaultTitle)
	}
	if ret.Description() == "" {
		ret.SetDescription(DefaultDescription)
	}
	return ret
}

// Provider returns the backing search provider
func (t *Tool) Provider() provider.Provider {
	return t.provider
}

// Run searches for input.Query. When input.Limit is zero the result_limit of the
// run context carried by ctx is used.
func (t *Tool) Run(ctx context.Context, input *Input) (*Output, error) {
	if t.provider == nil {
		return nil, provider.Unavailable("", 0, errors.New("no search provider configured"))
	}
	limit := input.Limit
	if limit == 0 {
		limit = DefaultLimit
		if rc, ok := components.RunContextFrom(ctx); ok {
			limit = rc.ResultLimit()
		}
	}
	limit = min(limit, provider.MaxLimit)
	results, err := t.provider.Search(ctx, input.Query, limit)
	if err != nil {
		return nil, err
	}
	return &Output{Results: results}, nil
}
