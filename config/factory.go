package config

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/bububa/atomic-orchestrator/agents"
	"github.com/bububa/atomic-orchestrator/components"
	"github.com/bububa/atomic-orchestrator/components/models/anthropic"
	"github.com/bububa/atomic-orchestrator/components/models/gemini"
	"github.com/bububa/atomic-orchestrator/components/models/openai"
	"github.com/bububa/atomic-orchestrator/components/search"
	"github.com/bububa/atomic-orchestrator/components/search/brave"
	"github.com/bububa/atomic-orchestrator/components/search/duckduckgo"
	"github.com/bububa/atomic-orchestrator/components/search/searxng"
	"github.com/bububa/atomic-orchestrator/components/search/tavily"
	"github.com/bububa/atomic-orchestrator/components/systemprompt"
	"github.com/bububa/atomic-orchestrator/schema"
	"github.com/bububa/atomic-orchestrator/tools"
	"github.com/bububa/atomic-orchestrator/tools/calculator"
	websearch "github.com/bububa/atomic-orchestrator/tools/search"
	"github.com/bububa/atomic-orchestrator/tools/webscraper"
)

// NewSearchProvider builds the single configured search backend
func (c *Config) NewSearchProvider() (search.Provider, error) {
	clt := &http.Client{Timeout: c.Search.Timeout}
	switch c.Search.Provider {
	case search.SearxNG:
		opts := []searxng.Option{
			searxng.WithBaseURL(c.Search.BaseURL),
			searxng.WithRateLimit(c.Search.RateLimit),
			searxng.WithHttpClient(clt),
		}
		if c.Search.Language != "" {
			opts = append(opts, searxng.WithLanguage(c.Search.Language))
		}
		if c.Search.Category != "" {
			opts = append(opts, searxng.WithCategory(c.Search.Category))
		}
		return searxng.New(opts...), nil
	case search.DuckDuckGo:
		opts := []duckduckgo.Option{duckduckgo.WithHttpClient(clt)}
		if c.Search.BaseURL != "" {
			opts = append(opts, duckduckgo.WithEndpoint(c.Search.BaseURL))
		}
		if c.Search.RateLimit > 0 {
			opts = append(opts, duckduckgo.WithRateLimit(c.Search.RateLimit))
		}
		return duckduckgo.New(opts...), nil
	case search.Brave:
		opts := []brave.Option{brave.WithAPIKey(c.Search.APIKey), brave.WithHttpClient(clt)}
		if c.Search.BaseURL != "" {
			opts = append(opts, brave.WithEndpoint(c.Search.BaseURL))
		}
		if c.Search.RateLimit > 0 {
			opts = append(opts, brave.WithRateLimit(c.Search.RateLimit))
		}
		return brave.New(opts...), nil
	case search.Tavily:
		opts := []tavily.Option{
			tavily.WithAPIKey(c.Search.APIKey),
			tavily.WithRateLimit(c.Search.RateLimit),
			tavily.WithHttpClient(clt),
		}
		if c.Search.BaseURL != "" {
			opts = append(opts, tavily.WithEndpoint(c.Search.BaseURL))
		}
		if c.Search.Depth != "" {
			opts = append(opts, tavily.WithDepth(c.Search.Depth))
		}
		return tavily.New(opts...), nil
	}
	return nil, fmt.Errorf("%w: unsupported search.provider %q", ErrInvalidConfig, c.Search.Provider)
}

// NewModel builds the configured text generation capability
func (c *Config) NewModel() (components.Model, error) {
	switch c.Model.Provider {
	case OpenAI:
		var opts []openai.Option
		if c.Model.Temperature > 0 {
			opts = append(opts, openai.WithTemperature(c.Model.Temperature))
		}
		if c.Model.MaxTokens > 0 {
			opts = append(opts, openai.WithMaxTokens(c.Model.MaxTokens))
		}
		if c.Model.JSONObject {
			opts = append(opts, openai.WithJSONObjectFormat())
		}
		return openai.NewFromAPIKey(c.Model.APIKey, c.Model.BaseURL, c.Model.Name, opts...)
	case Anthropic:
		var opts []anthropic.Option
		if c.Model.Temperature > 0 {
			opts = append(opts, anthropic.WithTemperature(c.Model.Temperature))
		}
		if c.Model.MaxTokens > 0 {
			opts = append(opts, anthropic.WithMaxTokens(c.Model.MaxTokens))
		}
		return anthropic.NewFromAPIKey(c.Model.APIKey, c.Model.BaseURL, c.Model.Name, opts...)
	case Gemini:
		var opts []gemini.Option
		if c.Model.Temperature > 0 {
			opts = append(opts, gemini.WithTemperature(c.Model.Temperature))
		}
		if c.Model.MaxTokens > 0 {
			opts = append(opts, gemini.WithMaxTokens(c.Model.MaxTokens))
		}
		return gemini.NewFromAPIKey(context.Background(), c.Model.APIKey, c.Model.BaseURL, c.Model.Name, opts...)
	}
	return nil, fmt.Errorf("%w: unsupported model.provider %q", ErrInvalidConfig, c.Model.Provider)
}

// NewRegistry registers the search tool backed by p and the enabled optional tools
func (c *Config) NewRegistry(p search.Provider) (*tools.Registry, error) {
	reg, err := tools.NewRegistry()
	if err != nil {
		return nil, err
	}
	if err := tools.Register(reg, websearch.New(p)); err != nil {
		return nil, err
	}
	if c.Tools.Calculator {
		if err := tools.Register(reg, calculator.New()); err != nil {
			return nil, err
		}
	}
	if c.Tools.FetchPage {
		opts := []webscraper.Option{webscraper.WithTimeout(c.Agent.ToolTimeout)}
		if n := c.Tools.FetchPageMaxTokens; n > 0 {
			counter, err := webscraper.NewTikTokenCounter(webscraper.DefaultEncoding)
			if err != nil {
				return nil, err
			}
			opts = append(opts, webscraper.WithCounter(counter), webscraper.WithMaxMarkdownLength(n))
		}
		if err := tools.Register(reg, webscraper.New(opts...)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// AgentOptions returns the budget options of the agent section
func (c *Config) AgentOptions() []agents.Option {
	opts := []agents.Option{
		agents.WithName(c.Agent.Name),
		agents.WithMaxTurns(c.Agent.MaxTurns),
		agents.WithMaxRetries(c.Agent.MaxRetries),
		agents.WithToolTimeout(c.Agent.ToolTimeout),
		agents.WithModelTimeout(c.Agent.ModelTimeout),
		agents.WithMaxParallelTools(c.Agent.MaxParallelTools),
	}
	if c.Agent.MaxToolCorrections != nil {
		opts = append(opts, agents.WithMaxToolCorrections(*c.Agent.MaxToolCorrections))
	}
	return opts
}

// NewRunContext builds the per-run context. A zero resultLimit keeps run.result_limit and
// a zero date means today.
func (c *Config) NewRunContext(resultLimit int, date time.Time) (*components.RunContext, error) {
	if resultLimit == 0 {
		resultLimit = c.Run.ResultLimit
	}
	if date.IsZero() {
		date = time.Now()
	}
	return components.NewRunContext(resultLimit, date, components.WithFacts(c.Run.Facts))
}

// NewAgent wires provider, model, registry and prompt into the web search agent
func (c *Config) NewAgent(extra ...agents.Option) (*agents.Agent[schema.OutputRecord], error) {
	provider, err := c.NewSearchProvider()
	if err != nil {
		return nil, err
	}
	model, err := c.NewModel()
	if err != nil {
		return nil, err
	}
	reg, err := c.NewRegistry(provider)
	if err != nil {
		return nil, err
	}
	var providers []systemprompt.ContextProvider
	for _, key := range slices.Sorted(maps.Keys(c.Run.Facts)) {
		providers = append(providers, systemprompt.Field(key, key, ""))
	}
	opts := append([]agents.Option{
		agents.WithModel(model),
		agents.WithRegistry(reg),
		agents.WithSystemPromptGenerator(agents.NewWebSearchPromptGenerator(providers...)),
	}, c.AgentOptions()...)
	return agents.NewAgent[schema.OutputRecord](append(opts, extra...)...)
}
