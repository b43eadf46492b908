// Package config loads the YAML configuration of the web search agent and builds
// the configured search provider, model, tool registry and agent.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bububa/atomic-orchestrator/agents"
	"github.com/bububa/atomic-orchestrator/components/search"
	websearch "github.com/bububa/atomic-orchestrator/tools/search"
)

// ErrInvalidConfig is matched by every validation failure
var ErrInvalidConfig = errors.New("invalid config")

type ModelProvider string

const (
	OpenAI    ModelProvider = "openai"
	Anthropic ModelProvider = "anthropic"
	Gemini    ModelProvider = "gemini"
)

// Config is the process configuration
type Config struct {
	Agent  AgentConfig  `yaml:"agent"`
	Run    RunConfig    `yaml:"run"`
	Model  ModelConfig  `yaml:"model"`
	Search SearchConfig `yaml:"search"`
	Tools  ToolsConfig  `yaml:"tools"`
}

// AgentConfig holds the loop budgets
type AgentConfig struct {
	Name               string        `yaml:"name"`
	MaxTurns           int           `yaml:"max_turns"`
	MaxRetries         int           `yaml:"max_retries"`
	MaxToolCorrections *int          `yaml:"max_tool_corrections"`
	ToolTimeout        time.Duration `yaml:"tool_timeout"`
	ModelTimeout       time.Duration `yaml:"model_timeout"`
	MaxParallelTools   int           `yaml:"max_parallel_tools"`
}

// RunConfig holds the defaults of the per-run context
type RunConfig struct {
	ResultLimit int `yaml:"result_limit"`
	// Facts are extra RunContext facts available to the prompt
	Facts map[string]string `yaml:"facts"`
}

type ModelConfig struct {
	Provider    ModelProvider `yaml:"provider"`
	Name        string        `yaml:"name"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	// JSONObject asks OpenAI compatible servers for a plain JSON object answer
	JSONObject bool `yaml:"json_object"`
}

type SearchConfig struct {
	Provider  search.Kind   `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Language  string        `yaml:"language"`
	Category  string        `yaml:"category"`
	Depth     string        `yaml:"depth"`
	RateLimit float64       `yaml:"rate_limit"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ToolsConfig enables the optional lookup tools. The search tool is always registered.
type ToolsConfig struct {
	Calculator bool `yaml:"calculator"`
	FetchPage  bool `yaml:"fetch_page"`
	// FetchPageMaxTokens bounds fetch_page content in cl100k_base tokens instead of runes
	FetchPageMaxTokens int `yaml:"fetch_page_max_tokens"`
}

// Default returns a Config with every default applied
func Default() *Config {
	c := new(Config)
	c.ApplyDefaults()
	return c
}

// Load reads, expands, defaults and validates the YAML file at path
func Load(path string) (*Config, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(bs)
}

// Parse decodes YAML bytes. Unknown keys are rejected.
func Parse(bs []byte) (*Config, error) {
	c := new(Config)
	dec := yaml.NewDecoder(bytes.NewReader(bs))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.ExpandEnv()
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ExpandEnv replaces ${VAR} references in credential and endpoint fields
func (c *Config) ExpandEnv() {
	c.Model.APIKey = os.ExpandEnv(c.Model.APIKey)
	c.Model.BaseURL = os.ExpandEnv(c.Model.BaseURL)
	c.Search.APIKey = os.ExpandEnv(c.Search.APIKey)
	c.Search.BaseURL = os.ExpandEnv(c.Search.BaseURL)
}

func (c *Config) ApplyDefaults() {
	if c.Agent.Name == "" {
		c.Agent.Name = "websearch"
	}
	if c.Agent.MaxTurns == 0 {
		c.Agent.MaxTurns = agents.DefaultMaxTurns
	}
	if c.Agent.MaxRetries == 0 {
		c.Agent.MaxRetries = agents.DefaultMaxRetries
	}
	if c.Agent.MaxToolCorrections == nil {
		v := agents.DefaultMaxToolCorrections
		c.Agent.MaxToolCorrections = &v
	}
	if c.Agent.ToolTimeout == 0 {
		c.Agent.ToolTimeout = agents.DefaultToolTimeout
	}
	if c.Agent.ModelTimeout == 0 {
		c.Agent.ModelTimeout = agents.DefaultModelTimeout
	}
	if c.Agent.MaxParallelTools == 0 {
		c.Agent.MaxParallelTools = agents.DefaultMaxParallelTools
	}
	if c.Run.ResultLimit == 0 {
		c.Run.ResultLimit = websearch.DefaultLimit
	}
	if c.Model.Provider == "" {
		c.Model.Provider = OpenAI
	}
	if c.Search.Provider == "" {
		c.Search.Provider = search.DuckDuckGo
	}
	if c.Search.Timeout == 0 {
		c.Search.Timeout = search.DefaultTimeout
	}
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}
	if c.Agent.MaxTurns < 0 {
		invalid("agent.max_turns must be positive")
	}
	if c.Agent.MaxRetries < 0 {
		invalid("agent.max_retries must be positive")
	}
	if c.Agent.MaxToolCorrections != nil && *c.Agent.MaxToolCorrections < 0 {
		invalid("agent.max_tool_corrections must not be negative")
	}
	if c.Agent.ToolTimeout < 0 || c.Agent.ModelTimeout < 0 {
		invalid("agent timeouts must not be negative")
	}
	if c.Run.ResultLimit < 1 || c.Run.ResultLimit > search.MaxLimit {
		invalid("run.result_limit must be within 1..%d", search.MaxLimit)
	}
	switch c.Model.Provider {
	case OpenAI, Anthropic, Gemini:
	default:
		invalid("unsupported model.provider %q", c.Model.Provider)
	}
	if c.Model.Name == "" {
		invalid("model.name is required")
	}
	if !c.Search.Provider.Valid() {
		invalid("unsupported search.provider %q", c.Search.Provider)
	}
	switch c.Search.Provider {
	case search.SearxNG:
		if c.Search.BaseURL == "" {
			invalid("search.base_url is required for searxng")
		}
	case search.Brave, search.Tavily:
		if c.Search.APIKey == "" {
			invalid("search.api_key is required for %s", c.Search.Provider)
		}
	}
	if c.Search.RateLimit < 0 {
		invalid("search.rate_limit must not be negative")
	}
	if c.Tools.FetchPageMaxTokens < 0 {
		invalid("tools.fetch_page_max_tokens must not be negative")
	}
	return errors.Join(errs...)
}
