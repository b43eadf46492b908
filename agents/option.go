package agents

import (
	"time"

	"github.com/bububa/atomic-orchestrator/components"
	"github.com/bububa/atomic-orchestrator/components/systemprompt"
	"github.com/bububa/atomic-orchestrator/tools"
)

type Option func(c *Config)

// WithModel sets the text generation capability
func WithModel(m components.Model) Option {
	return func(c *Config) {
		c.model = m
	}
}

// WithRegistry sets the tools the model may call
func WithRegistry(r *tools.Registry) Option {
	return func(c *Config) {
		c.registry = r
	}
}

func WithSystemPromptGenerator(g systemprompt.Generator) Option {
	return func(c *Config) {
		c.systemPromptGenerator = g
	}
}

func WithName(name string) Option {
	return func(c *Config) {
		c.name = name
	}
}

// WithOutputSchema names and describes the output schema sent to the model
func WithOutputSchema(name string, description string) Option {
	return func(c *Config) {
		c.outputName = name
		c.outputDescription = description
	}
}

// WithMaxTurns bounds model calls that produce an executed tool batch or a candidate answer
func WithMaxTurns(n int) Option {
	return func(c *Config) {
		c.maxTurns = n
	}
}

// WithMaxRetries bounds failed candidate validations. The n-th failure ends the run.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		c.maxRetries = n
	}
}

// WithMaxToolCorrections bounds rejected tool batches. Exceeding it ends the run.
func WithMaxToolCorrections(n int) Option {
	return func(c *Config) {
		c.maxToolCorrections = n
	}
}

func WithToolTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.toolTimeout = d
	}
}

func WithModelTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.modelTimeout = d
	}
}

// WithMaxParallelTools bounds concurrent tool calls of one model turn
func WithMaxParallelTools(n int) Option {
	return func(c *Config) {
		c.maxParallelTools = n
	}
}
