package crispe

import (
	"github.com/bububa/atomic-orchestrator/components"
	"github.com/bububa/atomic-orchestrator/components/systemprompt"
)

// Generator is CRISPE system prompt generator
type Generator struct {
	systemprompt.BaseGenerator
	// capacities Capacity and Role
	capacities []string
	// background agent role background
	background []string
	// statements represents the task of the agent
	statements []string
	// personalities represents the response style
	personalities []string
	// experiments represents the suggested questions by ai for user to choose for better response if needed
	experiments []string
}

var _ systemprompt.Generator = (*Generator)(nil)

// New returns a new system prompt Generator
func New(options ...Option) *Generator {
	ret := new(Generator)
	for _, opt := range options {
		opt(ret)
	}
	if len(ret.background) == 0 {
		ret.background = []string{"- This is a conversation with a helpful and friendly AI assistant."}
	}
	ret.personalities = append(ret.personalities, "- Always respond using the proper JSON schema.")
	if len(ret.ContextProviders()) > 0 {
		ret.personalities = append(ret.personalities, "- Always use the available additional information and context to enhance the response.")
	}
	return ret
}

func (g *Generator) Compose(rc *components.RunContext) (string, error) {
	return g.ComposeSections(rc,
		systemprompt.Section{Title: "CAPACITY and ROLE", Lines: g.capacities},
		systemprompt.Section{Title: "INSIGHT and PURPOSE", Lines: g.background},
		systemprompt.Section{Title: "STATEMENT and TASK", Lines: g.statements},
		systemprompt.Section{Title: "PERSONALITY and OUTPUT INSTRUCTIONS", Lines: g.personalities},
		systemprompt.Section{Title: "INSTRUCTIONS for FOLLOWUP QUESTIONS", Lines: g.experiments},
	)
}
