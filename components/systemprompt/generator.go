package systemprompt

import (
	"fmt"
	"strings"

	"github.com/bububa/atomic-orchestrator/components"
)

// Generator is system prompt generator framework.
// Compose is a pure function of the RunContext: the same context always yields the same text.
type Generator interface {
	// Compose renders the instruction text for a run.
	// It fails with MissingContextFieldError if a referenced fact is absent.
	Compose(rc *components.RunContext) (string, error)
	// ContextProvider retrieves a context provider by name.
	// If the context provider is not found returns not found error
	ContextProvider(title string) (ContextProvider, error)
	// AddContextProviders registers new context providers
	AddContextProviders(providers ...ContextProvider)
	// RemoveContextProviders Unregisters an existing context provider.
	RemoveContextProviders(titles ...string)
}

// Section is a titled block of directive lines
type Section struct {
	Title string
	Lines []string
}

type BaseGenerator struct {
	contextProviders []ContextProvider
}

func (g *BaseGenerator) ContextProviders() []ContextProvider {
	return g.contextProviders
}

// ContextProvider retrieves a context provider by name.
// If the context provider is not found returns not found error
func (g *BaseGenerator) ContextProvider(title string) (ContextProvider, error) {
	for _, p := range g.contextProviders {
		if p.Title() == title {
			return p, nil
		}
	}
	return nil, fmt.Errorf("context provider '%s' not found", title)
}

// AddContextProviders registers new context providers, ignoring duplicated titles
func (g *BaseGenerator) AddContextProviders(providers ...ContextProvider) {
	for _, provider := range providers {
		if _, err := g.ContextProvider(provider.Title()); err != nil {
			g.contextProviders = append(g.contextProviders, provider)
		}
	}
}

// RemoveContextProviders Unregisters an existing context provider.
func (g *BaseGenerator) RemoveContextProviders(titles ...string) {
	mp := make(map[string]struct{}, len(titles))
	for _, v := range titles {
		mp[v] = struct{}{}
	}
	providers := make([]ContextProvider, 0, len(g.contextProviders))
	for _, p := range g.contextProviders {
		if _, found := mp[p.Title()]; found {
			continue
		}
		providers = append(providers, p)
	}
	g.contextProviders = providers
}

// ComposeSections renders the directive sections followed by the context providers
func (g *BaseGenerator) ComposeSections(rc *components.RunContext, sections ...Section) (string, error) {
	var promptParts []string
	for _, section := range sections {
		if len(section.Lines) == 0 {
			continue
		}
		lines, err := ExpandLines(section.Lines, rc)
		if err != nil {
			return "", err
		}
		if section.Title != "" {
			promptParts = append(promptParts, fmt.Sprintf("# %s", section.Title))
		}
		promptParts = append(promptParts, lines...)
		promptParts = append(promptParts, "")
	}
	extra, err := g.composeProviders(rc)
	if err != nil {
		return "", err
	}
	promptParts = append(promptParts, extra...)
	return strings.TrimSpace(strings.Join(promptParts, "\n")), nil
}

func (g *BaseGenerator) composeProviders(rc *components.RunContext) ([]string, error) {
	if len(g.contextProviders) == 0 {
		return nil, nil
	}
	promptParts := make([]string, 0, len(g.contextProviders)*3+1)
	promptParts = append(promptParts, "# EXTRA INFORMATION AND CONTEXT")
	for _, provider := range g.contextProviders {
		info, err := provider.Info(rc)
		if err != nil {
			return nil, err
		}
		if info == "" {
			continue
		}
		promptParts = append(promptParts, fmt.Sprintf("## %s", provider.Title()))
		promptParts = append(promptParts, info)
		promptParts = append(promptParts, "")
	}
	return promptParts, nil
}
