package systemprompt

import (
	"fmt"

	"github.com/bububa/atomic-orchestrator/components"
)

// ContextProvider is an interface that defines the title and info of a context provider
type ContextProvider interface {
	Title() string
	// Info renders the provider content for a run
	Info(rc *components.RunContext) (string, error)
}

// FieldProvider renders a single RunContext fact
type FieldProvider struct {
	title  string
	key    string
	format string
}

var _ ContextProvider = (*FieldProvider)(nil)

// Field returns a provider rendering the fact key with format, "%s" when format is empty
func Field(title string, key string, format string) *FieldProvider {
	if format == "" {
		format = "%s"
	}
	return &FieldProvider{
		title:  title,
		key:    key,
		format: format,
	}
}

func (p *FieldProvider) Title() string {
	return p.title
}

// Key returns the referenced fact key
func (p *FieldProvider) Key() string {
	return p.key
}

func (p *FieldProvider) Info(rc *components.RunContext) (string, error) {
	v, ok := rc.Lookup(p.key)
	if !ok {
		return "", &MissingContextFieldError{Field: p.key}
	}
	return fmt.Sprintf(p.format, v), nil
}

// StaticProvider renders a fixed text
type StaticProvider struct {
	title string
	info  string
}

var _ ContextProvider = (*StaticProvider)(nil)

// Static returns a provider with fixed content. ${key} placeholders are still expanded.
func Static(title string, info string) *StaticProvider {
	return &StaticProvider{title: title, info: info}
}

func (p *StaticProvider) Title() string {
	return p.title
}

func (p *StaticProvider) Info(rc *components.RunContext) (string, error) {
	return Expand(p.info, rc)
}

// CurrentDate renders the run reference date
func CurrentDate() *FieldProvider {
	return Field("Current Date", components.ReferenceDateKey, "The current date in the format YYYY-MM-DD is %s.")
}

// ResultLimit renders the run result budget
func ResultLimit() *FieldProvider {
	return Field("Search Result Limit", components.ResultLimitKey, "Request at most %s results per search call.")
}
