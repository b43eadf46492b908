package cot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bububa/atomic-orchestrator/components"
	"github.com/bububa/atomic-orchestrator/components/systemprompt"
)

func newRunContext(t *testing.T, opts ...components.ContextOption) *components.RunContext {
	t.Helper()
	rc, err := components.NewRunContext(3, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), opts...)
	require.NoError(t, err)
	return rc
}

func TestComposeEmbedsContextFields(t *testing.T) {
	g := New(
		WithBackground([]string{"- You are a web research assistant."}),
		WithSteps([]string{"- Use at most ${result_limit} results per search."}),
		WithContextProviders(systemprompt.CurrentDate(), systemprompt.ResultLimit()),
	)
	text, err := g.Compose(newRunContext(t))
	require.NoError(t, err)
	require.Contains(t, text, "# IDENTITY and PURPOSE")
	require.Contains(t, text, "- Use at most 3 results per search.")
	require.Contains(t, text, "# EXTRA INFORMATION AND CONTEXT")
	require.Contains(t, text, "## Current Date")
	require.Contains(t, text, "2024-06-01")
	require.True(t, strings.Index(text, "INTERNAL ASSISTANT STEPS") < strings.Index(text, "OUTPUT INSTRUCTIONS"))
}

func TestComposeIsIdempotent(t *testing.T) {
	g := New(
		WithSteps([]string{"- Today is ${reference_date}, locale ${locale}."}),
		WithContextProviders(systemprompt.CurrentDate(), systemprompt.Field("Locale", "locale", "")),
	)
	rc := newRunContext(t, components.WithFact("locale", "en-US"))
	first, err := g.Compose(rc)
	require.NoError(t, err)
	second, err := g.Compose(rc)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestComposeMissingContextField(t *testing.T) {
	g := New(WithSteps([]string{"- Answer in ${language}."}))
	_, err := g.Compose(newRunContext(t))
	require.Error(t, err)
	require.True(t, errors.Is(err, systemprompt.ErrMissingContextField))
	var missing *systemprompt.MissingContextFieldError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "language", missing.Field)

	g = New(WithContextProviders(systemprompt.Field("Region", "region", "")))
	_, err = g.Compose(newRunContext(t))
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "region", missing.Field)
}

func TestContextProviderRegistry(t *testing.T) {
	g := New(WithContextProviders(systemprompt.CurrentDate()))
	g.AddContextProviders(systemprompt.CurrentDate(), systemprompt.Static("Notes", "none"))
	require.Len(t, g.ContextProviders(), 2)
	p, err := g.ContextProvider("Notes")
	require.NoError(t, err)
	require.Equal(t, "Notes", p.Title())
	g.RemoveContextProviders("Notes")
	_, err = g.ContextProvider("Notes")
	require.Error(t, err)
}

func TestReferences(t *testing.T) {
	require.Equal(t, []string{"result_limit", "reference_date"}, systemprompt.References("${result_limit} by ${reference_date} costs $5"))
}
