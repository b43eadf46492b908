package crispe

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bububa/atomic-orchestrator/components"
	"github.com/bububa/atomic-orchestrator/components/systemprompt"
)

func TestComposeSectionOrder(t *testing.T) {
	rc, err := components.NewRunContext(2, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	g := New(
		WithCapacities([]string{"- You are a research analyst."}),
		WithStatements([]string{"- Search at most ${result_limit} results at a time."}),
		WithPersonalities([]string{"- Be concise."}),
	)
	text, err := g.Compose(rc)
	require.NoError(t, err)
	require.Contains(t, text, "- Search at most 2 results at a time.")
	require.Contains(t, text, "INSIGHT and PURPOSE")
	require.Contains(t, text, "- This is a conversation with a helpful and friendly AI assistant.")
	require.Less(t, strings.Index(text, "CAPACITY and ROLE"), strings.Index(text, "INSIGHT and PURPOSE"))
	require.Less(t, strings.Index(text, "INSIGHT and PURPOSE"), strings.Index(text, "STATEMENT and TASK"))

	g.AddContextProviders(systemprompt.Field("Audience", "audience", ""))
	_, err = g.Compose(rc)
	require.ErrorIs(t, err, systemprompt.ErrMissingContextField)
}
