package simple

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bububa/atomic-orchestrator/components"
	"github.com/bububa/atomic-orchestrator/components/systemprompt"
)

func TestCompose(t *testing.T) {
	rc, err := components.NewRunContext(4, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	g := New("Answer with at most ${result_limit} sources.", WithContextProviders(systemprompt.CurrentDate()))
	text, err := g.Compose(rc)
	require.NoError(t, err)
	require.Equal(t, "Answer with at most 4 sources.\n\n# EXTRA INFORMATION AND CONTEXT\n## Current Date\nThe current date in the format YYYY-MM-DD is 2024-06-01.", text)
}
