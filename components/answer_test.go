package components

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractAnswer(t *testing.T) {
	require.Nil(t, ExtractAnswer("  "))
	require.JSONEq(t, `{"a":1}`, string(ExtractAnswer(`{"a":1}`)))
	require.JSONEq(t, `{"a":1}`, string(ExtractAnswer("```json\n{\"a\":1}\n```")))
	require.JSONEq(t, `{"a":{"b":2}}`, string(ExtractAnswer(`Here you go: {"a":{"b":2}} hope it helps`)))
	require.Equal(t, "no json here", string(ExtractAnswer("no json here")))
}
