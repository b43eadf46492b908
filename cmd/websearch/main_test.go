package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bububa/atomic-orchestrator/agents"
	"github.com/bububa/atomic-orchestrator/components"
	"github.com/bububa/atomic-orchestrator/config"
	"github.com/bububa/atomic-orchestrator/schema"
)

func newSearxngServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"query": r.URL.Query().Get("q"),
			"results": []map[string]string{
				{"title": "Go 1.24 release notes", "url": "https://go.dev/doc/go1.24", "content": "Generic type aliases"},
				{"title": "Go blog", "url": "https://go.dev/blog/go1.24", "content": "Swiss tables"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, searxngURL string) string {
	t.Helper()
	content := fmt.Sprintf(`
model:
  name: scripted
  api_key: unused
search:
  provider: searxng
  base_url: %s
tools:
  calculator: true
`, searxngURL)
	path := filepath.Join(t.TempDir(), "websearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// scriptedFactory searches once and then answers from the first result
func scriptedFactory(cfg *config.Config) (*agents.Agent[schema.OutputRecord], error) {
	p, err := cfg.NewSearchProvider()
	if err != nil {
		return nil, err
	}
	reg, err := cfg.NewRegistry(p)
	if err != nil {
		return nil, err
	}
	model := components.ModelFunc(func(ctx context.Context, req *components.ModelRequest) (*components.ModelResponse, error) {
		last := req.Transcript[len(req.Transcript)-1]
		if last.Kind() == components.UserQueryKind {
			return &components.ModelResponse{ToolCalls: []components.ToolCall{
				components.NewToolCall("call_1", "search", `{"query":"go 1.24"}`),
			}}, nil
		}
		return &components.ModelResponse{Answer: json.RawMessage(
			`{"title":"# Go 1.24","body":"Go 1.24 adds generic type aliases (https://go.dev/doc/go1.24).","summary_points":"- generic type aliases"}`,
		)}, nil
	})
	opts := append([]agents.Option{
		agents.WithModel(model),
		agents.WithRegistry(reg),
	}, cfg.AgentOptions()...)
	return agents.NewAgent[schema.OutputRecord](opts...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(scriptedFactory)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRunPrintsMarkdown(t *testing.T) {
	path := writeConfig(t, newSearxngServer(t).URL)
	out, err := execute(t, "run", "What is new in Go 1.24?", "--config", path, "--date", "2025-02-11")
	require.NoError(t, err)
	require.Contains(t, out, "# Go 1.24")
	require.Contains(t, out, "## Summary")
	require.Contains(t, out, "- generic type aliases")
}

func TestRunPrintsJSON(t *testing.T) {
	path := writeConfig(t, newSearxngServer(t).URL)
	out, err := execute(t, "run", "What", "is", "new?", "-c", path, "--json", "-n", "2")
	require.NoError(t, err)
	var got struct {
		Answer schema.OutputRecord `json:"answer"`
		Report agents.RunReport    `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "# Go 1.24", got.Answer.Title)
	require.Equal(t, 2, got.Report.Turns)
	require.Equal(t, 1, got.Report.ToolCalls)
	require.Empty(t, got.Report.Transcript)
	require.NotEmpty(t, got.Report.RunID)
}

func TestRunRejectsInvalidDate(t *testing.T) {
	path := writeConfig(t, newSearxngServer(t).URL)
	_, err := execute(t, "run", "q", "--config", path, "--date", "yesterday")
	require.ErrorContains(t, err, "invalid --date")
}

func TestRunRequiresQuery(t *testing.T) {
	path := writeConfig(t, newSearxngServer(t).URL)
	_, err := execute(t, "run", "--config", path)
	require.Error(t, err)
}

func TestRunMissingConfig(t *testing.T) {
	_, err := execute(t, "run", "q", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestToolsListsSchemas(t *testing.T) {
	path := writeConfig(t, newSearxngServer(t).URL)
	out, err := execute(t, "tools", "--config", path)
	require.NoError(t, err)
	require.Contains(t, out, "search: ")
	require.Contains(t, out, "calculator: ")
	require.Contains(t, out, `"query"`)
	require.Contains(t, out, `"expression"`)
}
