package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/bububa/atomic-orchestrator/components"
	provider "github.com/bububa/atomic-orchestrator/components/search"
	"github.com/bububa/atomic-orchestrator/components/systemprompt"
	"github.com/bububa/atomic-orchestrator/schema"
	"github.com/bububa/atomic-orchestrator/tools"
	websearch "github.com/bububa/atomic-orchestrator/tools/search"
)

const validAnswer = `{"title":"# Topic X","body":"Topic X is well documented [1].","summary_points":"- point one\n- point two"}`

type step func(req *components.ModelRequest) (*components.ModelResponse, error)

// scriptedModel replays one step per call
type scriptedModel struct {
	mu       sync.Mutex
	steps    []step
	requests []*components.ModelRequest
}

func script(steps ...step) *scriptedModel {
	return &scriptedModel{steps: steps}
}

func (m *scriptedModel) Generate(ctx context.Context, req *components.ModelRequest) (*components.ModelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cloned := *req
	m.requests = append(m.requests, &cloned)
	if len(m.steps) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := m.steps[0]
	m.steps = m.steps[1:]
	return next(req)
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func callTools(calls ...components.ToolCall) step {
	return func(*components.ModelRequest) (*components.ModelResponse, error) {
		return &components.ModelResponse{
			ToolCalls:   calls,
			LLMResponse: components.LLMResponse{Usage: &components.LLMUsage{InputTokens: 10, OutputTokens: 2}},
		}, nil
	}
}

func answer(payload string) step {
	return func(*components.ModelRequest) (*components.ModelResponse, error) {
		return &components.ModelResponse{
			Answer:      json.RawMessage(payload),
			LLMResponse: components.LLMResponse{Usage: &components.LLMUsage{InputTokens: 20, OutputTokens: 30}},
		}, nil
	}
}

func searchCall(id string, args string) components.ToolCall {
	return components.NewToolCall(id, websearch.DefaultTitle, args)
}

type fakeProvider struct {
	mu      sync.Mutex
	queries []string
	limits  []int
	delay   time.Duration
	err     error
}

func (p *fakeProvider) Kind() provider.Kind {
	return provider.DuckDuckGo
}

func (p *fakeProvider) Search(ctx context.Context, query string, limit int) ([]provider.Result, error) {
	p.mu.Lock()
	p.queries = append(p.queries, query)
	p.limits = append(p.limits, limit)
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	ret := make([]provider.Result, 0, limit)
	for i := 0; i < limit; i++ {
		ret = append(ret, provider.Result{
			Title:   fmt.Sprintf("%s result %d", query, i+1),
			Snippet: "snippet",
			URL:     fmt.Sprintf("https://example.com/%d", i+1),
		})
	}
	return ret, nil
}

func (p *fakeProvider) searched() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.queries...)
}

func newRunContext(t *testing.T, limit int) *components.RunContext {
	t.Helper()
	rc, err := components.NewRunContext(limit, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return rc
}

func newTestAgent(t *testing.T, model components.Model, p provider.Provider, opts ...Option) *Agent[schema.OutputRecord] {
	t.Helper()
	reg, err := tools.NewRegistry(tools.MustDescriptor(websearch.New(p)))
	require.NoError(t, err)
	opts = append([]Option{WithModel(model), WithRegistry(reg)}, opts...)
	agent, err := NewAgent[schema.OutputRecord](opts...)
	require.NoError(t, err)
	return agent
}

func kinds(messages []components.Message) []components.MessageKind {
	ret := make([]components.MessageKind, 0, len(messages))
	for _, msg := range messages {
		ret = append(ret, msg.Kind())
	}
	return ret
}

func TestRunSearchThenAnswer(t *testing.T) {
	p := new(fakeProvider)
	model := script(
		callTools(searchCall("call_1", `{"query":"topic X"}`)),
		answer(validAnswer),
	)
	agent := newTestAgent(t, model, p)
	out, report, err := agent.RunWithResponse(context.Background(), "Summarize topic X", newRunContext(t, 3))
	require.NoError(t, err)
	require.Equal(t, "# Topic X", out.Title)
	require.Equal(t, "- point one\n- point two", out.SummaryPoints)
	require.Equal(t, 2, report.Turns)
	require.Equal(t, 0, report.Retries)
	require.Equal(t, 1, report.ToolCalls)
	require.EqualValues(t, 30, report.Usage.InputTokens)
	require.EqualValues(t, 32, report.Usage.OutputTokens)
	require.NotEmpty(t, report.RunID)
	require.Equal(t, []int{3}, p.limits)

	require.Equal(t, []components.MessageKind{
		components.UserQueryKind,
		components.ToolRequestKind,
		components.ToolResultKind,
		components.CandidateAnswerKind,
	}, kinds(report.Transcript))

	// the second model call sees the search results
	second := model.requests[1]
	require.Len(t, second.Transcript, 3)
	cb, ok := second.Transcript[2].ToolResult()
	require.True(t, ok)
	require.Equal(t, "call_1", cb.ID)
	require.False(t, cb.IsError)
	var results websearch.Output
	require.NoError(t, json.Unmarshal([]byte(cb.Content), &results))
	require.Len(t, results.Results, 3)

	first := model.requests[0]
	require.Contains(t, first.Instructions, "at most 3 results")
	require.Contains(t, first.Instructions, "2024-06-01")
	require.Len(t, first.Tools, 1)
	require.Equal(t, DefaultOutputName, first.OutputSchema.Name())
}

func TestRunRetriesInvalidAnswer(t *testing.T) {
	model := script(
		answer(`{"title":"# Topic X","body":"text"}`),
		answer(validAnswer),
	)
	agent := newTestAgent(t, model, new(fakeProvider))
	out, report, err := agent.RunWithResponse(context.Background(), "Summarize topic X", newRunContext(t, 3))
	require.NoError(t, err)
	require.Equal(t, "# Topic X", out.Title)
	require.Equal(t, 1, report.Retries)
	require.Equal(t, []components.MessageKind{
		components.UserQueryKind,
		components.CandidateAnswerKind,
		components.CorrectionNoticeKind,
		components.CandidateAnswerKind,
	}, kinds(report.Transcript))
	notice := report.Transcript[2]
	require.True(t, notice.Diagnostics().Has("summary_points"))
	require.Contains(t, notice.Content(), "summary_points")
}

func TestRunExhaustsRetries(t *testing.T) {
	model := script(
		answer(`{"title":"# Topic X"}`),
		answer(`{"title":"# Topic X","body":"text"}`),
		answer(validAnswer),
	)
	var hookErr error
	agent := newTestAgent(t, model, new(fakeProvider), WithMaxRetries(2))
	agent.SetErrorHook(func(ctx context.Context, a *Agent[schema.OutputRecord], report *RunReport, err error) {
		hookErr = err
	})
	out, err := agent.Run(context.Background(), "Summarize topic X", newRunContext(t, 3))
	require.Nil(t, out)
	require.ErrorIs(t, err, ErrExhaustedRetries)
	require.Equal(t, err, hookErr)
	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 2, exhausted.Attempts)
	require.JSONEq(t, `{"title":"# Topic X","body":"text"}`, string(exhausted.LastCandidate))
	require.Equal(t, []string{"summary_points"}, exhausted.Diagnostics.Fields())
	require.Equal(t, 2, model.calls())
}

func TestRunRejectsInvalidToolArguments(t *testing.T) {
	p := new(fakeProvider)
	model := script(
		callTools(searchCall("call_1", `{"query":"topic X"}`), searchCall("call_2", `{"limit":"three"}`)),
		callTools(components.NewToolCall("call_3", "browse", `{}`)),
		callTools(searchCall("call_4", `{"query":"topic X","limit":2}`)),
		answer(validAnswer),
	)
	agent := newTestAgent(t, model, p)
	_, report, err := agent.RunWithResponse(context.Background(), "Summarize topic X", newRunContext(t, 3))
	require.NoError(t, err)
	// no call of a rejected batch reaches the provider
	require.Equal(t, []string{"topic X"}, p.searched())
	require.Equal(t, []int{2}, p.limits)
	require.Equal(t, 2, report.ToolCorrections)
	require.Equal(t, 2, report.Turns)

	notice := report.Transcript[2]
	require.Equal(t, components.CorrectionNoticeKind, notice.Kind())
	rejected := notice.RejectedCalls()
	require.Len(t, rejected, 2)
	require.Equal(t, "call_1", rejected[0].ID)
	require.Equal(t, "call_2", rejected[1].ID)
	require.True(t, rejected[1].IsError)
	require.True(t, notice.Diagnostics().Has("search.query"))

	notice = report.Transcript[4]
	require.Equal(t, components.CorrectionNoticeKind, notice.Kind())
	require.True(t, notice.Diagnostics().Has("browse"))
}

func TestRunExhaustsToolCorrections(t *testing.T) {
	bad := callTools(components.NewToolCall("", "browse", `{}`))
	model := script(bad, bad, bad)
	agent := newTestAgent(t, model, new(fakeProvider), WithMaxToolCorrections(2))
	_, err := agent.Run(context.Background(), "Summarize topic X", newRunContext(t, 3))
	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 0, exhausted.Turns)
	require.True(t, exhausted.Diagnostics.Has("browse"))
	require.Equal(t, exhausted.Diagnostics, exhausted.ToolDiagnostics)
	require.Nil(t, exhausted.LastCandidate)
	require.Equal(t, 3, model.calls())
}

func TestRunExhaustedKeepsCandidateDiagnostics(t *testing.T) {
	model := script(
		answer(`{"title":"# Topic X","body":"text"}`),
		callTools(components.NewToolCall("", "browse", `{}`)),
		callTools(searchCall("", `{"query":"topic X"}`)),
	)
	agent := newTestAgent(t, model, new(fakeProvider), WithMaxTurns(2))
	_, err := agent.Run(context.Background(), "Summarize topic X", newRunContext(t, 3))
	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 2, exhausted.Turns)
	require.JSONEq(t, `{"title":"# Topic X","body":"text"}`, string(exhausted.LastCandidate))
	require.Equal(t, []string{"summary_points"}, exhausted.CandidateDiagnostics.Fields())
	require.Equal(t, exhausted.CandidateDiagnostics, exhausted.Diagnostics)
	require.True(t, exhausted.ToolDiagnostics.Has("browse"))
	require.False(t, exhausted.Diagnostics.Has("browse"))
}

func TestRunToolRequestsTakePriority(t *testing.T) {
	p := new(fakeProvider)
	both := func(*components.ModelRequest) (*components.ModelResponse, error) {
		return &components.ModelResponse{
			ToolCalls: []components.ToolCall{searchCall("call_1", `{"query":"topic X"}`)},
			Answer:    json.RawMessage(validAnswer),
		}, nil
	}
	model := script(both, answer(validAnswer))
	agent := newTestAgent(t, model, p)
	_, report, err := agent.RunWithResponse(context.Background(), "Summarize topic X", newRunContext(t, 3))
	require.NoError(t, err)
	require.Equal(t, []string{"topic X"}, p.searched())
	require.Equal(t, 1, countKind(report.Transcript, components.CandidateAnswerKind))
	require.Equal(t, components.CandidateAnswerKind, report.Transcript[len(report.Transcript)-1].Kind())
}

func countKind(messages []components.Message, kind components.MessageKind) int {
	var n int
	for _, msg := range messages {
		if msg.Kind() == kind {
			n++
		}
	}
	return n
}

func TestRunToolFailureIsSurfacedToModel(t *testing.T) {
	p := &fakeProvider{err: provider.Unavailable(provider.DuckDuckGo, 429, errors.New("rate limited"))}
	model := script(
		callTools(searchCall("call_1", `{"query":"topic X"}`)),
		answer(validAnswer),
	)
	agent := newTestAgent(t, model, p)
	_, report, err := agent.RunWithResponse(context.Background(), "Summarize topic X", newRunContext(t, 3))
	require.NoError(t, err)
	cb, ok := report.Transcript[2].ToolResult()
	require.True(t, ok)
	require.True(t, cb.IsError)
	require.Contains(t, cb.Content, "search provider unavailable")
}

func TestRunToolTimeoutIsRecoverable(t *testing.T) {
	p := &fakeProvider{delay: time.Second}
	model := script(
		callTools(searchCall("call_1", `{"query":"topic X"}`)),
		answer(validAnswer),
	)
	agent := newTestAgent(t, model, p, WithToolTimeout(20*time.Millisecond))
	_, report, err := agent.RunWithResponse(context.Background(), "Summarize topic X", newRunContext(t, 3))
	require.NoError(t, err)
	cb, _ := report.Transcript[2].ToolResult()
	require.True(t, cb.IsError)
	require.Contains(t, cb.Content, "timed out")
}

func TestRunParallelToolResultsKeepRequestOrder(t *testing.T) {
	p := &fakeProvider{delay: 10 * time.Millisecond}
	calls := make([]components.ToolCall, 0, 5)
	for i := 0; i < 5; i++ {
		calls = append(calls, searchCall(fmt.Sprintf("call_%d", i), fmt.Sprintf(`{"query":"q%d","limit":1}`, i)))
	}
	model := script(callTools(calls...), answer(validAnswer))
	agent := newTestAgent(t, model, p, WithMaxParallelTools(5))
	_, report, err := agent.RunWithResponse(context.Background(), "Summarize topic X", newRunContext(t, 3))
	require.NoError(t, err)
	require.Equal(t, 5, report.ToolCalls)
	for i := 0; i < 5; i++ {
		cb, ok := report.Transcript[2+i].ToolResult()
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("call_%d", i), cb.ID)
		require.Contains(t, cb.Content, fmt.Sprintf("q%d result 1", i))
	}
}

func TestRunExhaustsTurns(t *testing.T) {
	steps := make([]step, 0, 4)
	for i := 0; i < 4; i++ {
		steps = append(steps, callTools(searchCall("", `{"query":"again"}`)))
	}
	model := script(steps...)
	agent := newTestAgent(t, model, new(fakeProvider), WithMaxTurns(3))
	_, err := agent.Run(context.Background(), "Summarize topic X", newRunContext(t, 3))
	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Turns)
	require.NotEmpty(t, exhausted.Diagnostics)
	require.Nil(t, exhausted.LastCandidate)
	require.Equal(t, 3, model.calls())
}

func TestRunModelUnavailable(t *testing.T) {
	model := script(func(*components.ModelRequest) (*components.ModelResponse, error) {
		return nil, errors.New("503 service unavailable")
	})
	agent := newTestAgent(t, model, new(fakeProvider))
	_, err := agent.Run(context.Background(), "Summarize topic X", newRunContext(t, 3))
	require.ErrorIs(t, err, ErrModelUnavailable)
	require.ErrorContains(t, err, "503")
}

func TestRunModelTimeoutIsFatal(t *testing.T) {
	slow := components.ModelFunc(func(ctx context.Context, req *components.ModelRequest) (*components.ModelResponse, error) {
		time.Sleep(time.Second)
		return &components.ModelResponse{Answer: json.RawMessage(validAnswer)}, nil
	})
	agent := newTestAgent(t, slow, new(fakeProvider), WithModelTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := agent.Run(context.Background(), "Summarize topic X", newRunContext(t, 3))
	require.ErrorIs(t, err, ErrModelUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRunCancelledDuringToolCall(t *testing.T) {
	p := &fakeProvider{delay: time.Second}
	model := script(callTools(searchCall("call_1", `{"query":"topic X"}`)), answer(validAnswer))
	agent := newTestAgent(t, model, p)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, report, err := agent.RunWithResponse(ctx, "Summarize topic X", newRunContext(t, 3))
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, model.calls())
	// the transcript is left consistent: the request is recorded, no partial results
	require.Equal(t, []components.MessageKind{components.UserQueryKind, components.ToolRequestKind}, kinds(report.Transcript))
}

func TestRunCancelledDuringModelCall(t *testing.T) {
	var calls atomic.Int64
	blocking := components.ModelFunc(func(ctx context.Context, req *components.ModelRequest) (*components.ModelResponse, error) {
		calls.Inc()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	agent := newTestAgent(t, blocking, new(fakeProvider))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, report, err := agent.RunWithResponse(ctx, "Summarize topic X", newRunContext(t, 3))
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrModelUnavailable)
	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, []components.MessageKind{components.UserQueryKind}, kinds(report.Transcript))
}

func TestRunMissingContextField(t *testing.T) {
	model := script(answer(validAnswer))
	g := NewWebSearchPromptGenerator(systemprompt.Field("Locale", "locale", ""))
	agent := newTestAgent(t, model, new(fakeProvider), WithSystemPromptGenerator(g))
	_, err := agent.Run(context.Background(), "Summarize topic X", newRunContext(t, 3))
	require.ErrorIs(t, err, systemprompt.ErrMissingContextField)
	require.Zero(t, model.calls())

	rc, err := components.NewRunContext(3, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), components.WithFact("locale", "en-US"))
	require.NoError(t, err)
	_, err = agent.Run(context.Background(), "Summarize topic X", rc)
	require.NoError(t, err)
	require.Contains(t, model.requests[0].Instructions, "en-US")
}

func TestRunInvalidInput(t *testing.T) {
	agent := newTestAgent(t, script(), new(fakeProvider))
	_, err := agent.Run(context.Background(), "  ", newRunContext(t, 3))
	require.ErrorIs(t, err, ErrEmptyQuery)
	_, err = agent.Run(context.Background(), "q", nil)
	require.ErrorIs(t, err, components.ErrInvalidRunContext)

	_, err = NewAgent[schema.OutputRecord]()
	require.ErrorIs(t, err, ErrMissingModel)
}

func TestConcurrentRunsAreIsolated(t *testing.T) {
	p := new(fakeProvider)
	var started, ended atomic.Int64
	// the model searches for the user query, then answers with the query as title
	model := components.ModelFunc(func(ctx context.Context, req *components.ModelRequest) (*components.ModelResponse, error) {
		query := req.Transcript[0].Text()
		last := req.Transcript[len(req.Transcript)-1]
		if last.Kind() == components.UserQueryKind {
			return &components.ModelResponse{ToolCalls: []components.ToolCall{searchCall("", fmt.Sprintf(`{"query":%q}`, query))}}, nil
		}
		cb, _ := last.ToolResult()
		var out websearch.Output
		if err := json.Unmarshal([]byte(cb.Content), &out); err != nil {
			return nil, err
		}
		record := schema.OutputRecord{Title: "# " + query, Body: out.Results[0].Title, SummaryPoints: fmt.Sprintf("- %d results", len(out.Results))}
		return &components.ModelResponse{Answer: json.RawMessage(schema.Stringify(record))}, nil
	})
	agent := newTestAgent(t, model, p)
	agent.SetStartHook(func(context.Context, *Agent[schema.OutputRecord], string, *components.RunContext) { started.Inc() })
	agent.SetEndHook(func(context.Context, *Agent[schema.OutputRecord], *schema.OutputRecord, *RunReport) { ended.Inc() })

	const runs = 20
	var wg sync.WaitGroup
	errs := make([]error, runs)
	outs := make([]*schema.OutputRecord, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = agent.Run(context.Background(), fmt.Sprintf("query %d", i), newRunContext(t, 1+i%5))
		}(i)
	}
	wg.Wait()
	for i := 0; i < runs; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, fmt.Sprintf("# query %d", i), outs[i].Title)
		require.Equal(t, fmt.Sprintf("query %d result 1", i), outs[i].Body)
		require.Equal(t, fmt.Sprintf("- %d results", 1+i%5), outs[i].SummaryPoints)
	}
	require.EqualValues(t, runs, started.Load())
	require.EqualValues(t, runs, ended.Load())
}
