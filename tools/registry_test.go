package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/bububa/atomic-orchestrator/components"
)

type echoInput struct {
	Text  string `json:"text" jsonschema:"title=text,description=Text to echo." validate:"required"`
	Delay int    `json:"delay,omitempty" jsonschema:"title=delay,description=Delay in milliseconds."`
	Fail  bool   `json:"fail,omitempty" jsonschema:"title=fail,description=Whether to fail."`
}

type echoOutput struct {
	Text string `json:"text"`
}

type echoTool struct {
	Config
	invoked *atomic.Int64
}

func newEchoTool(name string, opts ...Option) *echoTool {
	ret := &echoTool{invoked: atomic.NewInt64(0)}
	for _, opt := range opts {
		opt(&ret.Config)
	}
	ret.SetTitle(name)
	ret.SetDescription("echo the given text")
	return ret
}

func (t *echoTool) Run(ctx context.Context, in *echoInput) (*echoOutput, error) {
	t.invoked.Inc()
	if in.Delay > 0 {
		select {
		case <-time.After(time.Duration(in.Delay) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if in.Fail {
		return nil, errors.New("boom")
	}
	return &echoOutput{Text: strings.ToUpper(in.Text)}, nil
}

func newTestRegistry(t *testing.T, tools ...*echoTool) *Registry {
	t.Helper()
	reg, err := NewRegistry()
	require.NoError(t, err)
	for _, tool := range tools {
		require.NoError(t, Register(reg, tool))
	}
	return reg
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := newTestRegistry(t, newEchoTool("echo"), newEchoTool("shout"))
	err := Register(reg, newEchoTool("echo"))
	require.ErrorIs(t, err, ErrDuplicateTool)
	require.Equal(t, []string{"echo", "shout"}, reg.Names())

	specs := reg.Specs()
	require.Len(t, specs, 2)
	require.Equal(t, "echo", specs[0].Name)
	require.Equal(t, []string{"delay", "fail", "text"}, specs[0].InputSchema.Properties())

	_, err = NewRegistry(MustDescriptor(newEchoTool("a")), MustDescriptor(newEchoTool("a")))
	require.ErrorIs(t, err, ErrDuplicateTool)
}

func TestDispatch(t *testing.T) {
	echo := newEchoTool("echo")
	reg := newTestRegistry(t, echo)

	content, err := reg.Dispatch(context.Background(), "echo", []byte(`{"text":"hi"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"text":"HI"}`, content)

	_, err = reg.Dispatch(context.Background(), "missing", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownTool)

	_, err = reg.Dispatch(context.Background(), "echo", []byte(`{"text":1}`))
	require.ErrorIs(t, err, ErrInvalidArguments)
	var terr *ToolError
	require.ErrorAs(t, err, &terr)
	require.True(t, terr.Diagnostics.Has("text"))

	_, err = reg.Dispatch(context.Background(), "echo", []byte(`{"text":""}`))
	require.ErrorIs(t, err, ErrInvalidArguments)
	_, err = reg.Dispatch(context.Background(), "echo", nil)
	require.ErrorIs(t, err, ErrInvalidArguments)
	require.EqualValues(t, 1, echo.invoked.Load())

	_, err = reg.Dispatch(context.Background(), "echo", []byte(`{"text":"hi","fail":true}`))
	require.ErrorIs(t, err, ErrToolInvocationFailed)
	d, _ := reg.Lookup("echo")
	calls, failures := d.Stats()
	require.EqualValues(t, 2, calls)
	require.EqualValues(t, 1, failures)
}

func TestInvokeTimeout(t *testing.T) {
	reg := newTestRegistry(t, newEchoTool("echo"))
	inv, err := reg.Prepare(components.NewToolCall("", "echo", `{"text":"hi","delay":500}`))
	require.NoError(t, err)
	_, err = reg.Invoke(context.Background(), inv, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrToolTimeout)
}

func TestPrepareAllRejectsWholeBatch(t *testing.T) {
	echo := newEchoTool("echo")
	reg := newTestRegistry(t, echo)
	calls := []components.ToolCall{
		components.NewToolCall("1", "echo", `{"text":"ok"}`),
		components.NewToolCall("2", "nope", `{}`),
		components.NewToolCall("3", "echo", `{"txt":"typo"}`),
	}
	invs, rejected, errs := reg.PrepareAll(calls)
	require.Nil(t, invs)
	require.Len(t, errs, 2)
	require.ErrorIs(t, errs[0], ErrUnknownTool)
	require.ErrorIs(t, errs[1], ErrInvalidArguments)
	require.Len(t, rejected, 3)
	for i, cb := range rejected {
		require.Equal(t, calls[i].ID, cb.ID)
		require.True(t, cb.IsError)
	}
	require.Contains(t, rejected[0].Content, "was not called")
	require.Contains(t, rejected[1].Content, "does not exist")
	require.Contains(t, rejected[2].Content, "text")
	require.Zero(t, echo.invoked.Load())
}

func TestInvokeAllKeepsRequestOrder(t *testing.T) {
	var (
		started = atomic.NewInt64(0)
		ended   = atomic.NewInt64(0)
		failed  = atomic.NewInt64(0)
	)
	echo := newEchoTool("echo",
		WithStartHook(func(context.Context, ITool, any) { started.Inc() }),
		WithEndHook(func(context.Context, ITool, any, any) { ended.Inc() }),
		WithErrorHook(func(context.Context, ITool, any, error) { failed.Inc() }),
	)
	reg := newTestRegistry(t, echo)
	calls := make([]components.ToolCall, 0, 6)
	for i := 0; i < 6; i++ {
		// earlier calls sleep longer so they complete last
		args := fmt.Sprintf(`{"text":"t%d","delay":%d,"fail":%t}`, i, (6-i)*10, i == 4)
		calls = append(calls, components.NewToolCall(fmt.Sprintf("c%d", i), "echo", args))
	}
	invs, rejected, errs := reg.PrepareAll(calls)
	require.Empty(t, rejected)
	require.Empty(t, errs)

	results, err := reg.InvokeAll(context.Background(), invs, time.Second, 3)
	require.NoError(t, err)
	require.Len(t, results, 6)
	for i, cb := range results {
		require.Equal(t, fmt.Sprintf("c%d", i), cb.ID)
		if i == 4 {
			require.True(t, cb.IsError)
			require.Contains(t, cb.Content, "boom")
			continue
		}
		require.False(t, cb.IsError)
		require.JSONEq(t, fmt.Sprintf(`{"text":"T%d"}`, i), cb.Content)
	}
	require.EqualValues(t, 6, started.Load())
	require.EqualValues(t, 5, ended.Load())
	require.EqualValues(t, 1, failed.Load())
}

func TestInvokeAllCancelled(t *testing.T) {
	reg := newTestRegistry(t, newEchoTool("echo"))
	invs, _, _ := reg.PrepareAll([]components.ToolCall{
		components.NewToolCall("", "echo", `{"text":"a","delay":1000}`),
		components.NewToolCall("", "echo", `{"text":"b","delay":1000}`),
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := reg.InvokeAll(ctx, invs, time.Second, 2)
	require.ErrorIs(t, err, context.Canceled)
}
