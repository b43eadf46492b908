// Package agents implements the orchestration loop driving a model against a tool
// registry until it produces an answer that validates against the output schema.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/bububa/atomic-orchestrator/components"
	"github.com/bububa/atomic-orchestrator/components/systemprompt"
	"github.com/bububa/atomic-orchestrator/schema"
	"github.com/bububa/atomic-orchestrator/tools"
)

const (
	DefaultMaxTurns           = 8
	DefaultMaxRetries         = 3
	DefaultMaxToolCorrections = 3
	DefaultToolTimeout        = 15 * time.Second
	DefaultModelTimeout       = 60 * time.Second
	DefaultMaxParallelTools   = 4
	DefaultOutputName         = "output_record"
	DefaultOutputDescription  = "The final structured answer."
)

// Config represents general agents configuration. It is read only once the agent is built.
type Config struct {
	// model the text generation capability
	model components.Model
	// registry the tools the model may call
	registry *tools.Registry
	//	systemPromptGenerator Component for generating system prompts.
	systemPromptGenerator systemprompt.Generator
	// name is Agent name presentation
	name               string
	outputName         string
	outputDescription  string
	maxTurns           int
	maxRetries         int
	maxToolCorrections int
	toolTimeout        time.Duration
	modelTimeout       time.Duration
	maxParallelTools   int
}

// RunReport describes how a run went. It is returned even when the run fails.
type RunReport struct {
	RunID string `json:"run_id"`
	// Turns model calls that produced an executed tool batch or a candidate answer
	Turns int `json:"turns"`
	// Retries candidate answers that failed validation
	Retries int `json:"retries"`
	// ToolCorrections rejected tool batches
	ToolCorrections int `json:"tool_corrections"`
	// ToolCalls executed tool calls
	ToolCalls int                  `json:"tool_calls"`
	Usage     *components.LLMUsage `json:"usage,omitempty"`
	// Transcript is the full record of the run
	Transcript []components.Message `json:"transcript,omitempty"`
}

// Agent drives the model against the tool registry until it emits an answer that
// validates as O. An Agent holds no per-run state and may serve concurrent runs.
type Agent[O any] struct {
	Config
	validator *schema.Validator[O]
	startHook func(context.Context, *Agent[O], string, *components.RunContext)
	endHook   func(context.Context, *Agent[O], *O, *RunReport)
	errorHook func(context.Context, *Agent[O], *RunReport, error)
}

// NewAgent initializes the Agent
func NewAgent[O any](options ...Option) (*Agent[O], error) {
	ret := &Agent[O]{
		Config: Config{
			name:               "agent",
			outputName:         DefaultOutputName,
			outputDescription:  DefaultOutputDescription,
			maxTurns:           DefaultMaxTurns,
			maxRetries:         DefaultMaxRetries,
			maxToolCorrections: DefaultMaxToolCorrections,
			toolTimeout:        DefaultToolTimeout,
			modelTimeout:       DefaultModelTimeout,
			maxParallelTools:   DefaultMaxParallelTools,
		},
	}
	for _, opt := range options {
		opt(&ret.Config)
	}
	if ret.model == nil {
		return nil, ErrMissingModel
	}
	if ret.maxTurns <= 0 || ret.maxRetries <= 0 || ret.maxToolCorrections < 0 {
		return nil, fmt.Errorf("invalid budgets: max_turns=%d max_retries=%d max_tool_corrections=%d", ret.maxTurns, ret.maxRetries, ret.maxToolCorrections)
	}
	if ret.registry == nil {
		ret.registry, _ = tools.NewRegistry()
	}
	if ret.systemPromptGenerator == nil {
		ret.systemPromptGenerator = NewWebSearchPromptGenerator()
	}
	validator, err := schema.NewValidator[O](ret.outputName, ret.outputDescription)
	if err != nil {
		return nil, err
	}
	ret.validator = validator
	return ret, nil
}

func (a *Agent[O]) Name() string {
	return a.name
}

func (a *Agent[O]) Registry() *tools.Registry {
	return a.registry
}

// OutputSchema returns the schema candidate answers are validated against
func (a *Agent[O]) OutputSchema() *schema.Definition {
	return a.validator.Definition()
}

// SystemPrompt renders the instructions for rc
func (a *Agent[O]) SystemPrompt(rc *components.RunContext) (string, error) {
	return a.systemPromptGenerator.Compose(rc)
}

func (a *Agent[O]) SetStartHook(fn func(context.Context, *Agent[O], string, *components.RunContext)) {
	a.startHook = fn
}

func (a *Agent[O]) SetEndHook(fn func(context.Context, *Agent[O], *O, *RunReport)) {
	a.endHook = fn
}

func (a *Agent[O]) SetErrorHook(fn func(context.Context, *Agent[O], *RunReport, error)) {
	a.errorHook = fn
}

// Run answers query and returns the validated output
func (a *Agent[O]) Run(ctx context.Context, query string, rc *components.RunContext) (*O, error) {
	out, _, err := a.RunWithResponse(ctx, query, rc)
	return out, err
}

// RunWithResponse is Run that also returns the run report
func (a *Agent[O]) RunWithResponse(ctx context.Context, query string, rc *components.RunContext) (*O, *RunReport, error) {
	report := &RunReport{
		RunID: uuid.NewString(),
		Usage: new(components.LLMUsage),
	}
	ctx = log.With(ctx, log.KV{K: "agent", V: a.name}, log.KV{K: "run_id", V: report.RunID})
	if fn := a.startHook; fn != nil {
		fn(ctx, a, query, rc)
	}
	log.Info(ctx, log.KV{K: "msg", V: "run started"}, log.KV{K: "query", V: query})
	out, err := a.run(ctx, query, rc, report)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "run failed"}, log.KV{K: "turns", V: report.Turns}, log.KV{K: "retries", V: report.Retries})
		if fn := a.errorHook; fn != nil {
			fn(ctx, a, report, err)
		}
		return nil, report, err
	}
	log.Info(ctx, log.KV{K: "msg", V: "run finished"},
		log.KV{K: "turns", V: report.Turns},
		log.KV{K: "retries", V: report.Retries},
		log.KV{K: "input_tokens", V: report.Usage.InputTokens},
		log.KV{K: "output_tokens", V: report.Usage.OutputTokens})
	if fn := a.endHook; fn != nil {
		fn(ctx, a, out, report)
	}
	return out, report, nil
}

func (a *Agent[O]) run(ctx context.Context, query string, rc *components.RunContext, report *RunReport) (*O, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if rc == nil {
		return nil, fmt.Errorf("%w: run context is required", components.ErrInvalidRunContext)
	}
	instructions, err := a.systemPromptGenerator.Compose(rc)
	if err != nil {
		return nil, err
	}
	ctx = components.ContextWithRun(ctx, rc)
	transcript := components.NewTranscript(components.NewUserQuery(query))
	defer func() {
		report.Transcript = transcript.History()
	}()
	req := &components.ModelRequest{
		Instructions: instructions,
		Tools:        a.registry.Specs(),
		OutputSchema: a.validator.Definition(),
	}
	var (
		lastCandidate        json.RawMessage
		candidateDiagnostics schema.FieldErrors
		toolDiagnostics      schema.FieldErrors
	)
	// exhausted reports diagnostics as the reason of the failure, falling back to
	// whatever the run last saw
	exhausted := func(reason string, diagnostics schema.FieldErrors) error {
		for _, v := range []schema.FieldErrors{diagnostics, candidateDiagnostics, toolDiagnostics} {
			if len(v) > 0 {
				diagnostics = v
				break
			}
		}
		if len(diagnostics) == 0 {
			diagnostics = schema.FieldErrors{{Field: schema.RootField, Reason: reason}}
		}
		return &ExhaustedRetriesError{
			Reason:               reason,
			Diagnostics:          diagnostics,
			LastCandidate:        lastCandidate,
			CandidateDiagnostics: candidateDiagnostics,
			ToolDiagnostics:      toolDiagnostics,
			Attempts:             report.Retries,
			Turns:                report.Turns,
		}
	}
	for {
		if report.Turns >= a.maxTurns {
			return nil, exhausted(fmt.Sprintf("no valid answer within %d turns", a.maxTurns), nil)
		}
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		req.Transcript = transcript.History()
		resp, err := a.generate(ctx, req)
		if err != nil {
			return nil, err
		}
		report.Usage.Merge(resp.Usage)
		turnCtx := log.With(ctx, log.KV{K: "turn", V: report.Turns + 1})
		switch {
		case resp.HasToolCalls():
			if resp.HasAnswer() {
				log.Debug(turnCtx, log.KV{K: "msg", V: "answer deferred, tool calls take priority"})
			}
			transcript.NewTurn()
			invocations, rejected, toolErrs := a.registry.PrepareAll(resp.ToolCalls)
			transcript.Append(components.NewToolRequest(resp.ToolCalls...))
			if len(rejected) > 0 {
				report.ToolCorrections++
				toolDiagnostics = toolErrorDiagnostics(toolErrs)
				log.Warn(turnCtx, log.KV{K: "msg", V: "tool request rejected"},
					log.KV{K: "attempt", V: report.ToolCorrections},
					log.KV{K: "diagnostics", V: toolDiagnostics.Error()})
				transcript.Append(components.NewCorrectionNotice(
					"Your tool request was rejected and no tool was called. Fix the listed problems and request the tools again.",
					toolDiagnostics, rejected...))
				if report.ToolCorrections > a.maxToolCorrections {
					return nil, exhausted(fmt.Sprintf("tool requests rejected %d times", report.ToolCorrections), toolDiagnostics)
				}
				continue
			}
			report.Turns++
			results, err := a.registry.InvokeAll(ctx, invocations, a.toolTimeout, a.maxParallelTools)
			if err != nil {
				return nil, cancelled(err)
			}
			for _, cb := range results {
				report.ToolCalls++
				log.Debug(turnCtx, log.KV{K: "msg", V: "tool called"}, log.KV{K: "tool", V: cb.Name}, log.KV{K: "failed", V: cb.IsError})
				transcript.Append(components.NewToolResult(cb))
			}
		default:
			report.Turns++
			transcript.NewTurn()
			candidate := resp.Answer
			transcript.Append(components.NewCandidateAnswer(candidate))
			out, errs := a.validator.Validate(candidate)
			if len(errs) == 0 {
				log.Debug(turnCtx, log.KV{K: "msg", V: "answer accepted"})
				return out, nil
			}
			report.Retries++
			lastCandidate, candidateDiagnostics = candidate, errs
			log.Warn(turnCtx, log.KV{K: "msg", V: "answer rejected"},
				log.KV{K: "attempt", V: report.Retries},
				log.KV{K: "diagnostics", V: errs.Error()})
			if report.Retries >= a.maxRetries {
				return nil, exhausted(fmt.Sprintf("answer failed validation %d times", report.Retries), errs)
			}
			transcript.Append(components.NewCorrectionNotice(
				"Your answer does not match the required JSON schema. Fix the listed fields and submit the complete answer again.",
				errs))
		}
	}
}

// generate calls the model with the model timeout. A model that ignores its context is
// abandoned when the timeout fires.
func (a *Agent[O]) generate(ctx context.Context, req *components.ModelRequest) (*components.ModelResponse, error) {
	callCtx := ctx
	if a.modelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.modelTimeout)
		defer cancel()
	}
	type result struct {
		resp *components.ModelResponse
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := a.model.Generate(callCtx, req)
		ch <- result{resp: resp, err: err}
	}()
	var res result
	select {
	case res = <-ch:
	case <-callCtx.Done():
		res.err = callCtx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			return nil, modelUnavailable(fmt.Errorf("model call timed out after %s: %w", a.modelTimeout, res.err))
		}
		return nil, modelUnavailable(res.err)
	}
	if res.resp == nil {
		return nil, modelUnavailable(errors.New("empty model response"))
	}
	return res.resp, nil
}

// toolErrorDiagnostics flattens rejected tool calls into field errors prefixed with the tool name
func toolErrorDiagnostics(errs []*tools.ToolError) schema.FieldErrors {
	ret := make(schema.FieldErrors, 0, len(errs))
	for _, terr := range errs {
		if terr.Kind == tools.UnknownToolKind {
			ret = append(ret, schema.FieldError{Field: terr.Tool, Reason: "is not a registered tool"})
			continue
		}
		for _, fe := range terr.Diagnostics {
			field := terr.Tool
			if fe.Field != schema.RootField && fe.Field != "" {
				field = terr.Tool + "." + fe.Field
			}
			ret = append(ret, schema.FieldError{Field: field, Reason: fe.Reason})
		}
	}
	return ret
}
