// Package anthropic implements components.Model with the Anthropic Messages API using
// github.com/liushuangls/go-anthropic/v2. The model must answer through tools: lookup
// tools are declared as is and the final answer is submitted through the final_answer
// tool whose input schema is the output schema.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/bububa/atomic-orchestrator/components"
)

const (
	// FinalAnswerTool is the tool name the model submits its answer with
	FinalAnswerTool = "final_answer"
	// DefaultMaxTokens is used when no limit is configured
	DefaultMaxTokens = 4096
)

// MessagesClient captures the subset of the go-anthropic client used by the adapter.
type MessagesClient interface {
	CreateMessages(ctx context.Context, request anthropic.MessagesRequest) (anthropic.MessagesResponse, error)
}

type Option func(*Model)

func WithTemperature(v float32) Option {
	return func(m *Model) {
		m.temperature = &v
	}
}

func WithMaxTokens(v int) Option {
	return func(m *Model) {
		m.maxTokens = v
	}
}

// Model generates turns with an Anthropic chat model
type Model struct {
	client      MessagesClient
	model       anthropic.Model
	temperature *float32
	maxTokens   int
}

var _ components.Model = (*Model)(nil)

func New(client MessagesClient, model string, opts ...Option) (*Model, error) {
	if client == nil {
		return nil, errors.New("anthropic client is required")
	}
	if model == "" {
		return nil, errors.New("anthropic model is required")
	}
	ret := &Model{
		client:    client,
		model:     anthropic.Model(model),
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

// NewFromAPIKey builds a Model with the default go-anthropic HTTP client. baseURL may be empty.
func NewFromAPIKey(apiKey string, baseURL string, model string, opts ...Option) (*Model, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	clientOpts := make([]anthropic.ClientOption, 0, 1)
	if baseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(baseURL))
	}
	return New(anthropic.NewClient(apiKey, clientOpts...), model, opts...)
}

// Generate sends the transcript and maps tool_use blocks back to tool calls or an answer
func (m *Model) Generate(ctx context.Context, req *components.ModelRequest) (*components.ModelResponse, error) {
	chatReq := anthropic.MessagesRequest{
		Model:       m.model,
		System:      req.Instructions,
		Messages:    encodeMessages(req.Transcript),
		MaxTokens:   m.maxTokens,
		Temperature: m.temperature,
		Tools:       encodeTools(req),
	}
	if req.OutputSchema != nil {
		chatReq.ToolChoice = &anthropic.ToolChoice{Type: "any"}
	}
	resp, err := m.client.CreateMessages(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic create messages: %w", err)
	}
	return decodeResponse(&resp)
}

func encodeTools(req *components.ModelRequest) []anthropic.ToolDefinition {
	tools := make([]anthropic.ToolDefinition, 0, len(req.Tools)+1)
	for _, spec := range req.Tools {
		def := anthropic.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: json.RawMessage(`{"type":"object"}`),
		}
		if spec.InputSchema != nil {
			def.InputSchema = spec.InputSchema.JSON()
		}
		tools = append(tools, def)
	}
	if req.OutputSchema != nil {
		tools = append(tools, anthropic.ToolDefinition{
			Name:        FinalAnswerTool,
			Description: "Submit the final answer. Call it exactly once when the answer is complete.",
			InputSchema: req.OutputSchema.JSON(),
		})
	}
	return tools
}

// encodeMessages renders the transcript and merges consecutive turns of the same role,
// the Messages API requires strictly alternating roles
func encodeMessages(transcript []components.Message) []anthropic.Message {
	messages := make([]anthropic.Message, 0, len(transcript))
	push := func(role anthropic.ChatRole, contents ...anthropic.MessageContent) {
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, contents...)
			return
		}
		messages = append(messages, anthropic.Message{Role: role, Content: contents})
	}
	for _, msg := range transcript {
		switch msg.Kind() {
		case components.ToolRequestKind:
			calls := msg.ToolCalls()
			contents := make([]anthropic.MessageContent, 0, len(calls))
			for _, v := range calls {
				input := json.RawMessage(v.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				contents = append(contents, anthropic.NewToolUseMessageContent(v.ID, v.Name, input))
			}
			push(anthropic.RoleAssistant, contents...)
		case components.ToolResultKind:
			cb, _ := msg.ToolResult()
			push(anthropic.RoleUser, anthropic.NewToolResultMessageContent(cb.ID, cb.Content, cb.IsError))
		case components.CandidateAnswerKind:
			push(anthropic.RoleAssistant, anthropic.NewTextMessageContent(msg.Content()))
		case components.CorrectionNoticeKind:
			rejected := msg.RejectedCalls()
			contents := make([]anthropic.MessageContent, 0, len(rejected)+1)
			for _, cb := range rejected {
				contents = append(contents, anthropic.NewToolResultMessageContent(cb.ID, cb.Content, true))
			}
			contents = append(contents, anthropic.NewTextMessageContent(msg.Content()))
			push(anthropic.RoleUser, contents...)
		default:
			push(anthropic.RoleUser, anthropic.NewTextMessageContent(msg.Content()))
		}
	}
	return messages
}

// decodeResponse maps tool_use blocks and text. A response without either, for example one
// cut by max_tokens, is returned empty so the caller can ask again.
func decodeResponse(resp *anthropic.MessagesResponse) (*components.ModelResponse, error) {
	ret := new(components.ModelResponse)
	ret.FromAnthropic(resp)
	var text strings.Builder
	for _, content := range resp.Content {
		switch content.Type {
		case anthropic.MessagesContentTypeText:
			text.WriteString(content.GetText())
		case anthropic.MessagesContentTypeToolUse:
			use := content.MessageContentToolUse
			if use == nil {
				continue
			}
			if use.Name == FinalAnswerTool {
				ret.Answer = append(json.RawMessage(nil), use.Input...)
				continue
			}
			ret.ToolCalls = append(ret.ToolCalls, components.NewToolCall(use.ID, use.Name, string(use.Input)))
		}
	}
	if !ret.HasAnswer() && text.Len() > 0 {
		ret.Answer = components.ExtractAnswer(text.String())
	}
	return ret, nil
}
