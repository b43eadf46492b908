// Package openai implements components.Model with the OpenAI Chat Completions API
// using github.com/sashabaranov/go-openai. Tools are declared as functions and the
// final answer is requested through a JSON schema response format.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bububa/atomic-orchestrator/components"
)

// ChatClient captures the subset of the go-openai client used by the adapter.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Option func(*Model)

func WithTemperature(v float32) Option {
	return func(m *Model) {
		m.temperature = v
	}
}

func WithMaxTokens(v int) Option {
	return func(m *Model) {
		m.maxTokens = v
	}
}

// WithJSONObjectFormat requests a plain JSON object instead of a JSON schema response format,
// for OpenAI compatible servers without structured output support
func WithJSONObjectFormat() Option {
	return func(m *Model) {
		m.jsonObject = true
	}
}

// Model generates turns with an OpenAI chat model
type Model struct {
	client      ChatClient
	model       string
	temperature float32
	maxTokens   int
	jsonObject  bool
}

var _ components.Model = (*Model)(nil)

func New(client ChatClient, model string, opts ...Option) (*Model, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	if model == "" {
		return nil, errors.New("openai model is required")
	}
	ret := &Model{
		client: client,
		model:  model,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

// NewFromAPIKey builds a Model with the default go-openai HTTP client. baseURL may be empty.
func NewFromAPIKey(apiKey string, baseURL string, model string, opts ...Option) (*Model, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return New(openai.NewClientWithConfig(cfg), model, opts...)
}

// Generate sends the transcript and maps the first choice back to tool calls or an answer
func (m *Model) Generate(ctx context.Context, req *components.ModelRequest) (*components.ModelResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:               m.model,
		Temperature:         m.temperature,
		MaxCompletionTokens: m.maxTokens,
		Messages:            encodeMessages(req),
		Tools:               encodeTools(req.Tools),
	}
	if req.OutputSchema != nil {
		if m.jsonObject {
			chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		} else {
			chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:        req.OutputSchema.Name(),
					Description: req.OutputSchema.Description(),
					Schema:      req.OutputSchema,
				},
			}
		}
	}
	resp, err := m.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return decodeResponse(&resp)
}

func encodeMessages(req *components.ModelRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Transcript)+1)
	if req.Instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instructions,
		})
	}
	for _, msg := range req.Transcript {
		switch msg.Kind() {
		case components.ToolRequestKind:
			calls := msg.ToolCalls()
			toolCalls := make([]openai.ToolCall, 0, len(calls))
			for _, v := range calls {
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   v.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      v.Name,
						Arguments: v.Arguments,
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				ToolCalls: toolCalls,
			})
		case components.ToolResultKind:
			cb, _ := msg.ToolResult()
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: cb.ID,
				Content:    cb.Content,
			})
		case components.CandidateAnswerKind:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content(),
			})
		case components.CorrectionNoticeKind:
			// every pending call id must be answered before the next user turn
			for _, cb := range msg.RejectedCalls() {
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: cb.ID,
					Content:    cb.Content,
				})
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content(),
			})
		default:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content(),
			})
		}
	}
	return messages
}

func encodeTools(specs []components.ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		def := &openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
		}
		if spec.InputSchema != nil {
			def.Parameters = spec.InputSchema.JSON()
		}
		tools = append(tools, openai.Tool{
			Type:     openai.ToolTypeFunction,
			Function: def,
		})
	}
	return tools
}

// decodeResponse maps the first choice. An empty or refused completion is returned as an
// empty response so the caller can ask the model again; only transport failures are errors.
func decodeResponse(resp *openai.ChatCompletionResponse) (*components.ModelResponse, error) {
	ret := new(components.ModelResponse)
	ret.FromOpenAI(resp)
	if len(resp.Choices) == 0 {
		return ret, nil
	}
	msg := resp.Choices[0].Message
	for _, call := range msg.ToolCalls {
		ret.ToolCalls = append(ret.ToolCalls, components.NewToolCall(call.ID, call.Function.Name, call.Function.Arguments))
	}
	switch {
	case msg.Content != "":
		ret.Answer = components.ExtractAnswer(msg.Content)
	case msg.Refusal != "" && !ret.HasToolCalls():
		ret.Answer = components.ExtractAnswer(msg.Refusal)
	}
	return ret, nil
}
