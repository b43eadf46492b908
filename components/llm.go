package components

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/generative-ai-go/genai"
	anthropic "github.com/liushuangls/go-anthropic/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/bububa/atomic-orchestrator/schema"
)

// Model is the text generation capability driven by the orchestration loop.
// Implementations own their transport reliability; the loop never retries a failed call.
type Model interface {
	Generate(ctx context.Context, req *ModelRequest) (*ModelResponse, error)
}

// ModelFunc adapts a function to the Model interface
type ModelFunc func(ctx context.Context, req *ModelRequest) (*ModelResponse, error)

// Generate implements Model
func (f ModelFunc) Generate(ctx context.Context, req *ModelRequest) (*ModelResponse, error) {
	return f(ctx, req)
}

// ModelRequest is sent to the model on every turn
type ModelRequest struct {
	// Instructions is the composed system prompt
	Instructions string
	// Transcript is the ordered record of the run so far
	Transcript []Message
	// Tools lists the tools the model may request
	Tools []ToolSpec
	// OutputSchema describes the required shape of the final answer
	OutputSchema *schema.Definition
}

// ModelResponse is either a tool request or a candidate answer.
// When both are present the tool calls take priority.
type ModelResponse struct {
	ToolCalls []ToolCall
	Answer    json.RawMessage
	LLMResponse
}

// HasToolCalls reports whether the model requested tools
func (r *ModelResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// HasAnswer reports whether the model proposed a candidate answer
func (r *ModelResponse) HasAnswer() bool {
	return r != nil && len(r.Answer) > 0
}

// LLMResponse provider chat response metadata
type LLMResponse struct {
	ID        string      `json:"id,omitempty"`
	Role      MessageRole `json:"role,omitempty"`
	Model     string      `json:"model,omitempty"`
	Usage     *LLMUsage   `json:"usage,omitempty"`
	Timestamp int64       `json:"ts,omitempty"`
	Details   any         `json:"content,omitempty"`
}

// FromOpenAI convnert response from openai
func (r *LLMResponse) FromOpenAI(v *openai.ChatCompletionResponse) {
	r.ID = v.ID
	r.Role = AssistantRole
	r.Model = v.Model
	r.Timestamp = v.Created
	r.Usage = &LLMUsage{
		InputTokens:  int64(v.Usage.PromptTokens),
		OutputTokens: int64(v.Usage.CompletionTokens),
	}
	r.Details = v.Choices
}

// FromAnthropic convert response from anthropic
func (r *LLMResponse) FromAnthropic(v *anthropic.MessagesResponse) {
	r.ID = v.ID
	r.Role = AssistantRole
	r.Model = string(v.Model)
	r.Timestamp = time.Now().Unix()
	r.Usage = &LLMUsage{
		InputTokens:  int64(v.Usage.InputTokens),
		OutputTokens: int64(v.Usage.OutputTokens),
	}
	r.Details = v.Content
}

// FromGemini convert response from gemini
func (r *LLMResponse) FromGemini(v *genai.GenerateContentResponse) {
	r.Role = AssistantRole
	r.Timestamp = time.Now().Unix()
	r.Usage = new(LLMUsage)
	if u := v.UsageMetadata; u != nil {
		r.Usage.InputTokens = int64(u.PromptTokenCount)
		r.Usage.OutputTokens = int64(u.CandidatesTokenCount)
	}
	r.Details = v.Candidates
}

// LLMUsage is the token usage of one or more model calls
type LLMUsage struct {
	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`
}

// Merge adds v to u
func (u *LLMUsage) Merge(v *LLMUsage) {
	if v == nil {
		return
	}
	u.InputTokens += v.InputTokens
	u.OutputTokens += v.OutputTokens
}
