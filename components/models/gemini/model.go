// Package gemini implements components.Model with the Gemini API using
// github.com/google/generative-ai-go. Lookup tools become function declarations and the
// final answer is submitted through the final_answer function whose parameters are the
// output schema.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/bububa/atomic-orchestrator/components"
)

// FinalAnswerTool is the function name the model submits its answer with
const FinalAnswerTool = "final_answer"

// ChatClient captures the subset of the genai client used by the adapter
type ChatClient interface {
	GenerativeModel(name string) *genai.GenerativeModel
	SendMessage(ctx context.Context, model *genai.GenerativeModel, history []*genai.Content, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client adapts a *genai.Client to ChatClient with a fresh chat session per call
type Client struct {
	*genai.Client
}

// SendMessage replays history in a new chat session and sends parts as the next user turn
func (c Client) SendMessage(ctx context.Context, model *genai.GenerativeModel, history []*genai.Content, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	cs := model.StartChat()
	cs.History = history
	return cs.SendMessage(ctx, parts...)
}

type Option func(*Model)

func WithTemperature(v float32) Option {
	return func(m *Model) {
		m.temperature = &v
	}
}

func WithMaxTokens(v int) Option {
	return func(m *Model) {
		m.maxTokens = int32(v)
	}
}

// Model generates turns with a Gemini model
type Model struct {
	client      ChatClient
	model       string
	temperature *float32
	maxTokens   int32
}

var _ components.Model = (*Model)(nil)

func New(client ChatClient, model string, opts ...Option) (*Model, error) {
	if client == nil {
		return nil, errors.New("gemini client is required")
	}
	if model == "" {
		return nil, errors.New("gemini model is required")
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

// NewFromAPIKey builds a Model with the genai REST client. baseURL may be empty.
func NewFromAPIKey(ctx context.Context, apiKey string, baseURL string, model string, opts ...Option) (*Model, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(baseURL))
	}
	clt, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return New(Client{Client: clt}, model, opts...)
}

// Generate sends the transcript and maps function calls back to tool calls or an answer
func (m *Model) Generate(ctx context.Context, req *components.ModelRequest) (*components.ModelResponse, error) {
	gm := m.client.GenerativeModel(m.model)
	if m.temperature != nil {
		gm.SetTemperature(*m.temperature)
	}
	if m.maxTokens > 0 {
		gm.SetMaxOutputTokens(m.maxTokens)
	}
	if req.Instructions != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.Instructions)}}
	}
	if decls := encodeTools(req); len(decls) > 0 {
		gm.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if req.OutputSchema != nil {
		gm.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingAny},
		}
	}
	history, parts := splitTurn(encodeContents(req.Transcript))
	resp, err := m.client.SendMessage(ctx, gm, history, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini send message: %w", err)
	}
	return decodeResponse(resp), nil
}

func encodeTools(req *components.ModelRequest) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools)+1)
	for _, spec := range req.Tools {
		decl := &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
		}
		if spec.InputSchema != nil {
			decl.Parameters = toSchema(spec.InputSchema.Map())
		}
		decls = append(decls, decl)
	}
	if req.OutputSchema != nil {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        FinalAnswerTool,
			Description: "Submit the final answer. Call it exactly once when the answer is complete.",
			Parameters:  toSchema(req.OutputSchema.Map()),
		})
	}
	return decls
}

// toSchema converts a JSON schema document to the OpenAPI subset Gemini accepts
func toSchema(doc map[string]any) *genai.Schema {
	ret := new(genai.Schema)
	ret.Description, _ = doc["description"].(string)
	typ := ""
	switch v := doc["type"].(type) {
	case string:
		typ = v
	case []any:
		for _, t := range v {
			s, _ := t.(string)
			if s == "null" {
				ret.Nullable = true
			} else if typ == "" {
				typ = s
			}
		}
	}
	if typ == "" {
		if _, ok := doc["properties"]; ok {
			typ = "object"
		}
	}
	switch typ {
	case "number":
		ret.Type = genai.TypeNumber
	case "integer":
		ret.Type = genai.TypeInteger
	case "boolean":
		ret.Type = genai.TypeBoolean
	case "array":
		ret.Type = genai.TypeArray
		if items, ok := doc["items"].(map[string]any); ok {
			ret.Items = toSchema(items)
		} else {
			ret.Items = &genai.Schema{Type: genai.TypeString}
		}
	case "object":
		ret.Type = genai.TypeObject
		if props, ok := doc["properties"].(map[string]any); ok {
			ret.Properties = make(map[string]*genai.Schema, len(props))
			for name, p := range props {
				if sub, ok := p.(map[string]any); ok {
					ret.Properties[name] = toSchema(sub)
				}
			}
		}
		ret.Required = stringList(doc["required"])
	default:
		ret.Type = genai.TypeString
		if enum := stringList(doc["enum"]); len(enum) > 0 {
			ret.Format = "enum"
			ret.Enum = enum
		}
	}
	return ret
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	ret := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			ret = append(ret, s)
		}
	}
	return ret
}

// encodeContents renders the transcript and merges consecutive turns of the same role.
// Function calls carry no ids so results are matched by name.
func encodeContents(transcript []components.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(transcript))
	push := func(role string, parts ...genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	for _, msg := range transcript {
		switch msg.Kind() {
		case components.ToolRequestKind:
			calls := msg.ToolCalls()
			parts := make([]genai.Part, 0, len(calls))
			for _, v := range calls {
				args := make(map[string]any)
				_ = json.Unmarshal([]byte(v.Arguments), &args)
				parts = append(parts, genai.FunctionCall{Name: v.Name, Args: args})
			}
			push("model", parts...)
		case components.ToolResultKind:
			cb, _ := msg.ToolResult()
			push("user", functionResponse(cb))
		case components.CandidateAnswerKind:
			if text := msg.Content(); text != "" {
				push("model", genai.Text(text))
			}
		case components.CorrectionNoticeKind:
			rejected := msg.RejectedCalls()
			parts := make([]genai.Part, 0, len(rejected)+1)
			for _, cb := range rejected {
				parts = append(parts, functionResponse(cb))
			}
			parts = append(parts, genai.Text(msg.Content()))
			push("user", parts...)
		default:
			push("user", genai.Text(msg.Content()))
		}
	}
	return contents
}

func functionResponse(cb components.ToolCallback) genai.FunctionResponse {
	key := "content"
	if cb.IsError {
		key = "error"
	}
	return genai.FunctionResponse{Name: cb.Name, Response: map[string]any{key: cb.Content}}
}

// splitTurn separates the trailing user turn sent with SendMessage from the history
func splitTurn(contents []*genai.Content) ([]*genai.Content, []genai.Part) {
	n := len(contents)
	if n == 0 || contents[n-1].Role != "user" {
		return contents, []genai.Part{genai.Text("Continue.")}
	}
	return contents[:n-1], contents[n-1].Parts
}

// decodeResponse maps function calls and text. A candidate without either, for example
// one cut by the token limit, is returned empty so the caller can ask again.
func decodeResponse(resp *genai.GenerateContentResponse) *components.ModelResponse {
	ret := new(components.ModelResponse)
	ret.FromGemini(resp)
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ret
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			args := []byte("{}")
			if len(p.Args) > 0 {
				if bs, err := json.Marshal(p.Args); err == nil {
					args = bs
				}
			}
			if p.Name == FinalAnswerTool {
				ret.Answer = json.RawMessage(args)
				continue
			}
			ret.ToolCalls = append(ret.ToolCalls, components.NewToolCall(components.NewToolCallID(), p.Name, string(args)))
		}
	}
	if !ret.HasAnswer() && text.Len() > 0 {
		ret.Answer = components.ExtractAnswer(text.String())
	}
	return ret
}
