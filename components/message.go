package components

import (
	"encoding/json"
	"slices"

	"github.com/rs/xid"

	"github.com/bububa/atomic-orchestrator/schema"
)

// NewTurnID returns a new turn ID.
func NewTurnID() string {
	return xid.New().String()
}

// MessageRole is the role of the message sender (e.g., 'user', 'system', 'tool')
type MessageRole = string

const (
	SystemRole    MessageRole = "system"
	UserRole      MessageRole = "user"
	AssistantRole MessageRole = "assistant"
	ToolRole      MessageRole = "tool"
)

// MessageKind tags the variant carried by a Message
type MessageKind int

const (
	// UserQueryKind is the caller query that starts a run
	UserQueryKind MessageKind = iota + 1
	// ToolRequestKind holds the tool calls requested by the model in one turn
	ToolRequestKind
	// ToolResultKind holds the outcome of a single tool call
	ToolResultKind
	// CandidateAnswerKind holds a payload proposed by the model as final result
	CandidateAnswerKind
	// CorrectionNoticeKind tells the model why a candidate or a tool request was rejected
	CorrectionNoticeKind
)

func (k MessageKind) String() string {
	switch k {
	case UserQueryKind:
		return "user_query"
	case ToolRequestKind:
		return "tool_request"
	case ToolResultKind:
		return "tool_result"
	case CandidateAnswerKind:
		return "candidate_answer"
	case CorrectionNoticeKind:
		return "correction_notice"
	}
	return "unknown"
}

// Message is one entry of a run transcript.
// It is a tagged variant over UserQuery, ToolRequest, ToolResult, CandidateAnswer and CorrectionNotice.
type Message struct {
	kind MessageKind
	//	turnID is Unique identifier for the turn this message belongs to.
	turnID string
	// text is the user query or the correction reason
	text string
	// toolCalls of a ToolRequest
	toolCalls []ToolCall
	// callbacks holds the single result of a ToolResult, or the rejected calls of a CorrectionNotice
	callbacks []ToolCallback
	// payload of a CandidateAnswer
	payload json.RawMessage
	// diagnostics of a CorrectionNotice
	diagnostics schema.FieldErrors
}

// NewUserQuery returns a UserQuery message
func NewUserQuery(text string) *Message {
	return &Message{kind: UserQueryKind, text: text}
}

// NewToolRequest returns a ToolRequest message
func NewToolRequest(calls ...ToolCall) *Message {
	return &Message{kind: ToolRequestKind, toolCalls: slices.Clone(calls)}
}

// NewToolResult returns a ToolResult message
func NewToolResult(callback ToolCallback) *Message {
	return &Message{kind: ToolResultKind, callbacks: []ToolCallback{callback}}
}

// NewCandidateAnswer returns a CandidateAnswer message
func NewCandidateAnswer(payload json.RawMessage) *Message {
	return &Message{kind: CandidateAnswerKind, payload: slices.Clone(payload)}
}

// NewCorrectionNotice returns a CorrectionNotice message. rejected lists the tool calls
// refused by the notice so providers can answer every pending call id.
func NewCorrectionNotice(reason string, diagnostics schema.FieldErrors, rejected ...ToolCallback) *Message {
	return &Message{
		kind:        CorrectionNoticeKind,
		text:        reason,
		diagnostics: slices.Clone(diagnostics),
		callbacks:   slices.Clone(rejected),
	}
}

// SetTurnID set message turnID
func (m *Message) SetTurnID(turnID string) *Message {
	m.turnID = turnID
	return m
}

// Kind returns the message variant
func (m Message) Kind() MessageKind {
	return m.kind
}

// TurnID returns message turnID
func (m Message) TurnID() string {
	return m.turnID
}

// Role returns the chat role the message is rendered with
func (m Message) Role() MessageRole {
	switch m.kind {
	case ToolRequestKind, CandidateAnswerKind:
		return AssistantRole
	case ToolResultKind:
		return ToolRole
	case CorrectionNoticeKind:
		if len(m.callbacks) > 0 {
			return ToolRole
		}
	}
	return UserRole
}

// Text returns the text of a UserQuery or the reason of a CorrectionNotice
func (m Message) Text() string {
	return m.text
}

// ToolCalls returns the calls of a ToolRequest
func (m Message) ToolCalls() []ToolCall {
	return slices.Clone(m.toolCalls)
}

// ToolResult returns the callback of a ToolResult
func (m Message) ToolResult() (ToolCallback, bool) {
	if m.kind != ToolResultKind || len(m.callbacks) == 0 {
		return ToolCallback{}, false
	}
	return m.callbacks[0], true
}

// RejectedCalls returns the tool calls refused by a CorrectionNotice
func (m Message) RejectedCalls() []ToolCallback {
	if m.kind != CorrectionNoticeKind {
		return nil
	}
	return slices.Clone(m.callbacks)
}

// Payload returns the payload of a CandidateAnswer
func (m Message) Payload() json.RawMessage {
	return slices.Clone(m.payload)
}

// Diagnostics returns the field errors attached to a CorrectionNotice
func (m Message) Diagnostics() schema.FieldErrors {
	return slices.Clone(m.diagnostics)
}

// Content renders the message as plain text for providers without structured turns
func (m Message) Content() string {
	switch m.kind {
	case ToolRequestKind:
		return schema.Stringify(m.toolCalls)
	case ToolResultKind:
		if len(m.callbacks) > 0 {
			return m.callbacks[0].Content
		}
	case CandidateAnswerKind:
		return string(m.payload)
	case CorrectionNoticeKind:
		if len(m.diagnostics) > 0 {
			return m.text + "\n" + m.diagnostics.Summary()
		}
	}
	return m.text
}

type messageJSON struct {
	Kind        string             `json:"kind"`
	TurnID      string             `json:"turn_id,omitempty"`
	Text        string             `json:"text,omitempty"`
	ToolCalls   []ToolCall         `json:"tool_calls,omitempty"`
	Callbacks   []ToolCallback     `json:"callbacks,omitempty"`
	Payload     string             `json:"payload,omitempty"`
	Diagnostics schema.FieldErrors `json:"diagnostics,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		Kind:        m.kind.String(),
		TurnID:      m.turnID,
		Text:        m.text,
		ToolCalls:   m.toolCalls,
		Callbacks:   m.callbacks,
		Payload:     string(m.payload),
		Diagnostics: m.diagnostics,
	})
}
