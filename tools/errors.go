package tools

import (
	"errors"
	"fmt"

	"github.com/bububa/atomic-orchestrator/schema"
)

var (
	// ErrInvalidArguments arguments violate the tool's declared input schema. The tool is not invoked.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrUnknownTool no tool is registered under the requested name
	ErrUnknownTool = errors.New("unknown tool")
	// ErrToolInvocationFailed the underlying capability returned an error
	ErrToolInvocationFailed = errors.New("tool invocation failed")
	// ErrToolTimeout the call exceeded its per-call timeout
	ErrToolTimeout = errors.New("tool call timed out")
	// ErrDuplicateTool a tool with the same name is already registered
	ErrDuplicateTool = errors.New("duplicate tool name")
)

// ErrorKind classifies a ToolError
type ErrorKind string

const (
	InvalidArgumentsKind ErrorKind = "invalid_arguments"
	UnknownToolKind      ErrorKind = "unknown_tool"
	InvocationFailedKind ErrorKind = "invocation_failed"
	TimeoutKind          ErrorKind = "timeout"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case InvalidArgumentsKind:
		return ErrInvalidArguments
	case UnknownToolKind:
		return ErrUnknownTool
	case TimeoutKind:
		return ErrToolTimeout
	}
	return ErrToolInvocationFailed
}

// ToolError is returned by dispatch. It matches the sentinel of its Kind with errors.Is.
type ToolError struct {
	Tool        string
	Kind        ErrorKind
	Diagnostics schema.FieldErrors
	Cause       error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind.sentinel().Error(), e.Tool)
	if len(e.Diagnostics) > 0 {
		return fmt.Sprintf("%s: %s", msg, e.Diagnostics.Error())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *ToolError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// Content renders the error as a tool result payload the model can read and act upon
func (e *ToolError) Content() string {
	switch e.Kind {
	case InvalidArgumentsKind:
		return fmt.Sprintf("error: arguments for tool '%s' do not match its input schema:\n%s", e.Tool, e.Diagnostics.Summary())
	case UnknownToolKind:
		return fmt.Sprintf("error: tool '%s' does not exist", e.Tool)
	case TimeoutKind:
		return fmt.Sprintf("error: tool '%s' timed out, try again or change strategy", e.Tool)
	}
	return fmt.Sprintf("error: tool '%s' failed: %v", e.Tool, e.Cause)
}
