package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/atomic"

	"github.com/bububa/atomic-orchestrator/components"
	"github.com/bububa/atomic-orchestrator/schema"
)

// Descriptor binds a tool name to its declared input schema and its capability.
// It is immutable once built.
type Descriptor struct {
	tool     ITool
	input    *schema.Definition
	decode   func(args []byte) (any, schema.FieldErrors)
	invoke   func(ctx context.Context, input any) (any, error)
	calls    *atomic.Int64
	failures *atomic.Int64
}

// NewDescriptor reflects the input schema of tool from I
func NewDescriptor[I any, O any](tool Tool[I, O]) (*Descriptor, error) {
	if tool.Title() == "" {
		return nil, fmt.Errorf("%w: tool title is empty", ErrInvalidArguments)
	}
	def, err := schema.Reflect[I](tool.Title(), tool.Description())
	if err != nil {
		return nil, err
	}
	return &Descriptor{
		tool:  tool,
		input: def,
		decode: func(args []byte) (any, schema.FieldErrors) {
			if errs := def.Validate(args); len(errs) > 0 {
				return nil, errs
			}
			in := new(I)
			if err := json.Unmarshal(args, in); err != nil {
				return nil, schema.FieldErrors{{Field: schema.RootField, Reason: fmt.Sprintf("arguments cannot be decoded: %v", err)}}
			}
			if errs := schema.ValidateStruct(in); len(errs) > 0 {
				return nil, errs
			}
			return in, nil
		},
		invoke: func(ctx context.Context, input any) (any, error) {
			in, ok := input.(*I)
			if !ok {
				return nil, fmt.Errorf("unexpected input type %T", input)
			}
			return tool.Run(ctx, in)
		},
		calls:    atomic.NewInt64(0),
		failures: atomic.NewInt64(0),
	}, nil
}

// MustDescriptor is NewDescriptor that panics on error
func MustDescriptor[I any, O any](tool Tool[I, O]) *Descriptor {
	d, err := NewDescriptor(tool)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Descriptor) Name() string {
	return d.tool.Title()
}

func (d *Descriptor) Description() string {
	return d.tool.Description()
}

func (d *Descriptor) InputSchema() *schema.Definition {
	return d.input
}

// Spec returns the tool description handed to the model
func (d *Descriptor) Spec() components.ToolSpec {
	return components.ToolSpec{
		Name:        d.Name(),
		Description: d.Description(),
		InputSchema: d.input,
	}
}

// Decode validates raw arguments against the input schema and decodes them.
// Blank arguments are treated as an empty object.
func (d *Descriptor) Decode(args []byte) (any, schema.FieldErrors) {
	if len(bytes.TrimSpace(args)) == 0 {
		args = []byte("{}")
	}
	return d.decode(args)
}

// Stats returns the number of invocations and failed invocations
func (d *Descriptor) Stats() (calls int64, failures int64) {
	return d.calls.Load(), d.failures.Load()
}

// run invokes the capability with an already decoded input and renders its output as JSON
func (d *Descriptor) run(ctx context.Context, input any) (string, error) {
	d.calls.Inc()
	if hook := d.tool.StartHook(); hook != nil {
		hook(ctx, d.tool, input)
	}
	out, err := d.invoke(ctx, input)
	if err == nil {
		var bs []byte
		if bs, err = json.Marshal(out); err == nil {
			if hook := d.tool.EndHook(); hook != nil {
				hook(ctx, d.tool, input, out)
			}
			return string(bs), nil
		}
	}
	d.failures.Inc()
	if hook := d.tool.ErrorHook(); hook != nil {
		hook(ctx, d.tool, input, err)
	}
	return "", err
}
