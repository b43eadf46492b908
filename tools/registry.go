package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bububa/atomic-orchestrator/components"
)

const (
	// DefaultTimeout is the per-call timeout used by Dispatch
	DefaultTimeout = 15 * time.Second
	// DefaultMaxParallel bounds concurrent calls of one batch
	DefaultMaxParallel = 4
)

// Registry maps tool names to descriptors. Names are unique. Lookups are safe for
// concurrent use by many runs.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]*Descriptor
}

// NewRegistry returns a Registry holding descriptors
func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	ret := &Registry{
		tools: make(map[string]*Descriptor, len(descriptors)),
	}
	if err := ret.Register(descriptors...); err != nil {
		return nil, err
	}
	return ret, nil
}

// Register adds descriptors. It fails without registering anything if a name is already taken.
func (r *Registry) Register(descriptors ...*Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		name := d.Name()
		if _, ok := r.tools[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		seen[name] = struct{}{}
	}
	for _, d := range descriptors {
		r.tools[d.Name()] = d
		r.order = append(r.order, d.Name())
	}
	return nil
}

// Register builds a descriptor for tool and adds it to r
func Register[I any, O any](r *Registry, tool Tool[I, O]) error {
	d, err := NewDescriptor(tool)
	if err != nil {
		return err
	}
	return r.Register(d)
}

// Lookup returns the descriptor registered under name
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Names returns tool names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Specs returns the model-facing tool descriptions in registration order
func (r *Registry) Specs() []components.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]components.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		ret = append(ret, r.tools[name].Spec())
	}
	return ret
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Invocation is a validated tool call ready to be executed
type Invocation struct {
	Call       components.ToolCall
	descriptor *Descriptor
	input      any
}

// Prepare resolves the tool and validates the call arguments without invoking anything.
// Failures are *ToolError of kind UnknownToolKind or InvalidArgumentsKind.
func (r *Registry) Prepare(call components.ToolCall) (*Invocation, error) {
	d, ok := r.Lookup(call.Name)
	if !ok {
		return nil, &ToolError{Tool: call.Name, Kind: UnknownToolKind}
	}
	input, errs := d.Decode([]byte(call.Arguments))
	if len(errs) > 0 {
		return nil, &ToolError{Tool: call.Name, Kind: InvalidArgumentsKind, Diagnostics: errs}
	}
	return &Invocation{Call: call, descriptor: d, input: input}, nil
}

// PrepareAll validates a batch of calls. When any call is rejected no invocation is
// returned and rejected holds one error callback per call of the batch, in request order,
// so that every requested call id is answered.
func (r *Registry) PrepareAll(calls []components.ToolCall) ([]*Invocation, []components.ToolCallback, []*ToolError) {
	var (
		invocations = make([]*Invocation, 0, len(calls))
		callbacks   = make([]components.ToolCallback, 0, len(calls))
		errs        []*ToolError
	)
	for _, call := range calls {
		cb := components.ToolCallback{ID: call.ID, Name: call.Name, IsError: true}
		inv, err := r.Prepare(call)
		if err != nil {
			var terr *ToolError
			errors.As(err, &terr)
			errs = append(errs, terr)
			cb.Content = terr.Content()
		} else {
			invocations = append(invocations, inv)
			cb.Content = fmt.Sprintf("error: tool '%s' was not called because other calls of the same request were rejected, request it again with the corrected calls", call.Name)
		}
		callbacks = append(callbacks, cb)
	}
	if len(errs) > 0 {
		return nil, callbacks, errs
	}
	return invocations, nil, nil
}

// Invoke executes a prepared call with a per-call timeout. Capability failures and
// timeouts are returned as *ToolError. If ctx itself is done its error is returned as is.
func (r *Registry) Invoke(ctx context.Context, inv *Invocation, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type result struct {
		content string
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		content, err := inv.descriptor.run(callCtx, inv.input)
		ch <- result{content: content, err: err}
	}()
	select {
	case res := <-ch:
		if res.err == nil {
			return res.content, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", &ToolError{Tool: inv.Call.Name, Kind: TimeoutKind, Cause: res.err}
		}
		return "", &ToolError{Tool: inv.Call.Name, Kind: InvocationFailedKind, Cause: res.err}
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &ToolError{Tool: inv.Call.Name, Kind: TimeoutKind, Cause: callCtx.Err()}
	}
}

// InvokeAll executes prepared calls concurrently, at most maxParallel at a time, and
// returns one callback per call in request order. Tool failures become error callbacks.
// The only error returned is ctx's own when the run is cancelled.
func (r *Registry) InvokeAll(ctx context.Context, invocations []*Invocation, timeout time.Duration, maxParallel int) ([]components.ToolCallback, error) {
	ret := make([]components.ToolCallback, len(invocations))
	g, gctx := errgroup.WithContext(ctx)
	if maxParallel > 0 {
		g.SetLimit(maxParallel)
	}
	for idx, inv := range invocations {
		g.Go(func() error {
			cb := components.ToolCallback{ID: inv.Call.ID, Name: inv.Call.Name}
			content, err := r.Invoke(gctx, inv, timeout)
			if err != nil {
				var terr *ToolError
				if !errors.As(err, &terr) {
					return err
				}
				cb.Content = terr.Content()
				cb.IsError = true
			} else {
				cb.Content = content
			}
			ret[idx] = cb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return ret, nil
}

// Dispatch validates and invokes a single call by name using DefaultTimeout.
// Every failure is a *ToolError.
func (r *Registry) Dispatch(ctx context.Context, name string, arguments []byte) (string, error) {
	inv, err := r.Prepare(components.NewToolCall("", name, string(arguments)))
	if err != nil {
		return "", err
	}
	return r.Invoke(ctx, inv, DefaultTimeout)
}
