package components

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"
)

const (
	// ResultLimitKey is the fact key of the search result budget
	ResultLimitKey = "result_limit"
	// ReferenceDateKey is the fact key of the reference date
	ReferenceDateKey = "reference_date"
	// DateLayout is the layout used to render the reference date
	DateLayout = "2006-01-02"
)

// ErrInvalidRunContext is returned when a RunContext is built from invalid caller input
var ErrInvalidRunContext = errors.New("invalid run context")

// RunContext holds the contextual facts of a single run.
// It is read-only once built and must not be shared across runs.
type RunContext struct {
	resultLimit   int
	referenceDate time.Time
	facts         map[string]string
}

// ContextOption configures extra facts of a RunContext
type ContextOption func(*RunContext)

// WithFact adds an extensible key/value fact
func WithFact(key string, value string) ContextOption {
	return func(c *RunContext) {
		c.facts[key] = value
	}
}

// WithFacts adds several extensible facts
func WithFacts(facts map[string]string) ContextOption {
	return func(c *RunContext) {
		for k, v := range facts {
			c.facts[k] = v
		}
	}
}

// NewRunContext returns a new RunContext. resultLimit must be positive and referenceDate non zero.
func NewRunContext(resultLimit int, referenceDate time.Time, opts ...ContextOption) (*RunContext, error) {
	if resultLimit <= 0 {
		return nil, fmt.Errorf("%w: result_limit must be positive, got %d", ErrInvalidRunContext, resultLimit)
	}
	if referenceDate.IsZero() {
		return nil, fmt.Errorf("%w: reference_date is required", ErrInvalidRunContext)
	}
	ret := &RunContext{
		resultLimit:   resultLimit,
		referenceDate: referenceDate,
		facts:         make(map[string]string, len(opts)),
	}
	for _, opt := range opts {
		opt(ret)
	}
	// built-in facts always win
	delete(ret.facts, ResultLimitKey)
	delete(ret.facts, ReferenceDateKey)
	return ret, nil
}

// ParseDate parses a YYYY-MM-DD reference date
func ParseDate(v string) (time.Time, error) {
	return time.Parse(DateLayout, v)
}

// ResultLimit returns the search result budget
func (c *RunContext) ResultLimit() int {
	return c.resultLimit
}

// ReferenceDate returns the reference date of the run
func (c *RunContext) ReferenceDate() time.Time {
	return c.referenceDate
}

// Lookup returns the rendered value of a fact
func (c *RunContext) Lookup(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	switch key {
	case ResultLimitKey:
		return strconv.Itoa(c.resultLimit), true
	case ReferenceDateKey:
		return c.referenceDate.Format(DateLayout), true
	}
	v, ok := c.facts[key]
	return v, ok
}

// Keys returns every fact key in sorted order
func (c *RunContext) Keys() []string {
	ret := make([]string, 0, len(c.facts)+2)
	ret = append(ret, ResultLimitKey, ReferenceDateKey)
	for k := range c.facts {
		ret = append(ret, k)
	}
	slices.Sort(ret)
	return ret
}

type runContextKey struct{}

// ContextWithRun returns a copy of ctx carrying rc
func ContextWithRun(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// RunContextFrom returns the RunContext carried by ctx
func RunContextFrom(ctx context.Context) (*RunContext, bool) {
	rc, ok := ctx.Value(runContextKey{}).(*RunContext)
	return rc, ok && rc != nil
}
