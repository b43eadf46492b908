// Package calculator evaluates mathematical expressions for the model
package calculator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Knetic/govaluate"

	"github.com/bububa/atomic-orchestrator/tools"
)

const (
	DefaultTitle       = "calculator"
	DefaultDescription = "Evaluate a mathematical expression. Supports arithmetic and exponentiation and functions such as sqrt and sin and pow. Use it instead of computing numbers yourself."
)

// Input Tool for performing calculations.
type Input struct {
	// Expression Mathematical expression to evaluate. For example, '2 + 2'.
	Expression string `json:"expression" jsonschema:"title=expression,description=Mathematical expression to evaluate. For example '2 + 2'." validate:"required"`
	// Params represents expressions's parameters
	Params map[string]float64 `json:"params,omitempty" jsonschema:"title=params,description=Named numeric parameters referenced by the expression."`
}

func NewInput(exp string, params map[string]float64) *Input {
	return &Input{
		Expression: exp,
		Params:     params,
	}
}

func (s Input) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// Output Schema for the output of the calculator tool
type Output struct {
	// Result Result of the calculation
	Result any `json:"result" jsonschema:"title=result,description=Result of the calculation."`
}

func NewOutput(result any) *Output {
	return &Output{
		Result: result,
	}
}

type Tool struct {
	tools.Config
}

var _ tools.Tool[Input, Output] = (*Tool)(nil)

func New(opts ...tools.Option) *Tool {
	ret := new(Tool)
	for _, opt := range opts {
		opt(&ret.Config)
	}
	if ret.Title() == "" {
		ret.SetTitle(DefaultTitle)
	}
	if ret.Description() == "" {
		ret.SetDescription(DefaultDescription)
	}
	return ret
}

// Run evaluates the expression with the given parameters.
func (t *Tool) Run(ctx context.Context, input *Input) (*Output, error) {
	exp, err := govaluate.NewEvaluableExpressionWithFunctions(input.Expression, functions)
	if err != nil {
		return nil, err
	}
	params := make(map[string]any, len(input.Params)+len(constParams))
	for k, v := range input.Params {
		params[k] = v
	}
	for k, v := range constParams {
		if _, ok := params[k]; ok {
			continue
		}
		params[k] = v
	}
	result, err := exp.Evaluate(params)
	if err != nil {
		return nil, err
	}
	if v, ok := result.(float64); ok && (math.IsNaN(v) || math.IsInf(v, 0)) {
		return nil, fmt.Errorf("expression %q has no finite result", input.Expression)
	}
	return NewOutput(result), nil
}
