package calculator

import (
	"errors"
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
)

var errArgs = errors.New("invalid function arguments")

func unary(name string, fn func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s expects 1 argument, got %d", errArgs, name, len(args))
		}
		v, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a number", errArgs, name)
		}
		return fn(v), nil
	}
}

func binary(name string, fn func(float64, float64) float64) govaluate.ExpressionFunction {
	return func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: %s expects 2 arguments, got %d", errArgs, name, len(args))
		}
		a, ok1 := args[0].(float64)
		b, ok2 := args[1].(float64)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: %s expects numbers", errArgs, name)
		}
		return fn(a, b), nil
	}
}

// functions available inside expressions
var functions = map[string]govaluate.ExpressionFunction{
	"abs":   unary("abs", math.Abs),
	"ceil":  unary("ceil", math.Ceil),
	"floor": unary("floor", math.Floor),
	"round": unary("round", math.Round),
	"sqrt":  unary("sqrt", math.Sqrt),
	"cbrt":  unary("cbrt", math.Cbrt),
	"exp":   unary("exp", math.Exp),
	"ln":    unary("ln", math.Log),
	"log10": unary("log10", math.Log10),
	"log2":  unary("log2", math.Log2),
	"sin":   unary("sin", math.Sin),
	"cos":   unary("cos", math.Cos),
	"tan":   unary("tan", math.Tan),
	"asin":  unary("asin", math.Asin),
	"acos":  unary("acos", math.Acos),
	"atan":  unary("atan", math.Atan),
	"pow":   binary("pow", math.Pow),
	"max":   binary("max", math.Max),
	"min":   binary("min", math.Min),
	"mod":   binary("mod", math.Mod),
}
