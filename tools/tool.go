package tools

import (
	"context"
)

type ITool interface {
	SetTitle(string)
	Title() string
	SetDescription(string)
	Description() string
	SetStartHook(fn func(context.Context, ITool, any))
	SetEndHook(fn func(context.Context, ITool, any, any))
	SetErrorHook(fn func(context.Context, ITool, any, error))
	StartHook() func(context.Context, ITool, any)
	EndHook() func(context.Context, ITool, any, any)
	ErrorHook() func(context.Context, ITool, any, error)
}

// Tool is a deterministic capability the model can call. I is the input schema
// reflected into the tool's declared input schema, O is the output payload.
type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}
