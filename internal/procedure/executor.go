package procedure

import (
	"context"
	"fmt"

	"github.com/gremlinhq/gremlin/internal/errors"
)

// Executor runs procedures to completion. It is stateless apart from
// immutable configuration and safe for concurrent use.
type Executor struct {
	runtime EffectRuntime
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRuntime injects an effect runtime for result resolution.
func WithRuntime(rt EffectRuntime) ExecutorOption {
	return func(e *Executor) { e.runtime = rt }
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one procedure: input validation, then the middleware
// chain strictly in registration order, then the handler, resolving
// deferred results at every step.
//
// Errors from middleware and the handler propagate unmodified; the only
// rewrap the executor performs is turning a schema rejection into a
// VALIDATION error. Mapping foreign errors to INTERNAL is the HTTP
// boundary's job.
func (e *Executor) Execute(ctx context.Context, p *Procedure, rawInput any, ec ExecutionContext) (any, error) {
	if p == nil || p.handler == nil {
		return nil, errors.Internal("Procedure has no handler.", nil)
	}

	input := rawInput
	if p.schema != nil {
		parsed, err := p.schema.Parse(rawInput)
		if err != nil {
			return nil, errors.Validation("Input validation failed.", err)
		}
		input = parsed
	}

	mctx := newContext(ec)
	for _, mw := range p.middleware {
		out, err := mw(ctx, MiddlewareRequest{Input: input})
		if err != nil {
			return nil, err
		}
		resolved, err := resolve(ctx, e.runtime, out)
		if err != nil {
			return nil, err
		}
		if resolved == nil {
			continue
		}
		fragment, ok := resolved.(map[string]any)
		if !ok {
			return nil, errors.Internal(
				fmt.Sprintf("Middleware returned a non-object context fragment (%T).", resolved), nil)
		}
		mctx.merge(fragment)
	}

	out, err := p.handler(ctx, Request{Input: input, Ctx: mctx})
	if err != nil {
		return nil, err
	}
	return resolve(ctx, e.runtime, out)
}

// Execute runs a procedure on a default executor with no effect runtime.
func Execute(ctx context.Context, p *Procedure, rawInput any, ec ExecutionContext) (any, error) {
	return defaultExecutor.Execute(ctx, p, rawInput, ec)
}

var defaultExecutor = NewExecutor()
