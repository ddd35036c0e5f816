// Package procedure implements the typed procedure execution engine: an
// immutable builder for assembling procedures from an input schema, an
// ordered middleware chain and a terminal handler, plus the executor
// that drives validation, middleware composition and result resolution.
package procedure

import (
	"context"
	"net/http"

	"github.com/gremlinhq/gremlin/internal/auth"
	"github.com/gremlinhq/gremlin/internal/schema"
)

// Router maps procedure names to procedures for RPC dispatch. It is
// assembled once at startup and read-only afterward.
type Router map[string]*Procedure

// ExecutionContext is the ambient per-request data the HTTP layer hands
// to the executor. It seeds the merged context visible to handlers.
type ExecutionContext struct {
	Request *http.Request
	Session auth.Session
	Headers http.Header
}

// Context is the merged object of ambient request data plus every
// middleware contribution, visible to the handler. Middleware fragments
// shallow-merge into it, later keys overriding earlier ones.
type Context struct {
	values map[string]any
}

func newContext(ec ExecutionContext) *Context {
	return &Context{values: map[string]any{
		"request": ec.Request,
		"session": ec.Session,
		"headers": ec.Headers,
	}}
}

func (c *Context) merge(fragment map[string]any) {
	for k, v := range fragment {
		c.values[k] = v
	}
}

// Get returns the named context value and whether it is present.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Value returns the named context value, or nil.
func (c *Context) Value(key string) any {
	return c.values[key]
}

// Request returns the seeded HTTP request, or nil if a middleware
// replaced it with something else.
func (c *Context) Request() *http.Request {
	r, _ := c.values["request"].(*http.Request)
	return r
}

// Session returns the seeded session. The zero session is returned if a
// middleware replaced it with a foreign value.
func (c *Context) Session() auth.Session {
	s, _ := c.values["session"].(auth.Session)
	return s
}

// Headers returns the seeded request headers, or nil.
func (c *Context) Headers() http.Header {
	h, _ := c.values["headers"].(http.Header)
	return h
}

// Request bundles the validated input and merged context passed to a
// handler.
type Request struct {
	Input any
	Ctx   *Context
}

// HandlerFunc is a procedure's terminal business-logic function. The
// returned value may be a plain value, a *Future, a Thunk, or a value
// claimed by the configured effect runtime.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// MiddlewareRequest carries the validated input to a middleware step.
type MiddlewareRequest struct {
	Input any
}

// Middleware contributes a context fragment before the handler runs.
// The fragment must resolve to a map[string]any or nil; anything else is
// a contract violation surfaced as an INTERNAL error.
type Middleware func(ctx context.Context, req MiddlewareRequest) (any, error)

// Procedure is an immutable callable unit: an optional input schema, an
// ordered middleware chain and a terminal handler. Procedures are built
// through Builder and never change afterward.
type Procedure struct {
	schema     schema.Schema
	middleware []Middleware
	handler    HandlerFunc
}

// Schema returns the procedure's input schema, or nil.
func (p *Procedure) Schema() schema.Schema {
	return p.schema
}

// Middleware returns a copy of the procedure's middleware chain in
// registration order.
func (p *Procedure) Middleware() []Middleware {
	out := make([]Middleware, len(p.middleware))
	copy(out, p.middleware)
	return out
}

// Builder assembles a Procedure. Builder values are immutable: Input and
// Use return a new builder and leave the receiver untouched, so
// intermediate builder states can be shared and forked safely.
type Builder struct {
	schema     schema.Schema
	middleware []Middleware
}

// New returns an empty procedure builder.
func New() Builder {
	return Builder{}
}

// Input attaches the input schema. Calling Input again replaces the
// earlier schema: the last call wins.
func (b Builder) Input(s schema.Schema) Builder {
	b.schema = s
	return b
}

// Use appends one middleware step to the chain. The previous chain is
// copied, never shared or overwritten, so earlier builder values keep
// their own sequences.
func (b Builder) Use(mw Middleware) Builder {
	chain := make([]Middleware, len(b.middleware), len(b.middleware)+1)
	copy(chain, b.middleware)
	b.middleware = append(chain, mw)
	return b
}

// Handler finalizes the builder into an immutable Procedure capturing
// the current schema, the accumulated middleware chain and fn.
func (b Builder) Handler(fn HandlerFunc) *Procedure {
	chain := make([]Middleware, len(b.middleware))
	copy(chain, b.middleware)
	return &Procedure{schema: b.schema, middleware: chain, handler: fn}
}
