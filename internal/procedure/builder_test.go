package procedure

import (
	"context"
	"testing"

	"github.com/gremlinhq/gremlin/internal/schema"
)

func noopHandler(ctx context.Context, req Request) (any, error) {
	return nil, nil
}

func fragment(key string, val any) Middleware {
	return func(ctx context.Context, req MiddlewareRequest) (any, error) {
		return map[string]any{key: val}, nil
	}
}

func TestBuilderUseAppendsNotOverwrites(t *testing.T) {
	m1 := fragment("a", 1)
	m2 := fragment("b", 2)

	p := New().Use(m1).Use(m2).Handler(noopHandler)

	chain := p.Middleware()
	if len(chain) != 2 {
		t.Fatalf("middleware chain length = %d, want 2", len(chain))
	}

	// Order check: run the chain and confirm registration order.
	var order []string
	ordered := New().
		Use(func(ctx context.Context, req MiddlewareRequest) (any, error) {
			order = append(order, "first")
			return nil, nil
		}).
		Use(func(ctx context.Context, req MiddlewareRequest) (any, error) {
			order = append(order, "second")
			return nil, nil
		}).
		Handler(noopHandler)
	if _, err := Execute(context.Background(), ordered, nil, ExecutionContext{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("middleware order = %v, want [first second]", order)
	}
}

func TestBuilderImmutability(t *testing.T) {
	base := New().Use(fragment("a", 1))

	withSecond := base.Use(fragment("b", 2))
	withThird := base.Use(fragment("c", 3))

	if got := len(base.Handler(noopHandler).Middleware()); got != 1 {
		t.Errorf("base chain length = %d, want 1 (later calls must not mutate it)", got)
	}
	if got := len(withSecond.Handler(noopHandler).Middleware()); got != 2 {
		t.Errorf("forked chain length = %d, want 2", got)
	}
	if got := len(withThird.Handler(noopHandler).Middleware()); got != 2 {
		t.Errorf("second fork chain length = %d, want 2", got)
	}
}

func TestBuilderForkedChainsDiverge(t *testing.T) {
	// Two forks of one builder must not share backing storage: appending
	// to one fork cannot leak into the other.
	base := New().Use(fragment("seed", 0))
	forkA := base.Use(fragment("a", 1))
	forkB := base.Use(fragment("b", 2))

	pa := forkA.Handler(noopHandler)
	pb := forkB.Handler(noopHandler)

	runAndRecord := func(p *Procedure) *Context {
		mctx := newContext(ExecutionContext{})
		for _, mw := range p.Middleware() {
			out, _ := mw(context.Background(), MiddlewareRequest{})
			if frag, ok := out.(map[string]any); ok {
				mctx.merge(frag)
			}
		}
		return mctx
	}

	ca := runAndRecord(pa)
	if _, ok := ca.Get("b"); ok {
		t.Error("fork A observed fork B's middleware")
	}
	cb := runAndRecord(pb)
	if _, ok := cb.Get("a"); ok {
		t.Error("fork B observed fork A's middleware")
	}
}

func TestBuilderInputLastWins(t *testing.T) {
	first := schema.NewObject().Field("first", schema.String().WithRequired())
	second := schema.NewObject().Field("second", schema.String().WithRequired())

	p := New().Input(first).Input(second).Handler(noopHandler)

	if _, err := p.Schema().Parse(map[string]any{"second": "ok"}); err != nil {
		t.Errorf("last schema should win, got %v", err)
	}
	if _, err := p.Schema().Parse(map[string]any{"first": "ok"}); err == nil {
		t.Error("first schema should have been replaced")
	}
}

func TestBuilderNoSchemaNoMiddleware(t *testing.T) {
	p := New().Handler(noopHandler)
	if p.Schema() != nil {
		t.Error("expected nil schema")
	}
	if len(p.Middleware()) != 0 {
		t.Error("expected empty middleware chain")
	}
}
