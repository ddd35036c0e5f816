package procedure

import (
	"context"
)

// Thunk is a deferred computation: it runs when the executor resolves
// it, not when it is created.
type Thunk func(ctx context.Context) (any, error)

// Future is the eagerly-started async counterpart of Thunk. Go starts
// the computation immediately; Await blocks until it finishes or the
// context is done.
type Future struct {
	done chan struct{}
	val  any
	err  error
}

// Go runs fn in a new goroutine and returns a Future for its result.
func Go(fn func() (any, error)) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn()
	}()
	return f
}

// Resolved returns an already-completed Future holding val.
func Resolved(val any) *Future {
	f := &Future{done: make(chan struct{}), val: val}
	close(f.done)
	return f
}

// Await blocks until the future completes or ctx is done.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EffectRuntime lets an external effect system plug its own deferred
// value representation into result resolution. When no runtime is
// configured that representation is simply never matched and values fall
// through to future/thunk/plain handling.
type EffectRuntime interface {
	// Claims reports whether v is a deferred value of this runtime.
	Claims(v any) bool
	// Run executes the deferred value to completion.
	Run(ctx context.Context, v any) (any, error)
}

// resolve normalizes a possibly-deferred value into a concrete one:
// effect-runtime values are run, futures awaited, thunks invoked, and
// anything else used as-is. Resolution recurses so a deferred value may
// itself yield another deferred value.
func resolve(ctx context.Context, rt EffectRuntime, v any) (any, error) {
	for {
		if rt != nil && rt.Claims(v) {
			out, err := rt.Run(ctx, v)
			if err != nil {
				return nil, err
			}
			v = out
			continue
		}
		switch d := v.(type) {
		case *Future:
			out, err := d.Await(ctx)
			if err != nil {
				return nil, err
			}
			v = out
		case Thunk:
			out, err := d(ctx)
			if err != nil {
				return nil, err
			}
			v = out
		case func(ctx context.Context) (any, error):
			out, err := d(ctx)
			if err != nil {
				return nil, err
			}
			v = out
		default:
			return v, nil
		}
	}
}
