// Package inject resolves handler dependencies and owns the lifecycle of
// scoped resources for a single handler invocation.
//
// A handler declares its dependencies as an explicit list of bindings:
//
//	h, err := inject.Wrap("links.find", findLinks,
//	    inject.Bind("links", providers.LinkService),
//	)
//
// Providers come in two flavours:
//
//   - Value providers return a value (possibly after blocking I/O).
//   - Scoped providers are single-yield push iterators. Code before yield
//     acquires the resource, code after yield releases it. yield reports
//     whether the handler succeeded, so a provider can commit or roll back.
//
// Both flavours may declare their own bindings, resolved recursively.
package inject

import (
	"context"
	"fmt"
	"reflect"
)

type providerKind int

const (
	kindValue providerKind = iota
	kindScoped
)

func (k providerKind) String() string {
	if k == kindScoped {
		return "scoped"
	}
	return "value"
}

// Binding binds a parameter name to a provider.
type Binding struct {
	Param    string
	Provider *Provider
}

// Bind creates a binding.
func Bind(param string, p *Provider) Binding {
	return Binding{Param: param, Provider: p}
}

// Provider produces a dependency value. Create one with Value or Scoped.
// A Provider is immutable after construction and safe for concurrent use.
type Provider struct {
	name     string
	kind     providerKind
	typ      reflect.Type
	bindings []Binding
	value    func(ctx context.Context, deps *Deps) (any, error)
	scoped   func(ctx context.Context, deps *Deps, yield func(any) bool) error
}

// Value creates a value provider.
func Value[T any](name string, fn func(ctx context.Context, deps *Deps) (T, error), bindings ...Binding) *Provider {
	p := &Provider{
		name:     name,
		kind:     kindValue,
		typ:      reflect.TypeFor[T](),
		bindings: cloneBindings(bindings),
	}
	if fn != nil {
		p.value = func(ctx context.Context, deps *Deps) (any, error) {
			v, err := fn(ctx, deps)
			return v, err
		}
	}
	return p
}

// Scoped creates a scoped provider. fn must call yield exactly once.
//
//	inject.Scoped("db", func(ctx context.Context, _ *inject.Deps, yield func(pgx.Tx) bool) error {
//	    tx, err := pool.Begin(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    if !yield(tx) {
//	        return tx.Rollback(ctx)
//	    }
//	    return tx.Commit(ctx)
//	})
func Scoped[T any](name string, fn func(ctx context.Context, deps *Deps, yield func(T) bool) error, bindings ...Binding) *Provider {
	p := &Provider{
		name:     name,
		kind:     kindScoped,
		typ:      reflect.TypeFor[T](),
		bindings: cloneBindings(bindings),
	}
	if fn != nil {
		p.scoped = func(ctx context.Context, deps *Deps, yield func(any) bool) error {
			return fn(ctx, deps, func(v T) bool { return yield(v) })
		}
	}
	return p
}

// Name returns the provider name used in logs and errors.
func (p *Provider) Name() string {
	return p.name
}

// IsScoped reports whether the provider owns a resource lifecycle.
func (p *Provider) IsScoped() bool {
	return p.kind == kindScoped
}

// Bindings returns a copy of the provider's own bindings.
func (p *Provider) Bindings() []Binding {
	return cloneBindings(p.bindings)
}

// String implements fmt.Stringer.
func (p *Provider) String() string {
	return fmt.Sprintf("%s provider %q (%s)", p.kind, p.name, p.typ)
}

func cloneBindings(bindings []Binding) []Binding {
	if len(bindings) == 0 {
		return nil
	}
	out := make([]Binding, len(bindings))
	copy(out, bindings)
	return out
}
