package inject

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jarvis-hub/jarvis/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Validate checks a binding list and every provider reachable from it:
// non-empty unique parameter names, non-nil providers with a function, and
// no provider that depends on itself.
func Validate(owner string, bindings []Binding) error {
	return validate(owner, bindings, nil)
}

func validate(owner string, bindings []Binding, path []*Provider) error {
	seen := make(map[string]struct{}, len(bindings))
	for _, b := range bindings {
		if b.Param == "" {
			return shared.NewConfigurationError("Validate", "%s: binding with empty parameter name", owner)
		}
		if _, dup := seen[b.Param]; dup {
			return shared.NewConfigurationError("Validate", "%s: parameter %q bound twice", owner, b.Param)
		}
		seen[b.Param] = struct{}{}

		p := b.Provider
		if p == nil {
			return shared.NewConfigurationError("Validate", "%s: parameter %q has no provider", owner, b.Param)
		}
		if p.value == nil && p.scoped == nil {
			return shared.NewConfigurationError("Validate", "%s: provider %q has no function", owner, p.name)
		}
		if slices.Contains(path, p) {
			return shared.NewConfigurationError("Validate", "dependency cycle: %s", cyclePath(path, p))
		}

		next := append(path[:len(path):len(path)], p)
		if err := validate(p.name, p.bindings, next); err != nil {
			return err
		}
	}
	return nil
}

func cyclePath(path []*Provider, repeat *Provider) string {
	start := slices.Index(path, repeat)
	names := make([]string, 0, len(path)-start+1)
	for _, p := range path[start:] {
		names = append(names, p.name)
	}
	names = append(names, repeat.name)
	return strings.Join(names, " -> ")
}

// ══════════════════════════════════════════════════════════════════════════════
// RESOLUTION
// ══════════════════════════════════════════════════════════════════════════════

// resolve turns bindings into values. Explicit values win over bindings and
// are never passed down to nested providers. Scoped resources are recorded in
// scope; on error the caller must close scope.
func resolve(ctx context.Context, scope *Scope, owner string, bindings []Binding, explicit map[string]any) (*Deps, error) {
	deps := newDeps(owner, len(bindings)+len(explicit))
	for param, v := range explicit {
		deps.values[param] = v
	}

	for _, b := range bindings {
		if _, ok := explicit[b.Param]; ok {
			continue
		}
		v, err := resolveProvider(ctx, scope, b.Provider)
		if err != nil {
			return nil, err
		}
		deps.values[b.Param] = v
	}
	return deps, nil
}

func resolveProvider(ctx context.Context, scope *Scope, p *Provider) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.name, err)
	}

	deps, err := resolve(ctx, scope, p.name, p.bindings, nil)
	if err != nil {
		return nil, err
	}

	if p.kind == kindScoped {
		return scope.acquire(ctx, p, deps)
	}

	v, err := p.value(ctx, deps)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.name, err)
	}
	return v, nil
}
