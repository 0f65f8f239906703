package inject

import (
	"sort"

	"github.com/jarvis-hub/jarvis/internal/domain/shared"
)

// Deps holds the resolved dependency values for one handler or provider call.
type Deps struct {
	owner  string
	values map[string]any
}

func newDeps(owner string, size int) *Deps {
	return &Deps{owner: owner, values: make(map[string]any, size)}
}

// Get returns the dependency bound to param as T.
// A missing binding or a value of another type is a ConfigurationError.
func Get[T any](d *Deps, param string) (T, error) {
	var zero T
	if d == nil {
		return zero, shared.NewConfigurationError("Get", "no dependencies resolved, %q requested", param)
	}
	raw, ok := d.values[param]
	if !ok {
		return zero, shared.NewConfigurationError("Get", "%s: no binding for parameter %q", d.owner, param)
	}
	if raw == nil {
		return zero, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, shared.NewConfigurationError("Get", "%s: parameter %q is %T, not %T", d.owner, param, raw, zero)
	}
	return v, nil
}

// Has reports whether param was resolved.
func (d *Deps) Has(param string) bool {
	if d == nil {
		return false
	}
	_, ok := d.values[param]
	return ok
}

// Params returns the resolved parameter names, sorted.
func (d *Deps) Params() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.values))
	for k := range d.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Explicit is a caller-supplied parameter value. It takes precedence over
// the handler's binding for the same parameter.
type Explicit struct {
	Param string
	Value any
}

// With supplies an explicit parameter value.
func With(param string, value any) Explicit {
	return Explicit{Param: param, Value: value}
}
