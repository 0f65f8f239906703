package inject

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jarvis-hub/jarvis/internal/domain/message"
	"github.com/jarvis-hub/jarvis/internal/domain/shared"
)

var errNilHandler = shared.NewConfigurationError("Wrap", "nil handler function")

// HandlerFunc handles a message with its resolved dependencies.
type HandlerFunc func(ctx context.Context, msg *message.Message, deps *Deps) error

// TaskFunc is a message-less unit of work, e.g. a CLI task.
type TaskFunc func(ctx context.Context, deps *Deps) error

// Handler is a HandlerFunc wrapped with its validated bindings.
// Every Call gets a fresh Scope that is closed before Call returns.
type Handler struct {
	name     string
	fn       HandlerFunc
	bindings []Binding
	logger   *slog.Logger
}

// Wrap validates bindings once and returns the invoker for fn.
func Wrap(name string, fn HandlerFunc, bindings ...Binding) (*Handler, error) {
	if fn == nil {
		return nil, fmt.Errorf("wrap %s: %w", name, errNilHandler)
	}
	if err := Validate(name, bindings); err != nil {
		return nil, err
	}
	return &Handler{
		name:     name,
		fn:       fn,
		bindings: cloneBindings(bindings),
		logger:   slog.Default(),
	}, nil
}

// MustWrap is like Wrap but panics on error. Use only for static wiring.
func MustWrap(name string, fn HandlerFunc, bindings ...Binding) *Handler {
	h, err := Wrap(name, fn, bindings...)
	if err != nil {
		panic(err)
	}
	return h
}

// WithLogger returns a copy of h that logs release failures to logger.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	if logger == nil {
		return h
	}
	cp := *h
	cp.logger = logger
	return &cp
}

// Name returns the handler name.
func (h *Handler) Name() string {
	return h.name
}

// Bindings returns a copy of the handler's bindings.
func (h *Handler) Bindings() []Binding {
	return cloneBindings(h.bindings)
}

// Call resolves dependencies, invokes the handler and always releases the
// scoped resources it opened. The handler's own error takes priority over
// release errors; release errors are returned only when the handler succeeded.
// A panic in the handler releases resources on the failure path and re-panics.
func (h *Handler) Call(ctx context.Context, msg *message.Message, explicit ...Explicit) (err error) {
	scope := NewScope(h.name, h.logger)

	defer func() {
		if rec := recover(); rec != nil {
			_ = scope.Close(fmt.Errorf("%s: panic: %v", h.name, rec))
			panic(rec)
		}
		if closeErr := scope.Close(err); err == nil {
			err = closeErr
		}
	}()

	deps, err := resolve(ctx, scope, h.name, h.bindings, explicitValues(explicit))
	if err != nil {
		return err
	}
	return h.fn(ctx, msg, deps)
}

// Invoke runs a task with the same resolve, call and release cycle as a
// message handler.
func Invoke(ctx context.Context, name string, fn TaskFunc, bindings ...Binding) error {
	if fn == nil {
		return fmt.Errorf("invoke %s: %w", name, errNilHandler)
	}
	h, err := Wrap(name, func(ctx context.Context, _ *message.Message, deps *Deps) error {
		return fn(ctx, deps)
	}, bindings...)
	if err != nil {
		return err
	}
	return h.Call(ctx, nil)
}

func explicitValues(explicit []Explicit) map[string]any {
	if len(explicit) == 0 {
		return nil
	}
	out := make(map[string]any, len(explicit))
	for _, e := range explicit {
		out[e.Param] = e.Value
	}
	return out
}
