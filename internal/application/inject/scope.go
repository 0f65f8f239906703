package inject

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/jarvis-hub/jarvis/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCOPE
// ══════════════════════════════════════════════════════════════════════════════

// Scope records the scoped resources opened during one invocation and
// releases them in reverse order of acquisition. A Scope belongs to exactly
// one invocation and is not safe for concurrent use.
type Scope struct {
	owner  string
	logger *slog.Logger
	open   []*resource
	closed bool
}

// resource is an acquired scoped provider paused at its yield.
type resource struct {
	provider string
	next     func() (any, bool)
	stop     func()
	err      error // provider's return value, set when the iterator finishes
}

// NewScope creates an empty scope.
func NewScope(owner string, logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scope{owner: owner, logger: logger}
}

// Len returns the number of resources currently held.
func (s *Scope) Len() int {
	return len(s.open)
}

// acquire advances p to its yield and records it for release.
func (s *Scope) acquire(ctx context.Context, p *Provider, deps *Deps) (any, error) {
	if s.closed {
		return nil, shared.NewConfigurationError("Acquire", "%s: scope already closed, cannot open %q", s.owner, p.name)
	}

	r := &resource{provider: p.name}
	r.next, r.stop = iter.Pull(func(yield func(any) bool) {
		r.err = p.scoped(ctx, deps, yield)
	})

	v, ok := r.next()
	if !ok {
		r.stop()
		if r.err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.name, r.err)
		}
		return nil, shared.NewConfigurationError("Acquire", "scoped provider %q returned without yielding", p.name)
	}

	s.open = append(s.open, r)
	return v, nil
}

// Close releases every held resource in reverse order. handlerErr selects the
// release path: nil resumes providers with yield returning true, anything else
// with yield returning false. Every release runs even if an earlier one fails.
// Close is idempotent; only the first call releases.
func (s *Scope) Close(handlerErr error) error {
	if s.closed {
		return nil
	}
	s.closed = true

	success := handlerErr == nil
	var errs []error
	for i := len(s.open) - 1; i >= 0; i-- {
		r := s.open[i]
		if err := r.release(success); err != nil {
			s.logger.Warn("failed to release scoped resource",
				"owner", s.owner,
				"provider", r.provider,
				"handler_failed", !success,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	s.open = nil

	if len(errs) > 0 {
		return fmt.Errorf("%s: release resources: %w", s.owner, errors.Join(errs...))
	}
	return nil
}

// release resumes the provider after its yield. Stopping an exhausted
// iterator is a no-op.
func (r *resource) release(success bool) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("provider %s panicked on release: %v", r.provider, rec)
		}
	}()

	if !success {
		r.stop()
		return r.err
	}

	if _, more := r.next(); more {
		r.stop()
		return shared.NewConfigurationError("Release", "scoped provider %q yielded more than once", r.provider)
	}
	return r.err
}
