// Package router dispatches messages through middleware routers, own routes
// and child routers.
//
// Dispatch runs in three passes:
//
//  1. Middleware: every matching route of every middleware router runs.
//  2. Own routes: matching routes run in registration order; the first
//     success ends the dispatch.
//  3. Child routers: only if no own route succeeded; same rules as 2.
//
// A soft routing error (shared.SoftRoutingError) is logged and the next
// candidate is tried. Any other error sends one failure notice through
// msg.Answer and is returned from Dispatch, aborting the remaining passes.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jarvis-hub/jarvis/internal/application/inject"
	"github.com/jarvis-hub/jarvis/internal/domain/message"
	"github.com/jarvis-hub/jarvis/internal/domain/shared"
)

const tracerName = "github.com/jarvis-hub/jarvis/internal/application/router"

// DefaultFailureNotice is sent to the user when dispatch aborts.
const DefaultFailureNotice = "Unexpected error, please try again later."

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the router.
type Config struct {
	// Name identifies the router in logs and spans.
	Name string

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables debug logging for routing decisions.
	Debug bool

	// FailureNotice is the text sent through msg.Answer when dispatch aborts.
	FailureNotice string

	// Tracer for dispatch spans. Defaults to the global otel tracer.
	Tracer trace.Tracer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:          name,
		FailureNotice: DefaultFailureNotice,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// ══════════════════════════════════════════════════════════════════════════════

// Route is a filter with its wrapped handler.
type Route struct {
	Name    string
	Filter  Filter
	Handler *inject.Handler
}

func (r Route) matches(msg *message.Message) bool {
	return r.Filter == nil || r.Filter(msg)
}

// Router owns ordered routes, child routers and middleware routers.
// Registration happens once at start-up; after Freeze the lists are read
// without locks by concurrent dispatches.
type Router struct {
	config Config
	logger *slog.Logger
	tracer trace.Tracer

	routes      []Route
	children    []*Router
	middlewares []*Router

	frozen atomic.Bool
	stats  Stats
}

// New creates an empty router.
func New(config Config) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Name == "" {
		config.Name = "router"
	}
	if config.FailureNotice == "" {
		config.FailureNotice = DefaultFailureNotice
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer(tracerName)
	}

	return &Router{
		config: config,
		logger: config.Logger.With("router", config.Name),
		tracer: config.Tracer,
	}
}

// Name returns the router name.
func (r *Router) Name() string {
	return r.config.Name
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION METHODS
// ══════════════════════════════════════════════════════════════════════════════

// Register wraps fn with its bindings and appends it as a route.
// Bindings are validated here, so a bad declaration fails at start-up.
func (r *Router) Register(name string, filter Filter, fn inject.HandlerFunc, bindings ...inject.Binding) error {
	h, err := inject.Wrap(r.config.Name+"."+name, fn, bindings...)
	if err != nil {
		return err
	}
	return r.RegisterHandler(name, filter, h)
}

// RegisterHandler appends an already wrapped handler as a route.
func (r *Router) RegisterHandler(name string, filter Filter, h *inject.Handler) error {
	if err := r.checkMutable("RegisterHandler"); err != nil {
		return err
	}
	if h == nil {
		return shared.NewConfigurationError("RegisterHandler", "%s: route %q has no handler", r.config.Name, name)
	}

	r.routes = append(r.routes, Route{
		Name:    name,
		Filter:  filter,
		Handler: h.WithLogger(r.logger),
	})

	if r.config.Debug {
		r.logger.Debug("registered route", "route", name, "position", len(r.routes))
	}
	return nil
}

// IncludeRouter appends a child router consulted after own routes.
func (r *Router) IncludeRouter(child *Router) error {
	if err := r.checkInclude("IncludeRouter", child); err != nil {
		return err
	}
	r.children = append(r.children, child)

	if r.config.Debug {
		r.logger.Debug("included router", "child", child.Name())
	}
	return nil
}

// IncludeMiddleware appends a middleware router whose routes run before
// own routes on every dispatch.
func (r *Router) IncludeMiddleware(mw *Router) error {
	if err := r.checkInclude("IncludeMiddleware", mw); err != nil {
		return err
	}
	r.middlewares = append(r.middlewares, mw)

	if r.config.Debug {
		r.logger.Debug("included middleware", "middleware", mw.Name())
	}
	return nil
}

// Freeze ends registration for this router and every router it includes.
func (r *Router) Freeze() {
	if r.frozen.Swap(true) {
		return
	}
	for _, mw := range r.middlewares {
		mw.Freeze()
	}
	for _, child := range r.children {
		child.Freeze()
	}
}

// Routes returns a copy of the own routes in priority order.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Stats returns dispatch counters.
func (r *Router) Stats() StatsSnapshot {
	return r.stats.Snapshot()
}

func (r *Router) checkMutable(op string) error {
	if r.frozen.Load() {
		return shared.NewConfigurationError(op, "router %q is frozen", r.config.Name)
	}
	return nil
}

func (r *Router) checkInclude(op string, other *Router) error {
	if err := r.checkMutable(op); err != nil {
		return err
	}
	if other == nil {
		return shared.NewConfigurationError(op, "%s: nil router", r.config.Name)
	}
	if other == r {
		return shared.NewConfigurationError(op, "router %q cannot include itself", r.config.Name)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH
// ══════════════════════════════════════════════════════════════════════════════

// Dispatch routes msg. It returns nil when a route handled the message or
// when nothing matched; it returns the error of the first route that failed
// with a non-soft error.
func (r *Router) Dispatch(ctx context.Context, msg *message.Message) error {
	dispatchID := uuid.NewString()
	ctx, span := r.tracer.Start(ctx, "router.dispatch", trace.WithAttributes(
		attribute.String("dispatch.id", dispatchID),
		attribute.String("router.name", r.config.Name),
		attribute.Int64("message.user_id", msg.UserID),
		attribute.Int64("message.chat_id", msg.ChatID),
	))
	defer span.End()

	log := r.logger.With(
		"dispatch_id", dispatchID,
		"user_id", msg.UserID,
		"chat_id", msg.ChatID,
	)
	r.stats.dispatched.Add(1)

	// 1. Middleware: all matching routes run, soft errors are swallowed.
	for _, mw := range r.middlewares {
		for _, route := range mw.routes {
			if !route.matches(msg) {
				continue
			}
			err := r.invoke(ctx, log, mw, route, msg)
			if err == nil {
				continue
			}
			if shared.IsSoftRouting(err) {
				r.soft(log, mw, route, err)
				continue
			}
			return r.abort(ctx, log, span, mw, route, msg, err)
		}
	}

	// 2. Own routes, then 3. child routers: first success wins.
	candidates := append([]*Router{r}, r.children...)
	for _, owner := range candidates {
		for _, route := range owner.routes {
			if !route.matches(msg) {
				continue
			}
			err := r.invoke(ctx, log, owner, route, msg)
			if err == nil {
				r.stats.handled.Add(1)
				span.SetAttributes(attribute.String("route.handled_by", owner.Name()+"."+route.Name))
				return nil
			}
			if shared.IsSoftRouting(err) {
				r.soft(log, owner, route, err)
				continue
			}
			return r.abort(ctx, log, span, owner, route, msg, err)
		}
	}

	r.stats.unmatched.Add(1)
	span.SetAttributes(attribute.Bool("route.unmatched", true))
	if r.config.Debug {
		log.Debug("no route handled message", "text", msg.Text)
	}
	return nil
}

func (r *Router) invoke(ctx context.Context, log *slog.Logger, owner *Router, route Route, msg *message.Message) error {
	ctx, span := r.tracer.Start(ctx, "router.route", trace.WithAttributes(
		attribute.String("route.router", owner.Name()),
		attribute.String("route.name", route.Name),
	))
	defer span.End()

	if r.config.Debug {
		log.Debug("handle message", "route", route.Name, "owner", owner.Name(), "message", msg.String())
	}

	err := route.Handler.Call(ctx, msg)
	if err != nil && !shared.IsSoftRouting(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Router) soft(log *slog.Logger, owner *Router, route Route, err error) {
	r.stats.soft.Add(1)
	log.Info("route declined message",
		"route", route.Name,
		"owner", owner.Name(),
		"reason", err.Error(),
	)
}

// abort delivers the failure notice once and returns err to the caller.
func (r *Router) abort(
	ctx context.Context,
	log *slog.Logger,
	span trace.Span,
	owner *Router,
	route Route,
	msg *message.Message,
	err error,
) error {
	r.stats.failed.Add(1)
	span.RecordError(err)
	span.SetStatus(codes.Error, "dispatch aborted")

	log.Error("route failed, dispatch aborted",
		"route", route.Name,
		"owner", owner.Name(),
		"error", err,
	)

	// the notice must go out even when the dispatch deadline has passed
	if answerErr := msg.Reply(context.WithoutCancel(ctx), r.config.FailureNotice); answerErr != nil {
		log.Warn("failed to deliver failure notice", "error", answerErr)
	}

	return fmt.Errorf("%s.%s: %w", owner.Name(), route.Name, err)
}
