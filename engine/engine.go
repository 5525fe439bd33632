// Package engine implements the workflow orchestration engine: a registry of
// workflow definitions, an open registry of named action executors, and the
// state-machine interpreter that starts instances, advances them on external
// events and runs saga compensation in reverse execution order when an action
// fails or a FAIL state is entered.
//
// The engine is a library. It owns no goroutines, opens no connections and
// has no shutdown step; all state lives in the configured instance store
// (in-memory by default). A single Engine value is safe for concurrent use
// from many goroutines: operations on the same instance are serialized by a
// per-instance mutex, operations on different instances proceed in parallel.
//
// Every operation returns a result.Result: Ok with an instance snapshot, or
// a typed Problem. Action failures are not surfaced as problems — the engine
// compensates and returns the compensated snapshot, so callers inspect
// Snapshot.Status to learn the logical outcome.
//
// Usage:
//
//	eng := engine.New()
//	def, _ := workflow.NewBuilder("order", "Order fulfillment").
//		State("reserve", workflow.KindTask,
//			workflow.WithAction("reserve-stock"),
//			workflow.WithCompensation("release-stock")).
//		State("shipped", workflow.KindEnd).
//		Transition("reserve", "shipped", "ship").
//		Build()
//	eng.RegisterDefinition(ctx, def)
//	eng.RegisterAction("reserve-stock", reserveStock)
//	res := eng.StartWorkflow(ctx, "order", instance.Context{"sku": "abc"})
package engine

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/flowstate-io/flowstate/condition"
	"github.com/flowstate-io/flowstate/hooks"
	"github.com/flowstate-io/flowstate/instance"
	inmemstore "github.com/flowstate-io/flowstate/instance/inmem"
	"github.com/flowstate-io/flowstate/result"
	"github.com/flowstate-io/flowstate/telemetry"
	"github.com/flowstate-io/flowstate/workflow"
)

type (
	// Action is a named user-supplied executor invoked when an instance
	// enters a state (or, for compensations, during rollback). It receives
	// the executor name and a copy of the current instance context, and
	// returns either a context delta to merge (last-write-wins) or a
	// Problem. Actions must not re-enter the engine for the same instance;
	// doing so deadlocks by design of the per-instance lock.
	Action func(ctx context.Context, name string, wctx instance.Context) result.Result[instance.Context]

	// Engine executes workflow definitions. Construct with New; the zero
	// value is not usable.
	Engine struct {
		registry *registry

		store instance.Store
		locks *lockTable

		eval    condition.Evaluator
		ids     IDGenerator
		clock   Clock
		logger  telemetry.Logger
		metrics telemetry.Metrics
		tracer  telemetry.Tracer
		bus     hooks.Bus
		limiter *rate.Limiter
	}

	// Option configures an Engine.
	Option func(*Engine)
)

// New constructs an Engine. Without options it uses an in-memory instance
// store, random UUID instance ids, the system clock, the default condition
// evaluator (unguarded transitions only), an event bus with no subscribers
// and no-op telemetry.
func New(opts ...Option) *Engine {
	e := &Engine{
		registry: newRegistry(),
		store:    inmemstore.New(),
		locks:    newLockTable(),
		eval:     condition.Default{},
		ids:      NewUUIDGenerator(),
		clock:    NewSystemClock(),
		logger:   telemetry.NewNoopLogger(),
		metrics:  telemetry.NewNoopMetrics(),
		tracer:   telemetry.NewNoopTracer(),
		bus:      hooks.NewBus(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithStore replaces the instance store. Durable deployments pass
// features/store/redis here.
func WithStore(s instance.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithEvaluator replaces the condition evaluator used for transition guards.
func WithEvaluator(eval condition.Evaluator) Option {
	return func(e *Engine) { e.eval = eval }
}

// WithIDs replaces the instance id generator.
func WithIDs(ids IDGenerator) Option {
	return func(e *Engine) { e.ids = ids }
}

// WithClock replaces the engine clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger replaces the structured logger.
func WithLogger(l telemetry.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics replaces the metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer replaces the tracer used around executor invocations.
func WithTracer(t telemetry.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithBus replaces the event bus the engine publishes hook events to.
func WithBus(b hooks.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithStartLimiter throttles StartWorkflow with the given rate limiter. When
// the limiter has no capacity, StartWorkflow fails with WORKFLOW.THROTTLED
// and no instance is created.
func WithStartLimiter(l *rate.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// Bus returns the engine's event bus so callers can register subscribers.
func (e *Engine) Bus() hooks.Bus { return e.bus }

// RegisterDefinition validates and stores a workflow definition under its id,
// silently overwriting any prior definition with the same id. Invalid
// definitions fail with WORKFLOW.DEFINITION_INVALID. Overlapping transitions
// (same from and event) are legal but logged as a warning: at runtime the
// first declared match wins.
func (e *Engine) RegisterDefinition(ctx context.Context, def workflow.Definition) result.Result[result.Unit] {
	if err := workflow.Validate(def); err != nil {
		return result.FailWith[result.Unit](CodeDefinitionInvalid, result.CategoryBusiness, result.SeverityError, "%s", err.Error())
	}
	for _, t := range workflow.DuplicateTransitions(def) {
		e.logger.Warn(ctx, "overlapping transitions; first declared match wins",
			"definition_id", def.ID, "from", t.From, "event", t.Event)
	}
	e.registry.putDefinition(def)
	e.logger.Info(ctx, "workflow definition registered",
		"definition_id", def.ID, "states", len(def.States), "transitions", len(def.Transitions))
	return result.OK(result.Unit{})
}

// RegisterAction stores a named action executor, overwriting any prior
// executor with the same name. The registry is open: executors may be
// registered after definitions that reference them, and compensations are
// looked up in the same registry as actions.
func (e *Engine) RegisterAction(name string, fn Action) result.Result[result.Unit] {
	if name == "" {
		return result.FailWith[result.Unit](CodeExecutorInvalid, result.CategoryBusiness, result.SeverityError, "executor name is required")
	}
	if fn == nil {
		return result.FailWith[result.Unit](CodeExecutorInvalid, result.CategoryBusiness, result.SeverityError, "executor function is required")
	}
	e.registry.putAction(name, fn)
	return result.OK(result.Unit{})
}
