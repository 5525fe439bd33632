package engine_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/flowstate-io/flowstate/condition"
	exprcond "github.com/flowstate-io/flowstate/condition/expr"
	"github.com/flowstate-io/flowstate/engine"
	"github.com/flowstate-io/flowstate/hooks"
	"github.com/flowstate-io/flowstate/instance"
	"github.com/flowstate-io/flowstate/result"
	"github.com/flowstate-io/flowstate/workflow"
)

var testBase = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

// newTestEngine builds an engine with deterministic ids (inst-1, inst-2, ...)
// and a stepping clock (one second per reading).
func newTestEngine(t *testing.T, opts ...engine.Option) *engine.Engine {
	t.Helper()
	var (
		mu    sync.Mutex
		seq   int
		ticks int
	)
	base := []engine.Option{
		engine.WithIDs(engine.IDFunc(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return "inst-" + strconv.Itoa(seq)
		})),
		engine.WithClock(engine.ClockFunc(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			ticks++
			return testBase.Add(time.Duration(ticks) * time.Second)
		})),
	}
	return engine.New(append(base, opts...)...)
}

func simpleDefinition(t *testing.T) workflow.Definition {
	t.Helper()
	def, err := workflow.NewBuilder("simple", "Simple two-state linear").
		State("start", workflow.KindStart).
		State("end", workflow.KindEnd).
		Transition("start", "end", "complete").
		Build()
	require.NoError(t, err)
	return def
}

func okDelta(delta instance.Context) engine.Action {
	return func(_ context.Context, _ string, _ instance.Context) result.Result[instance.Context] {
		return result.OK(delta)
	}
}

func failAction(msg string) engine.Action {
	return func(_ context.Context, _ string, _ instance.Context) result.Result[instance.Context] {
		return result.FailWith[instance.Context]("TEST.BOOM", result.CategoryTechnical, result.SeverityError, "%s", msg)
	}
}

// eventRecorder captures published event types in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []hooks.Event
}

func (r *eventRecorder) HandleEvent(_ context.Context, evt hooks.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *eventRecorder) types() []hooks.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]hooks.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type()
	}
	return out
}

func TestSimpleLinearWorkflow(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	require.True(t, eng.RegisterDefinition(ctx, simpleDefinition(t)).IsOK())

	started := eng.StartWorkflow(ctx, "simple", instance.Context{"k": "v"})
	require.True(t, started.IsOK())
	snap := started.Value()
	require.Equal(t, instance.StatusRunning, snap.Status)
	require.Equal(t, "start", snap.CurrentState)
	require.Equal(t, instance.Context{"k": "v"}, snap.Context)
	require.Equal(t, []string{"start"}, snap.History)
	require.True(t, snap.CompletedAt.IsZero())

	advanced := eng.SendEvent(ctx, snap.ID, "complete", instance.Context{"r": "success"})
	require.True(t, advanced.IsOK())
	final := advanced.Value()
	require.Equal(t, instance.StatusCompleted, final.Status)
	require.Equal(t, "end", final.CurrentState)
	require.Equal(t, instance.Context{"k": "v", "r": "success"}, final.Context)
	require.Equal(t, []string{"start", "end"}, final.History)
	require.False(t, final.CompletedAt.IsZero())
	require.True(t, !final.CompletedAt.Before(final.CreatedAt))
}

func TestStartWorkflowUnknownDefinition(t *testing.T) {
	eng := newTestEngine(t)
	res := eng.StartWorkflow(context.Background(), "ghost", instance.Context{})
	require.True(t, res.IsFail())
	require.Equal(t, engine.CodeDefinitionNotFound, res.Problem().Code)
	require.Equal(t, result.CategoryNotFound, res.Problem().Category)
}

func TestSendEventNoTransition(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	require.True(t, eng.RegisterDefinition(ctx, simpleDefinition(t)).IsOK())
	started := eng.StartWorkflow(ctx, "simple", instance.Context{})
	require.True(t, started.IsOK())

	res := eng.SendEvent(ctx, started.Value().ID, "bogus", instance.Context{})
	require.True(t, res.IsFail())
	require.Equal(t, engine.CodeNoTransition, res.Problem().Code)
	require.Equal(t, result.CategoryBusiness, res.Problem().Category)
}

func TestSendEventUnknownInstance(t *testing.T) {
	eng := newTestEngine(t)
	res := eng.SendEvent(context.Background(), "nope", "complete", nil)
	require.True(t, res.IsFail())
	require.Equal(t, engine.CodeInstanceNotFound, res.Problem().Code)
}

func TestActionFailureAutoCompensates(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	rec := &eventRecorder{}
	_, err := eng.Bus().Register(rec)
	require.NoError(t, err)

	def, err := workflow.NewBuilder("sagafail", "Auto compensation").
		State("start", workflow.KindTask,
			workflow.WithAction("a"),
			workflow.WithCompensation("ca")).
		State("end", workflow.KindEnd).
		Build()
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())
	require.True(t, eng.RegisterAction("a", failAction("boom")).IsOK())
	require.True(t, eng.RegisterAction("ca", okDelta(instance.Context{"compensated": true})).IsOK())

	res := eng.StartWorkflow(ctx, "sagafail", instance.Context{})
	require.True(t, res.IsOK(), "action failure compensates, it does not fail the call")
	snap := res.Value()
	require.Equal(t, instance.StatusCompensated, snap.Status)
	require.Equal(t, true, snap.Context["compensated"])
	require.Equal(t, "Action failed: boom", snap.Error)
	require.False(t, snap.CompletedAt.IsZero())

	require.Equal(t, []hooks.EventType{
		hooks.EventInstanceStarted,
		hooks.EventStateEntered,
		hooks.EventActionFailed,
		hooks.EventInstanceTerminal, // FAILED
		hooks.EventCompensationStep,
		hooks.EventInstanceTerminal, // COMPENSATED
	}, rec.types())
}

func TestCompensateRunsInReverseOrder(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	def, err := workflow.NewBuilder("saga", "Reverse-order compensation").
		State("t1", workflow.KindTask, workflow.WithAction("a1"), workflow.WithCompensation("c1")).
		State("t2", workflow.KindTask, workflow.WithAction("a2"), workflow.WithCompensation("c2")).
		State("end", workflow.KindEnd).
		Transition("t1", "t2", "next").
		Transition("t2", "end", "finish").
		Build()
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())

	var (
		mu  sync.Mutex
		ran []string
	)
	record := func(name string) engine.Action {
		return func(_ context.Context, _ string, _ instance.Context) result.Result[instance.Context] {
			mu.Lock()
			ran = append(ran, name)
			mu.Unlock()
			return result.OK(instance.Context{})
		}
	}
	require.True(t, eng.RegisterAction("a1", okDelta(nil)).IsOK())
	require.True(t, eng.RegisterAction("a2", okDelta(nil)).IsOK())
	require.True(t, eng.RegisterAction("c1", record("c1")).IsOK())
	require.True(t, eng.RegisterAction("c2", record("c2")).IsOK())

	started := eng.StartWorkflow(ctx, "saga", instance.Context{})
	require.True(t, started.IsOK())
	id := started.Value().ID
	require.True(t, eng.SendEvent(ctx, id, "next", nil).IsOK())

	res := eng.Compensate(ctx, id)
	require.True(t, res.IsOK())
	require.Equal(t, instance.StatusCompensated, res.Value().Status)
	require.Equal(t, []string{"c2", "c1"}, ran)
}

func TestSendEventAfterTerminalLeavesInstanceUntouched(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	require.True(t, eng.RegisterDefinition(ctx, simpleDefinition(t)).IsOK())

	started := eng.StartWorkflow(ctx, "simple", instance.Context{"k": "v"})
	require.True(t, started.IsOK())
	id := started.Value().ID
	done := eng.SendEvent(ctx, id, "complete", nil)
	require.True(t, done.IsOK())
	before := eng.GetWorkflow(ctx, id)
	require.True(t, before.IsOK())

	res := eng.SendEvent(ctx, id, "complete", instance.Context{"x": 1})
	require.True(t, res.IsFail())
	require.Equal(t, engine.CodeAlreadyTerminal, res.Problem().Code)

	after := eng.GetWorkflow(ctx, id)
	require.True(t, after.IsOK())
	require.Equal(t, before.Value(), after.Value())
}

func TestCancelOverwritesReason(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	require.True(t, eng.RegisterDefinition(ctx, simpleDefinition(t)).IsOK())
	started := eng.StartWorkflow(ctx, "simple", nil)
	require.True(t, started.IsOK())
	id := started.Value().ID

	first := eng.Cancel(ctx, id, "operator request")
	require.True(t, first.IsOK())
	require.Equal(t, instance.StatusFailed, first.Value().Status)
	require.Equal(t, "Cancelled: operator request", first.Value().Error)
	require.False(t, first.Value().CompletedAt.IsZero())

	// Cancelling again, terminal or not, records the most recent reason.
	second := eng.Cancel(ctx, id, "timeout")
	require.True(t, second.IsOK())
	require.Equal(t, instance.StatusFailed, second.Value().Status)
	require.Equal(t, "Cancelled: timeout", second.Value().Error)
}

func TestCompensateTwiceRerunsWalk(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	def, err := workflow.NewBuilder("twice", "Repeat compensation").
		State("t1", workflow.KindTask, workflow.WithCompensation("c1")).
		State("end", workflow.KindEnd).
		Transition("t1", "end", "finish").
		Build()
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())

	var (
		mu   sync.Mutex
		runs int
	)
	require.True(t, eng.RegisterAction("c1", func(_ context.Context, _ string, _ instance.Context) result.Result[instance.Context] {
		mu.Lock()
		runs++
		mu.Unlock()
		return result.OK[instance.Context](nil)
	}).IsOK())

	started := eng.StartWorkflow(ctx, "twice", nil)
	require.True(t, started.IsOK())
	id := started.Value().ID

	first := eng.Compensate(ctx, id)
	require.True(t, first.IsOK())
	require.Equal(t, instance.StatusCompensated, first.Value().Status)
	second := eng.Compensate(ctx, id)
	require.True(t, second.IsOK())
	require.Equal(t, instance.StatusCompensated, second.Value().Status)
	require.Equal(t, 2, runs)
}

func TestStartWithSingleEndStateCompletesImmediately(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	def := workflow.Definition{
		ID:           "instant",
		Name:         "Instant completion",
		InitialState: "done",
		States:       []workflow.State{{Name: "done", Kind: workflow.KindEnd}},
	}
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())

	res := eng.StartWorkflow(ctx, "instant", nil)
	require.True(t, res.IsOK())
	require.Equal(t, instance.StatusCompleted, res.Value().Status)
	require.False(t, res.Value().CompletedAt.IsZero())
	require.Equal(t, []string{"done"}, res.Value().History)
}

func TestUnregisteredExecutorIsNoOp(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	def, err := workflow.NewBuilder("noop", "Unregistered executor").
		State("t1", workflow.KindTask, workflow.WithAction("not-wired-yet")).
		State("end", workflow.KindEnd).
		Transition("t1", "end", "finish").
		Build()
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())

	res := eng.StartWorkflow(ctx, "noop", instance.Context{"k": "v"})
	require.True(t, res.IsOK())
	require.Equal(t, instance.StatusRunning, res.Value().Status)
	require.Equal(t, instance.Context{"k": "v"}, res.Value().Context)

	final := eng.SendEvent(ctx, res.Value().ID, "finish", nil)
	require.True(t, final.IsOK())
	require.Equal(t, instance.StatusCompleted, final.Value().Status)
}

func TestEmptyInitialContextEqualsActionDeltas(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	def, err := workflow.NewBuilder("deltas", "Context from deltas only").
		State("t1", workflow.KindTask, workflow.WithAction("seed")).
		State("end", workflow.KindEnd).
		Transition("t1", "end", "finish").
		Build()
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())
	require.True(t, eng.RegisterAction("seed", okDelta(instance.Context{"seeded": true})).IsOK())

	res := eng.StartWorkflow(ctx, "deltas", instance.Context{})
	require.True(t, res.IsOK())
	require.Equal(t, instance.Context{"seeded": true}, res.Value().Context)
}

func TestGetWorkflowMatchesOperationSnapshot(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	require.True(t, eng.RegisterDefinition(ctx, simpleDefinition(t)).IsOK())

	started := eng.StartWorkflow(ctx, "simple", instance.Context{"k": "v"})
	require.True(t, started.IsOK())
	got := eng.GetWorkflow(ctx, started.Value().ID)
	require.True(t, got.IsOK())
	require.Equal(t, started.Value(), got.Value())

	advanced := eng.SendEvent(ctx, started.Value().ID, "complete", nil)
	require.True(t, advanced.IsOK())
	got = eng.GetWorkflow(ctx, started.Value().ID)
	require.True(t, got.IsOK())
	require.Equal(t, advanced.Value(), got.Value())
}

func TestDefaultEvaluatorRejectsGuardedTransitions(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	def, err := workflow.NewBuilder("guarded", "Guarded transition").
		State("start", workflow.KindStart).
		State("end", workflow.KindEnd).
		Transition("start", "end", "go", workflow.WithCondition(`context.amount > 100`)).
		Build()
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())

	started := eng.StartWorkflow(ctx, "guarded", instance.Context{"amount": 500})
	require.True(t, started.IsOK())
	res := eng.SendEvent(ctx, started.Value().ID, "go", nil)
	require.True(t, res.IsFail(), "guards fail closed without a condition evaluator")
	require.Equal(t, engine.CodeNoTransition, res.Problem().Code)
}

func TestExprEvaluatorRoutesByGuard(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, engine.WithEvaluator(exprcond.New()))
	def, err := workflow.NewBuilder("routing", "Guard routing").
		State("start", workflow.KindStart).
		State("high", workflow.KindEnd).
		State("low", workflow.KindEnd).
		Transition("start", "high", "review", workflow.WithCondition(`context.amount > 100`)).
		Transition("start", "low", "review").
		Build()
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())

	big := eng.StartWorkflow(ctx, "routing", instance.Context{"amount": 500})
	require.True(t, big.IsOK())
	res := eng.SendEvent(ctx, big.Value().ID, "review", nil)
	require.True(t, res.IsOK())
	require.Equal(t, "high", res.Value().CurrentState)

	small := eng.StartWorkflow(ctx, "routing", instance.Context{"amount": 7})
	require.True(t, small.IsOK())
	res = eng.SendEvent(ctx, small.Value().ID, "review", nil)
	require.True(t, res.IsOK())
	require.Equal(t, "low", res.Value().CurrentState)
}

func TestFirstDeclaredTransitionWins(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	def, err := workflow.NewBuilder("dup", "Overlapping transitions").
		State("start", workflow.KindStart).
		State("a", workflow.KindEnd).
		State("b", workflow.KindEnd).
		Transition("start", "a", "go").
		Transition("start", "b", "go").
		Build()
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())

	started := eng.StartWorkflow(ctx, "dup", nil)
	require.True(t, started.IsOK())
	res := eng.SendEvent(ctx, started.Value().ID, "go", nil)
	require.True(t, res.IsOK())
	require.Equal(t, "a", res.Value().CurrentState)
}

func TestStartWorkflowThrottled(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, engine.WithStartLimiter(rate.NewLimiter(rate.Limit(0), 0)))
	require.True(t, eng.RegisterDefinition(ctx, simpleDefinition(t)).IsOK())

	res := eng.StartWorkflow(ctx, "simple", nil)
	require.True(t, res.IsFail())
	require.Equal(t, engine.CodeThrottled, res.Problem().Code)
}

func TestRegisterDefinitionInvalid(t *testing.T) {
	eng := newTestEngine(t)
	res := eng.RegisterDefinition(context.Background(), workflow.Definition{ID: "bad"})
	require.True(t, res.IsFail())
	require.Equal(t, engine.CodeDefinitionInvalid, res.Problem().Code)
}

func TestRegisterActionInvalid(t *testing.T) {
	eng := newTestEngine(t)
	res := eng.RegisterAction("", okDelta(nil))
	require.True(t, res.IsFail())
	require.Equal(t, engine.CodeExecutorInvalid, res.Problem().Code)

	res = eng.RegisterAction("a", nil)
	require.True(t, res.IsFail())
	require.Equal(t, engine.CodeExecutorInvalid, res.Problem().Code)
}

func TestFailStateEntryCompensates(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	def, err := workflow.NewBuilder("failstate", "FAIL state entry").
		State("t1", workflow.KindTask, workflow.WithCompensation("undo")).
		State("rejected", workflow.KindFail).
		Transition("t1", "rejected", "reject").
		Build()
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())

	var undone bool
	require.True(t, eng.RegisterAction("undo", func(_ context.Context, _ string, _ instance.Context) result.Result[instance.Context] {
		undone = true
		return result.OK[instance.Context](nil)
	}).IsOK())

	started := eng.StartWorkflow(ctx, "failstate", nil)
	require.True(t, started.IsOK())
	res := eng.SendEvent(ctx, started.Value().ID, "reject", nil)
	require.True(t, res.IsOK())
	require.Equal(t, instance.StatusCompensated, res.Value().Status)
	require.Equal(t, "Workflow reached FAIL state", res.Value().Error)
	require.True(t, undone)
}

func TestFailStateWithoutCompensationsStillCompensated(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	def, err := workflow.NewBuilder("bare", "FAIL with nothing to undo").
		State("start", workflow.KindStart).
		State("rejected", workflow.KindFail).
		Transition("start", "rejected", "reject").
		Build()
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())

	started := eng.StartWorkflow(ctx, "bare", nil)
	require.True(t, started.IsOK())
	res := eng.SendEvent(ctx, started.Value().ID, "reject", nil)
	require.True(t, res.IsOK())
	require.Equal(t, instance.StatusCompensated, res.Value().Status)
}

func TestFailedCompensationStepDoesNotAbortWalk(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	def, err := workflow.NewBuilder("partial", "Partial compensation").
		State("t1", workflow.KindTask, workflow.WithCompensation("c1")).
		State("t2", workflow.KindTask, workflow.WithCompensation("c2")).
		State("end", workflow.KindEnd).
		Transition("t1", "t2", "next").
		Transition("t2", "end", "finish").
		Build()
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())

	var c1ran bool
	require.True(t, eng.RegisterAction("c1", func(_ context.Context, _ string, _ instance.Context) result.Result[instance.Context] {
		c1ran = true
		return result.OK[instance.Context](nil)
	}).IsOK())
	require.True(t, eng.RegisterAction("c2", failAction("undo failed")).IsOK())

	started := eng.StartWorkflow(ctx, "partial", nil)
	require.True(t, started.IsOK())
	id := started.Value().ID
	require.True(t, eng.SendEvent(ctx, id, "next", nil).IsOK())

	res := eng.Compensate(ctx, id)
	require.True(t, res.IsOK())
	require.Equal(t, instance.StatusCompensated, res.Value().Status)
	require.True(t, c1ran, "c1 runs even though c2 failed before it")
}

func TestHookEventSequenceHappyPath(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	rec := &eventRecorder{}
	_, err := eng.Bus().Register(rec)
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, simpleDefinition(t)).IsOK())

	started := eng.StartWorkflow(ctx, "simple", nil)
	require.True(t, started.IsOK())
	require.True(t, eng.SendEvent(ctx, started.Value().ID, "complete", nil).IsOK())

	require.Equal(t, []hooks.EventType{
		hooks.EventInstanceStarted,
		hooks.EventStateEntered, // start
		hooks.EventStateEntered, // end
		hooks.EventInstanceTerminal,
	}, rec.types())
}

func TestCustomEvaluatorReceivesEventData(t *testing.T) {
	ctx := context.Background()
	var seen instance.Context
	eval := condition.Func(func(cond string, _ instance.Context, eventData instance.Context) (bool, error) {
		if cond != "" {
			seen = eventData
		}
		return true, nil
	})
	eng := newTestEngine(t, engine.WithEvaluator(eval))
	def, err := workflow.NewBuilder("evtdata", "Evaluator sees event data").
		State("start", workflow.KindStart).
		State("end", workflow.KindEnd).
		Transition("start", "end", "go", workflow.WithCondition("anything")).
		Build()
	require.NoError(t, err)
	require.True(t, eng.RegisterDefinition(ctx, def).IsOK())

	started := eng.StartWorkflow(ctx, "evtdata", nil)
	require.True(t, started.IsOK())
	res := eng.SendEvent(ctx, started.Value().ID, "go", instance.Context{"approved": true})
	require.True(t, res.IsOK())
	require.Equal(t, instance.Context{"approved": true}, seen)
}
