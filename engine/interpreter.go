package engine

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/codes"

	"github.com/flowstate-io/flowstate/hooks"
	"github.com/flowstate-io/flowstate/instance"
	"github.com/flowstate-io/flowstate/result"
	"github.com/flowstate-io/flowstate/workflow"
)

// StartWorkflow creates a new instance of the named definition, seeds its
// context with a copy of initialContext, persists it and executes the initial
// state. The returned snapshot reflects everything that happened during the
// call: a definition whose initial state is END completes immediately, and an
// initial action failure compensates immediately.
func (e *Engine) StartWorkflow(ctx context.Context, definitionID string, initialContext instance.Context) result.Result[instance.Snapshot] {
	if e.limiter != nil && !e.limiter.Allow() {
		return result.FailWith[instance.Snapshot](CodeThrottled, result.CategoryTechnical, result.SeverityWarning,
			"start of %q rejected by rate limiter", definitionID)
	}

	def, ok := e.registry.definition(definitionID)
	if !ok {
		return failNotFound[instance.Snapshot](CodeDefinitionNotFound, "definition %q not found", definitionID)
	}

	now := e.clock.Now()
	inst := instance.Instance{
		ID:           e.ids.NewID(),
		DefinitionID: def.ID,
		CurrentState: def.InitialState,
		Status:       instance.StatusRunning,
		Context:      initialContext.Clone(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	history := []string{def.InitialState}

	unlock := e.locks.acquire(inst.ID)
	defer unlock()

	if err := e.store.Save(ctx, inst, history); err != nil {
		return failTechnical[instance.Snapshot](CodeStoreFailure, "save instance %q: %s", inst.ID, err)
	}

	e.metrics.IncCounter("flowstate.instances.started", 1, "definition_id", def.ID)
	e.logger.Info(ctx, "workflow started",
		"instance_id", inst.ID, "definition_id", def.ID, "initial_state", def.InitialState)
	e.publish(ctx, hooks.NewInstanceStarted(inst.ID, def.ID, now, def.InitialState))
	e.publish(ctx, hooks.NewStateEntered(inst.ID, def.ID, now, def.InitialState, ""))

	return e.executeCurrentState(ctx, def, inst, history)
}

// SendEvent advances the instance along the first declared transition that
// matches (current state, event) and whose condition holds, merges eventData
// into the context (last-write-wins) and executes the entered state. Events
// on terminal instances fail with WORKFLOW.ALREADY_TERMINAL and leave the
// instance untouched.
func (e *Engine) SendEvent(ctx context.Context, instanceID, event string, eventData instance.Context) result.Result[instance.Snapshot] {
	unlock := e.locks.acquire(instanceID)
	defer unlock()

	inst, history, res := e.load(instanceID, func() (instance.Instance, []string, error) {
		return e.store.Load(ctx, instanceID)
	})
	if res != nil {
		return *res
	}

	if inst.Terminal() {
		return failBusiness[instance.Snapshot](CodeAlreadyTerminal,
			"instance %q is %s and accepts no further events", instanceID, inst.Status)
	}

	def, ok := e.registry.definition(inst.DefinitionID)
	if !ok {
		return failNotFound[instance.Snapshot](CodeDefinitionNotFound, "definition %q not found", inst.DefinitionID)
	}

	transition, found := e.matchTransition(ctx, def, inst, event, eventData)
	if !found {
		return failBusiness[instance.Snapshot](CodeNoTransition,
			"no transition from state %q for event %q", inst.CurrentState, event)
	}

	now := e.clock.Now()
	merged := inst.Context.Clone()
	merged.Merge(eventData)
	inst.Context = merged
	inst.CurrentState = transition.To
	inst.UpdatedAt = now
	history = append(history, transition.To)

	if err := e.store.Save(ctx, inst, history); err != nil {
		return failTechnical[instance.Snapshot](CodeStoreFailure, "save instance %q: %s", inst.ID, err)
	}

	e.logger.Debug(ctx, "transition taken",
		"instance_id", inst.ID, "from", transition.From, "to", transition.To, "event", event)
	e.publish(ctx, hooks.NewStateEntered(inst.ID, def.ID, now, transition.To, event))

	return e.executeCurrentState(ctx, def, inst, history)
}

// GetWorkflow returns a snapshot of the instance. Pure read; no side effects.
func (e *Engine) GetWorkflow(ctx context.Context, instanceID string) result.Result[instance.Snapshot] {
	inst, history, res := e.load(instanceID, func() (instance.Instance, []string, error) {
		return e.store.Load(ctx, instanceID)
	})
	if res != nil {
		return *res
	}
	return result.OK(inst.Snapshot(history))
}

// Cancel marks the instance FAILED with the given reason, regardless of its
// current status — cancelling an already-terminal instance overwrites its
// status and reason. Cancel does not trigger compensation; callers that need
// rollback call Compensate explicitly.
func (e *Engine) Cancel(ctx context.Context, instanceID, reason string) result.Result[instance.Snapshot] {
	unlock := e.locks.acquire(instanceID)
	defer unlock()

	inst, history, res := e.load(instanceID, func() (instance.Instance, []string, error) {
		return e.store.Load(ctx, instanceID)
	})
	if res != nil {
		return *res
	}

	now := e.clock.Now()
	inst.Status = instance.StatusFailed
	inst.Error = "Cancelled: " + reason
	inst.CompletedAt = now
	inst.UpdatedAt = now

	if err := e.store.Save(ctx, inst, history); err != nil {
		return failTechnical[instance.Snapshot](CodeStoreFailure, "save instance %q: %s", inst.ID, err)
	}

	e.logger.Info(ctx, "workflow cancelled", "instance_id", inst.ID, "reason", reason)
	e.publish(ctx, hooks.NewInstanceTerminal(inst.ID, inst.DefinitionID, now, inst.Status, inst.Error))

	return result.OK(inst.Snapshot(history))
}

// Compensate runs the instance's compensations in reverse execution order and
// leaves it COMPENSATED. Calling it on an already-compensated instance
// re-runs the walk.
func (e *Engine) Compensate(ctx context.Context, instanceID string) result.Result[instance.Snapshot] {
	unlock := e.locks.acquire(instanceID)
	defer unlock()

	inst, history, res := e.load(instanceID, func() (instance.Instance, []string, error) {
		return e.store.Load(ctx, instanceID)
	})
	if res != nil {
		return *res
	}

	def, ok := e.registry.definition(inst.DefinitionID)
	if !ok {
		return failNotFound[instance.Snapshot](CodeDefinitionNotFound, "definition %q not found", inst.DefinitionID)
	}

	return e.compensateLocked(ctx, def, inst, history)
}

// executeCurrentState runs the per-kind behavior for the instance's current
// state. Called with the instance lock held, at entry to a state (after start
// or after a transition).
func (e *Engine) executeCurrentState(ctx context.Context, def workflow.Definition, inst instance.Instance, history []string) result.Result[instance.Snapshot] {
	state, ok := def.State(inst.CurrentState)
	if !ok {
		return failNotFound[instance.Snapshot](CodeStateNotFound,
			"state %q is not declared in definition %q", inst.CurrentState, def.ID)
	}

	switch state.Kind {
	case workflow.KindEnd:
		return e.complete(ctx, inst, history)
	case workflow.KindFail:
		return e.failAndCompensate(ctx, def, inst, history, "Workflow reached FAIL state")
	default:
		// TASK, START, CHOICE and PARALLEL all execute as task states.
	}

	if state.Action == "" {
		return result.OK(inst.Snapshot(history))
	}
	fn, registered := e.registry.action(state.Action)
	if !registered {
		// Declarative-first development: definitions may reference executors
		// that are not wired yet. The state is a no-op and the workflow
		// proceeds.
		e.logger.Warn(ctx, "no executor registered for action; state is a no-op",
			"instance_id", inst.ID, "state", state.Name, "action", state.Action)
		return result.OK(inst.Snapshot(history))
	}

	started := e.clock.Now()
	actionCtx, span := e.tracer.Start(ctx, "flowstate.action")
	actionRes := fn(actionCtx, state.Action, inst.Context.Clone())
	elapsed := e.clock.Now().Sub(started)

	if actionRes.IsFail() {
		p := *actionRes.Problem()
		span.RecordError(p)
		span.SetStatus(codes.Error, p.Message)
		span.End()
		e.metrics.IncCounter("flowstate.actions.failed", 1, "definition_id", def.ID, "action", state.Action)
		e.logger.Error(ctx, "action failed",
			"instance_id", inst.ID, "state", state.Name, "action", state.Action, "problem", p.Code, "message", p.Message)
		e.publish(ctx, hooks.NewActionFailed(inst.ID, def.ID, e.clock.Now(), state.Name, state.Action, p))
		return e.failAndCompensate(ctx, def, inst, history, "Action failed: "+p.Message)
	}

	span.SetStatus(codes.Ok, "")
	span.End()
	e.metrics.RecordTimer("flowstate.action.duration", elapsed, "definition_id", def.ID, "action", state.Action)

	now := e.clock.Now()
	merged := inst.Context.Clone()
	merged.Merge(actionRes.Value())
	inst.Context = merged
	inst.UpdatedAt = now
	if err := e.store.Save(ctx, inst, history); err != nil {
		return failTechnical[instance.Snapshot](CodeStoreFailure, "save instance %q: %s", inst.ID, err)
	}
	e.publish(ctx, hooks.NewActionCompleted(inst.ID, def.ID, now, state.Name, state.Action, elapsed))

	return result.OK(inst.Snapshot(history))
}

// complete marks the instance COMPLETED on entry to an END state.
func (e *Engine) complete(ctx context.Context, inst instance.Instance, history []string) result.Result[instance.Snapshot] {
	now := e.clock.Now()
	inst.Status = instance.StatusCompleted
	inst.CompletedAt = now
	inst.UpdatedAt = now
	if err := e.store.Save(ctx, inst, history); err != nil {
		return failTechnical[instance.Snapshot](CodeStoreFailure, "save instance %q: %s", inst.ID, err)
	}
	e.logger.Info(ctx, "workflow completed", "instance_id", inst.ID, "definition_id", inst.DefinitionID)
	e.publish(ctx, hooks.NewInstanceTerminal(inst.ID, inst.DefinitionID, now, inst.Status, ""))
	return result.OK(inst.Snapshot(history))
}

// failAndCompensate marks the instance FAILED with the given error and then
// runs the compensation walk. The caller observes the compensated snapshot.
func (e *Engine) failAndCompensate(ctx context.Context, def workflow.Definition, inst instance.Instance, history []string, errMsg string) result.Result[instance.Snapshot] {
	now := e.clock.Now()
	inst.Status = instance.StatusFailed
	inst.Error = errMsg
	inst.CompletedAt = now
	inst.UpdatedAt = now
	if err := e.store.Save(ctx, inst, history); err != nil {
		return failTechnical[instance.Snapshot](CodeStoreFailure, "save instance %q: %s", inst.ID, err)
	}
	e.publish(ctx, hooks.NewInstanceTerminal(inst.ID, def.ID, now, inst.Status, inst.Error))
	return e.compensateLocked(ctx, def, inst, history)
}

// matchTransition returns the first declared transition matching the current
// state and event whose condition holds. Evaluator errors are logged and the
// transition is skipped, so broken guards fail closed.
func (e *Engine) matchTransition(ctx context.Context, def workflow.Definition, inst instance.Instance, event string, eventData instance.Context) (workflow.Transition, bool) {
	for _, t := range def.Transitions {
		if t.From != inst.CurrentState || t.Event != event {
			continue
		}
		ok, err := e.eval.Evaluate(t.Condition, inst.Context, eventData)
		if err != nil {
			e.logger.Warn(ctx, "condition evaluation failed; transition skipped",
				"instance_id", inst.ID, "from", t.From, "to", t.To, "condition", t.Condition, "error", err.Error())
			continue
		}
		if ok {
			return t, true
		}
	}
	return workflow.Transition{}, false
}

// load translates store results into Problem results shared by every
// operation. Returns a non-nil result to propagate when loading failed.
func (e *Engine) load(instanceID string, loadFn func() (instance.Instance, []string, error)) (instance.Instance, []string, *result.Result[instance.Snapshot]) {
	inst, history, err := loadFn()
	if err == nil {
		return inst, history, nil
	}
	var res result.Result[instance.Snapshot]
	if errors.Is(err, instance.ErrNotFound) {
		res = failNotFound[instance.Snapshot](CodeInstanceNotFound, "instance %q not found", instanceID)
	} else {
		res = failTechnical[instance.Snapshot](CodeStoreFailure, "load instance %q: %s", instanceID, err)
	}
	return instance.Instance{}, nil, &res
}

// publish fans an event out to the bus. Events are observational: subscriber
// failures are logged and never alter workflow semantics.
func (e *Engine) publish(ctx context.Context, evt hooks.Event) {
	if err := e.bus.Publish(ctx, evt); err != nil {
		e.logger.Warn(ctx, "event subscriber failed",
			"event_type", string(evt.Type()), "instance_id", evt.InstanceID(), "error", err.Error())
	}
}
