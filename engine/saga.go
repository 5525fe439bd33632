package engine

import (
	"context"

	"go.opentelemetry.io/otel/codes"

	"github.com/flowstate-io/flowstate/hooks"
	"github.com/flowstate-io/flowstate/instance"
	"github.com/flowstate-io/flowstate/result"
	"github.com/flowstate-io/flowstate/workflow"
)

// compensateLocked walks the instance history in reverse execution order and
// invokes each visited state's compensation executor. Called with the
// instance lock held.
//
// The walk is best-effort: history entries whose state or compensation no
// longer resolves are skipped, and a failing compensation is logged and
// published but does not abort the remaining steps. Partial compensation is
// preferable to none. Successful steps merge their context delta
// last-write-wins, so later (earlier-in-history) compensations observe the
// effects of the ones before them. The instance always ends COMPENSATED.
func (e *Engine) compensateLocked(ctx context.Context, def workflow.Definition, inst instance.Instance, history []string) result.Result[instance.Snapshot] {
	now := e.clock.Now()
	inst.Status = instance.StatusCompensating
	inst.UpdatedAt = now
	if err := e.store.Save(ctx, inst, history); err != nil {
		return failTechnical[instance.Snapshot](CodeStoreFailure, "save instance %q: %s", inst.ID, err)
	}
	e.logger.Info(ctx, "compensation started",
		"instance_id", inst.ID, "definition_id", def.ID, "steps", len(history))

	walkCtx, span := e.tracer.Start(ctx, "flowstate.compensate")
	for i := len(history) - 1; i >= 0; i-- {
		name := history[i]
		state, ok := def.State(name)
		if !ok {
			// Definition was overwritten mid-flight; nothing to undo here.
			e.logger.Debug(ctx, "history state not in definition; skipped",
				"instance_id", inst.ID, "state", name)
			continue
		}
		if state.Compensation == "" {
			continue
		}
		fn, registered := e.registry.action(state.Compensation)
		if !registered {
			e.logger.Warn(ctx, "no executor registered for compensation; step skipped",
				"instance_id", inst.ID, "state", name, "compensation", state.Compensation)
			continue
		}

		e.metrics.IncCounter("flowstate.compensations.run", 1, "definition_id", def.ID, "compensation", state.Compensation)
		stepRes := fn(walkCtx, state.Compensation, inst.Context.Clone())
		if stepRes.IsFail() {
			p := stepRes.Problem()
			e.logger.Error(ctx, "compensation step failed; walk continues",
				"instance_id", inst.ID, "state", name, "compensation", state.Compensation,
				"problem", p.Code, "message", p.Message)
			e.publish(ctx, hooks.NewCompensationStep(inst.ID, def.ID, e.clock.Now(), name, state.Compensation, true, p.Message))
			continue
		}

		merged := inst.Context.Clone()
		merged.Merge(stepRes.Value())
		inst.Context = merged
		e.publish(ctx, hooks.NewCompensationStep(inst.ID, def.ID, e.clock.Now(), name, state.Compensation, false, ""))
	}
	span.SetStatus(codes.Ok, "")
	span.End()

	now = e.clock.Now()
	inst.Status = instance.StatusCompensated
	inst.CompletedAt = now
	inst.UpdatedAt = now
	if err := e.store.Save(ctx, inst, history); err != nil {
		return failTechnical[instance.Snapshot](CodeStoreFailure, "save instance %q: %s", inst.ID, err)
	}
	e.logger.Info(ctx, "compensation finished",
		"instance_id", inst.ID, "definition_id", def.ID)
	e.publish(ctx, hooks.NewInstanceTerminal(inst.ID, def.ID, now, inst.Status, inst.Error))

	return result.OK(inst.Snapshot(history))
}
