// Package instance defines the per-execution record of a workflow: its
// current state, lifecycle status, context map, execution history and the
// Store port that persists it. Instances are mutated exclusively by the
// engine; everything that crosses the package boundary is a copy.
package instance

import "time"

type (
	// Status is the lifecycle state of a workflow instance.
	Status string

	// Context is the mutable key/value mapping threaded through an instance's
	// lifetime. It is the sole channel for data flow between states: event
	// data, action results and compensation results are merged into it with
	// last-write-wins semantics.
	Context map[string]any

	// Instance is the mutable per-execution record. Only the engine mutates
	// instances; callers observe them through Snapshot values.
	Instance struct {
		// ID is the engine-generated unique instance identifier.
		ID string
		// DefinitionID names the workflow definition this instance executes.
		DefinitionID string
		// CurrentState is the name of the state the instance is in.
		CurrentState string
		// Status is the lifecycle state.
		Status Status
		// Context is the instance's accumulated data.
		Context Context
		// CreatedAt records when the instance was started.
		CreatedAt time.Time
		// UpdatedAt records the last engine write. Always >= CreatedAt.
		UpdatedAt time.Time
		// CompletedAt records when the instance reached a terminal status.
		// Zero while the instance is active.
		CompletedAt time.Time
		// Error holds the failure description for FAILED instances and
		// instances that failed before compensation.
		Error string
	}

	// Snapshot is an immutable value copy of an instance plus its execution
	// history, returned to callers. Mutating a snapshot never affects engine
	// state.
	Snapshot struct {
		ID           string
		DefinitionID string
		CurrentState string
		Status       Status
		Context      Context
		CreatedAt    time.Time
		UpdatedAt    time.Time
		CompletedAt  time.Time
		Error        string
		// History lists the state names the instance entered, in entry order.
		// History[0] is always the definition's initial state.
		History []string
	}
)

const (
	// StatusPending is the initial placeholder; instances transition to
	// RUNNING before StartWorkflow returns.
	StatusPending Status = "PENDING"
	// StatusRunning indicates the instance accepts events.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the instance reached an END state.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates an action failed, a FAIL state was entered, or
	// the instance was cancelled.
	StatusFailed Status = "FAILED"
	// StatusCompensating indicates compensations are being executed.
	StatusCompensating Status = "COMPENSATING"
	// StatusCompensated indicates the compensation walk finished.
	StatusCompensated Status = "COMPENSATED"
	// StatusTimedOut is reserved for an enforced-timeout path; the engine
	// never sets it itself.
	StatusTimedOut Status = "TIMED_OUT"
)

// Active reports whether the instance is progressing (RUNNING or COMPENSATING).
func (s Status) Active() bool {
	return s == StatusRunning || s == StatusCompensating
}

// Terminal reports whether the status admits no further events.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCompensated, StatusTimedOut:
		return true
	}
	return false
}

// Active reports whether the instance is progressing.
func (i Instance) Active() bool { return i.Status.Active() }

// Terminal reports whether the instance accepts no further events.
func (i Instance) Terminal() bool { return i.Status.Terminal() }

// Snapshot returns a defensive value copy of the instance paired with a copy
// of its execution history.
func (i Instance) Snapshot(history []string) Snapshot {
	return Snapshot{
		ID:           i.ID,
		DefinitionID: i.DefinitionID,
		CurrentState: i.CurrentState,
		Status:       i.Status,
		Context:      i.Context.Clone(),
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
		CompletedAt:  i.CompletedAt,
		Error:        i.Error,
		History:      append([]string(nil), history...),
	}
}

// Clone returns a shallow copy of the context. Nested values are shared;
// the engine treats context values as immutable once merged.
func (c Context) Clone() Context {
	if c == nil {
		return Context{}
	}
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge copies every entry of delta into the receiver, overwriting existing
// keys (last-write-wins). The receiver must be a copy owned by the caller.
func (c Context) Merge(delta Context) {
	for k, v := range delta {
		c[k] = v
	}
}
