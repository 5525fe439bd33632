// Package workflow defines the immutable workflow definition model: states,
// transitions, actions and compensations. Definitions are plain values built
// either with struct literals plus Validate, with the fluent Builder, or from
// YAML documents via ParseYAML. Once registered with an engine a definition is
// never mutated.
package workflow

import "time"

type (
	// Kind classifies a state. END and FAIL are terminal: the engine never
	// evaluates outgoing transitions after entering them. CHOICE and PARALLEL
	// are declarable for forward compatibility but execute as plain task
	// states.
	Kind string

	// State is a node in the workflow graph. The optional Action names a
	// registered executor invoked on entry; the optional Compensation names
	// the executor invoked during saga rollback, in reverse entry order.
	State struct {
		// Name uniquely identifies the state within its definition.
		Name string
		// Kind selects the execution behavior on entry.
		Kind Kind
		// Action is the name of the executor to invoke on entry. Empty means
		// entering the state has no side effect.
		Action string
		// Compensation is the name of the executor that undoes this state's
		// action during rollback. Empty means nothing to undo.
		Compensation string
		// Timeout bounds time spent in this state. The engine does not enforce
		// it; an external scheduler may cancel instances that exceed it.
		Timeout time.Duration
	}

	// Transition is a directed edge in the workflow graph, labeled by an
	// event name and optionally guarded by a condition expression. Self
	// transitions (From == To) are allowed.
	Transition struct {
		// From is the source state name.
		From string
		// To is the target state name.
		To string
		// Event is the external event name that triggers the transition.
		Event string
		// Condition is an opaque guard expression evaluated against the
		// instance context and event data. Empty means "always allow".
		Condition string
	}

	// Definition is an immutable workflow definition. Declaration order of
	// States and Transitions is significant: when several transitions match
	// the same (state, event) pair, the engine picks the first declared one.
	Definition struct {
		// ID uniquely identifies the definition within a registry.
		ID string
		// Name is the human-readable workflow name.
		Name string
		// Description documents the workflow's purpose.
		Description string
		// InitialState names the state every new instance starts in. It is the
		// authoritative entry point; a declared START kind is informational.
		InitialState string
		// States lists the workflow states in declaration order.
		States []State
		// Transitions lists the workflow edges in declaration order.
		Transitions []Transition
		// Timeout bounds the total instance lifetime. Declared only; not
		// enforced by the engine.
		Timeout time.Duration
	}
)

const (
	// KindStart marks the conventional entry state.
	KindStart Kind = "START"
	// KindTask is a regular state with an optional action.
	KindTask Kind = "TASK"
	// KindChoice is declarable; executes as a task state.
	KindChoice Kind = "CHOICE"
	// KindParallel is declarable; executes as a task state.
	KindParallel Kind = "PARALLEL"
	// KindEnd completes the instance on entry.
	KindEnd Kind = "END"
	// KindFail fails the instance on entry and triggers compensation.
	KindFail Kind = "FAIL"
)

// Terminal reports whether entering a state of this kind ends the instance.
func (k Kind) Terminal() bool { return k == KindEnd || k == KindFail }

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStart, KindTask, KindChoice, KindParallel, KindEnd, KindFail:
		return true
	}
	return false
}

// State returns the state with the given name and whether it exists.
// Lookup is linear; definitions are small and read-mostly.
func (d Definition) State(name string) (State, bool) {
	for _, s := range d.States {
		if s.Name == name {
			return s, true
		}
	}
	return State{}, false
}

// TransitionsFrom returns the transitions whose From equals state, preserving
// declaration order.
func (d Definition) TransitionsFrom(state string) []Transition {
	var out []Transition
	for _, t := range d.Transitions {
		if t.From == state {
			out = append(out, t)
		}
	}
	return out
}
