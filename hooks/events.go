// Package hooks defines the structured events the engine emits at every
// significant point of an instance's life — start, state entry, action
// outcome, compensation steps and terminal transitions — and the Bus that
// fans them out to subscribers. Events are purely observational: the engine
// publishes best-effort and never lets a subscriber failure alter workflow
// semantics.
package hooks

import (
	"time"

	"github.com/flowstate-io/flowstate/instance"
	"github.com/flowstate-io/flowstate/result"
)

type (
	// EventType identifies the kind of an engine event.
	EventType string

	// Event is implemented by all engine events. Subscribers type-switch on
	// the concrete types to access event-specific fields:
	//
	//	func (s *auditor) HandleEvent(ctx context.Context, evt hooks.Event) error {
	//	    switch e := evt.(type) {
	//	    case *hooks.ActionFailedEvent:
	//	        log.Printf("action %s failed: %s", e.Action, e.Problem.Message)
	//	    case *hooks.InstanceTerminalEvent:
	//	        log.Printf("instance %s ended %s", e.InstanceID(), e.Status)
	//	    }
	//	    return nil
	//	}
	Event interface {
		// Type returns the event type constant.
		Type() EventType
		// InstanceID identifies the workflow instance that produced the event.
		InstanceID() string
		// DefinitionID identifies the workflow definition the instance executes.
		DefinitionID() string
		// Timestamp is the engine clock reading when the event was created.
		Timestamp() time.Time
	}

	baseEvent struct {
		typ        EventType
		instanceID string
		defID      string
		at         time.Time
	}

	// InstanceStartedEvent fires once per instance, before the initial
	// state's action runs.
	InstanceStartedEvent struct {
		baseEvent
		// InitialState is the state the instance starts in.
		InitialState string `json:"initial_state"`
	}

	// StateEnteredEvent fires when an instance enters a state, including the
	// initial one.
	StateEnteredEvent struct {
		baseEvent
		// State is the name of the entered state.
		State string `json:"state"`
		// Event is the external event that triggered the transition; empty
		// for the initial state.
		Event string `json:"event,omitempty"`
	}

	// ActionCompletedEvent fires after a state action returns successfully.
	ActionCompletedEvent struct {
		baseEvent
		// State is the state whose action ran.
		State string `json:"state"`
		// Action is the executor name.
		Action string `json:"action"`
		// Duration is the wall-clock action execution time.
		Duration time.Duration `json:"duration"`
	}

	// ActionFailedEvent fires when a state action returns a Problem. The
	// engine compensates immediately after publishing it.
	ActionFailedEvent struct {
		baseEvent
		// State is the state whose action failed.
		State string `json:"state"`
		// Action is the executor name.
		Action string `json:"action"`
		// Problem is the failure returned by the executor.
		Problem result.Problem `json:"problem"`
	}

	// CompensationStepEvent fires for every compensation the engine invokes
	// during a rollback walk, in reverse history order.
	CompensationStepEvent struct {
		baseEvent
		// State is the history entry being compensated.
		State string `json:"state"`
		// Compensation is the executor name.
		Compensation string `json:"compensation"`
		// Failed reports whether the compensation executor returned a
		// Problem. Failed steps do not abort the walk.
		Failed bool `json:"failed"`
		// Message carries the Problem message for failed steps.
		Message string `json:"message,omitempty"`
	}

	// InstanceTerminalEvent fires when an instance reaches a terminal status.
	// An instance that fails and is then auto-compensated emits two terminal
	// events: FAILED followed by COMPENSATED.
	InstanceTerminalEvent struct {
		baseEvent
		// Status is the terminal status reached.
		Status instance.Status `json:"status"`
		// Error is the instance error, if any.
		Error string `json:"error,omitempty"`
	}
)

const (
	// EventInstanceStarted identifies InstanceStartedEvent.
	EventInstanceStarted EventType = "instance_started"
	// EventStateEntered identifies StateEnteredEvent.
	EventStateEntered EventType = "state_entered"
	// EventActionCompleted identifies ActionCompletedEvent.
	EventActionCompleted EventType = "action_completed"
	// EventActionFailed identifies ActionFailedEvent.
	EventActionFailed EventType = "action_failed"
	// EventCompensationStep identifies CompensationStepEvent.
	EventCompensationStep EventType = "compensation_step"
	// EventInstanceTerminal identifies InstanceTerminalEvent.
	EventInstanceTerminal EventType = "instance_terminal"
)

func newBase(typ EventType, instanceID, definitionID string, at time.Time) baseEvent {
	return baseEvent{typ: typ, instanceID: instanceID, defID: definitionID, at: at}
}

// NewInstanceStarted builds an InstanceStartedEvent.
func NewInstanceStarted(instanceID, definitionID string, at time.Time, initialState string) *InstanceStartedEvent {
	return &InstanceStartedEvent{
		baseEvent:    newBase(EventInstanceStarted, instanceID, definitionID, at),
		InitialState: initialState,
	}
}

// NewStateEntered builds a StateEnteredEvent. event is empty for the initial
// state.
func NewStateEntered(instanceID, definitionID string, at time.Time, state, event string) *StateEnteredEvent {
	return &StateEnteredEvent{
		baseEvent: newBase(EventStateEntered, instanceID, definitionID, at),
		State:     state,
		Event:     event,
	}
}

// NewActionCompleted builds an ActionCompletedEvent.
func NewActionCompleted(instanceID, definitionID string, at time.Time, state, action string, d time.Duration) *ActionCompletedEvent {
	return &ActionCompletedEvent{
		baseEvent: newBase(EventActionCompleted, instanceID, definitionID, at),
		State:     state,
		Action:    action,
		Duration:  d,
	}
}

// NewActionFailed builds an ActionFailedEvent.
func NewActionFailed(instanceID, definitionID string, at time.Time, state, action string, p result.Problem) *ActionFailedEvent {
	return &ActionFailedEvent{
		baseEvent: newBase(EventActionFailed, instanceID, definitionID, at),
		State:     state,
		Action:    action,
		Problem:   p,
	}
}

// NewCompensationStep builds a CompensationStepEvent.
func NewCompensationStep(instanceID, definitionID string, at time.Time, state, compensation string, failed bool, message string) *CompensationStepEvent {
	return &CompensationStepEvent{
		baseEvent:    newBase(EventCompensationStep, instanceID, definitionID, at),
		State:        state,
		Compensation: compensation,
		Failed:       failed,
		Message:      message,
	}
}

// NewInstanceTerminal builds an InstanceTerminalEvent.
func NewInstanceTerminal(instanceID, definitionID string, at time.Time, status instance.Status, errMsg string) *InstanceTerminalEvent {
	return &InstanceTerminalEvent{
		baseEvent: newBase(EventInstanceTerminal, instanceID, definitionID, at),
		Status:    status,
		Error:     errMsg,
	}
}

func (b baseEvent) Type() EventType      { return b.typ }
func (b baseEvent) InstanceID() string   { return b.instanceID }
func (b baseEvent) DefinitionID() string { return b.defID }
func (b baseEvent) Timestamp() time.Time { return b.at }
