package engine

import "github.com/flowstate-io/flowstate/result"

// Problem codes returned by engine operations. Codes are stable identifiers:
// callers branch on them, so changing one is a breaking change.
const (
	// CodeDefinitionNotFound is returned when a lookup names an unknown
	// definition id.
	CodeDefinitionNotFound = "WORKFLOW.DEFINITION_NOT_FOUND"
	// CodeInstanceNotFound is returned when a lookup names an unknown
	// instance id.
	CodeInstanceNotFound = "WORKFLOW.INSTANCE_NOT_FOUND"
	// CodeStateNotFound is returned when an instance's current state is not
	// declared in its definition. This only happens when a definition is
	// overwritten mid-flight with incompatible states.
	CodeStateNotFound = "WORKFLOW.STATE_NOT_FOUND"
	// CodeNoTransition is returned when no transition matches the event from
	// the current state.
	CodeNoTransition = "WORKFLOW.NO_TRANSITION"
	// CodeAlreadyTerminal is returned when an event is sent to a terminal
	// instance.
	CodeAlreadyTerminal = "WORKFLOW.ALREADY_TERMINAL"
	// CodeDefinitionInvalid is returned when a malformed definition is
	// registered.
	CodeDefinitionInvalid = "WORKFLOW.DEFINITION_INVALID"
	// CodeExecutorInvalid is returned when an action executor registration is
	// malformed (empty name or nil function).
	CodeExecutorInvalid = "WORKFLOW.EXECUTOR_INVALID"
	// CodeThrottled is returned by StartWorkflow when the configured rate
	// limiter has no capacity. No instance is created.
	CodeThrottled = "WORKFLOW.THROTTLED"
	// CodeStoreFailure is returned when the instance store fails. Never seen
	// with the in-memory store.
	CodeStoreFailure = "WORKFLOW.STORE_FAILURE"
)

func failNotFound[T any](code, format string, args ...any) result.Result[T] {
	return result.FailWith[T](code, result.CategoryNotFound, result.SeverityError, format, args...)
}

func failBusiness[T any](code, format string, args ...any) result.Result[T] {
	return result.FailWith[T](code, result.CategoryBusiness, result.SeverityWarning, format, args...)
}

func failTechnical[T any](code, format string, args ...any) result.Result[T] {
	return result.FailWith[T](code, result.CategoryTechnical, result.SeverityError, format, args...)
}
