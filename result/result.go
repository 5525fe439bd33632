// Package result provides the tagged success/failure value returned by every
// engine operation and by user-supplied action executors.
//
// Go has no sum types, so Result is a small tagged struct with accessor
// helpers. Problems are values, never panics: callers branch on IsOK/IsFail
// and inspect the Problem code to decide how to react. The taxonomy is
// deliberately coarse — a stable dotted code, a category that separates
// configuration mistakes (NOT_FOUND) from domain outcomes (BUSINESS) and
// infrastructure faults (TECHNICAL), and a severity for log routing.
package result

import "fmt"

type (
	// Category classifies a Problem for retry and escalation decisions.
	Category string

	// Severity indicates how loudly a Problem should be surfaced.
	Severity string

	// Problem describes a typed operation failure. Problems are plain values;
	// they carry enough structure for callers to branch on without parsing
	// the message.
	Problem struct {
		// Code is a stable dotted identifier such as "WORKFLOW.NO_TRANSITION".
		Code string
		// Category classifies the failure.
		Category Category
		// Severity indicates how serious the failure is.
		Severity Severity
		// Message is a human-readable description.
		Message string
	}

	// Result is the tagged return of an operation: either a value of type T
	// or a Problem. The zero Result is Ok with T's zero value.
	Result[T any] struct {
		value   T
		problem *Problem
	}

	// Unit is the value type for operations that succeed without a payload.
	Unit struct{}
)

const (
	// CategoryNotFound indicates a lookup by an unknown identifier, usually a
	// configuration or wiring mistake on the caller's side.
	CategoryNotFound Category = "NOT_FOUND"
	// CategoryBusiness indicates a domain-level refusal (e.g. no transition
	// matches the event). Retrying without changing inputs will not help.
	CategoryBusiness Category = "BUSINESS"
	// CategoryTechnical indicates an infrastructure fault.
	CategoryTechnical Category = "TECHNICAL"
)

const (
	// SeverityInfo marks expected, low-noise failures.
	SeverityInfo Severity = "INFO"
	// SeverityWarning marks failures worth logging but not paging on.
	SeverityWarning Severity = "WARNING"
	// SeverityError marks failures that indicate something is misconfigured
	// or broken.
	SeverityError Severity = "ERROR"
)

// OK returns a successful Result carrying v.
func OK[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail returns a failed Result carrying the given Problem.
func Fail[T any](p Problem) Result[T] {
	return Result[T]{problem: &p}
}

// FailWith builds a Problem from its parts and returns a failed Result. The
// message is formatted with fmt.Sprintf when args are provided.
func FailWith[T any](code string, cat Category, sev Severity, format string, args ...any) Result[T] {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return Fail[T](Problem{Code: code, Category: cat, Severity: sev, Message: msg})
}

// IsOK reports whether the Result carries a value.
func (r Result[T]) IsOK() bool { return r.problem == nil }

// IsFail reports whether the Result carries a Problem.
func (r Result[T]) IsFail() bool { return r.problem != nil }

// Value returns the carried value. For failed Results it returns T's zero
// value; check IsOK first.
func (r Result[T]) Value() T { return r.value }

// Problem returns the carried Problem, or nil for successful Results. The
// returned pointer refers to a copy owned by the Result; mutating it does not
// affect other holders of the same Problem value.
func (r Result[T]) Problem() *Problem { return r.problem }

// Error implements the error interface so Problems can flow through logging
// and error-wrapping plumbing. Problems are still values; this is a
// convenience, not an invitation to panic or to use errors.Is for control
// flow.
func (p Problem) Error() string {
	return fmt.Sprintf("%s [%s/%s]: %s", p.Code, p.Category, p.Severity, p.Message)
}
