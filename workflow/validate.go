package workflow

import (
	"errors"
	"fmt"
)

// ErrInvalidDefinition is wrapped by every validation failure so callers can
// test with errors.Is without matching message text.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// Validate checks the structural integrity of a definition: non-empty
// identifiers, unique state names, a declared initial state, valid kinds, and
// transitions that reference declared states. Action and compensation names
// are not validated against any registry; executor registries are open and
// may grow after definitions are registered.
//
// All violations are collected and joined into a single error.
func Validate(d Definition) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if d.ID == "" {
		fail("definition id is required")
	}
	if d.Name == "" {
		fail("definition name is required")
	}
	if d.InitialState == "" {
		fail("initial state is required")
	}
	if len(d.States) == 0 {
		fail("at least one state is required")
	}

	names := make(map[string]struct{}, len(d.States))
	for i, s := range d.States {
		if s.Name == "" {
			fail("state %d: name is required", i)
			continue
		}
		if _, dup := names[s.Name]; dup {
			fail("state %q declared more than once", s.Name)
		}
		names[s.Name] = struct{}{}
		if !s.Kind.Valid() {
			fail("state %q: unknown kind %q", s.Name, s.Kind)
		}
	}

	if d.InitialState != "" {
		if _, ok := names[d.InitialState]; !ok && len(d.States) > 0 {
			fail("initial state %q is not declared", d.InitialState)
		}
	}

	for i, t := range d.Transitions {
		if t.Event == "" {
			fail("transition %d (%s -> %s): event is required", i, t.From, t.To)
		}
		if _, ok := names[t.From]; !ok {
			fail("transition %d: from state %q is not declared", i, t.From)
		}
		if _, ok := names[t.To]; !ok {
			fail("transition %d: to state %q is not declared", i, t.To)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidDefinition, errors.Join(errs...))
}

// DuplicateTransitions returns the (from, event) pairs declared more than
// once. Overlaps are legal — the engine picks the first declared match — but
// usually indicate a definition mistake, so registries warn about them.
func DuplicateTransitions(d Definition) []Transition {
	type key struct{ from, event string }
	seen := make(map[key]int, len(d.Transitions))
	var dups []Transition
	for _, t := range d.Transitions {
		k := key{t.From, t.Event}
		seen[k]++
		if seen[k] == 2 {
			dups = append(dups, t)
		}
	}
	return dups
}
