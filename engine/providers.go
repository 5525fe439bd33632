package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type (
	// IDGenerator produces unique workflow instance identifiers. Generated
	// ids must be collision-free across the engine lifetime. Tests inject
	// deterministic implementations.
	IDGenerator interface {
		NewID() string
	}

	// Clock is the engine's wall-clock source. Every timestamp the engine
	// writes comes from here, so tests can inject a fixed or stepping clock.
	Clock interface {
		Now() time.Time
	}

	// IDFunc adapts a function to the IDGenerator interface.
	IDFunc func() string

	// ClockFunc adapts a function to the Clock interface.
	ClockFunc func() time.Time

	uuidGenerator struct{}

	systemClock struct{}

	// lockTable serializes engine operations per instance id. Entries are
	// never reclaimed; instances have no automatic GC either, so the table
	// grows with the instance population.
	lockTable struct {
		mu    sync.Mutex
		locks map[string]*sync.Mutex
	}
)

// NewID implements IDGenerator.
func (f IDFunc) NewID() string { return f() }

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// NewUUIDGenerator returns the default IDGenerator, producing random UUIDs.
func NewUUIDGenerator() IDGenerator { return uuidGenerator{} }

// NewSystemClock returns the default wall-clock Clock.
func NewSystemClock() Clock { return systemClock{} }

func (uuidGenerator) NewID() string { return uuid.NewString() }

func (systemClock) Now() time.Time { return time.Now() }

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the per-instance mutex and returns its unlock function.
func (t *lockTable) acquire(id string) func() {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	t.mu.Unlock()
	l.Lock()
	return l.Unlock
}
