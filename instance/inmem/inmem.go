// Package inmem provides the in-memory implementation of instance.Store used
// by default and in tests. Records live in maps guarded by a sync.RWMutex and
// are defensively copied on both read and write, so callers can never mutate
// stored state through a returned value. Nothing survives process restart;
// durable deployments should use features/store/redis.
package inmem

import (
	"context"
	"sync"

	"github.com/flowstate-io/flowstate/instance"
)

// Store implements instance.Store in memory. The instance and its history are
// written under one lock acquisition, which gives Save the atomicity the port
// requires. The zero value is not usable; call New.
type Store struct {
	mu        sync.RWMutex
	instances map[string]instance.Instance
	histories map[string][]string
}

// New returns an empty in-memory store ready for use.
func New() *Store {
	return &Store{
		instances: make(map[string]instance.Instance),
		histories: make(map[string][]string),
	}
}

// Save stores copies of the instance and history, replacing any prior record.
func (s *Store) Save(_ context.Context, inst instance.Instance, history []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := inst
	copied.Context = inst.Context.Clone()
	s.instances[inst.ID] = copied
	s.histories[inst.ID] = append([]string(nil), history...)
	return nil
}

// Load returns copies of the stored instance and history, or
// instance.ErrNotFound.
func (s *Store) Load(_ context.Context, id string) (instance.Instance, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return instance.Instance{}, nil, instance.ErrNotFound
	}
	inst.Context = inst.Context.Clone()
	return inst, append([]string(nil), s.histories[id]...), nil
}

// Delete removes the record, or returns instance.ErrNotFound.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[id]; !ok {
		return instance.ErrNotFound
	}
	delete(s.instances, id)
	delete(s.histories, id)
	return nil
}

// Reset clears all records. Test helper; not part of the Store port.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = make(map[string]instance.Instance)
	s.histories = make(map[string][]string)
}
