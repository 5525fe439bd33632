package instance

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Load and Store.Delete when no instance
// exists for the given id.
var ErrNotFound = errors.New("instance not found")

// Store persists instances and their execution histories. The instance and
// its history form one logical record: Save writes the pair atomically so a
// reader never observes a status without the history that produced it.
//
// The reference implementation is inmem.Store; features/store/redis provides
// a durable one. Implementations must return copies from Load — callers may
// freely mutate what they receive.
type Store interface {
	// Save writes the instance and its history atomically, replacing any
	// prior record with the same instance ID.
	Save(ctx context.Context, inst Instance, history []string) error

	// Load returns copies of the instance and history for the given id, or
	// ErrNotFound.
	Load(ctx context.Context, id string) (Instance, []string, error)

	// Delete removes the instance and its history. Deleting an unknown id
	// returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}
