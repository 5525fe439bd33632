// Package redis implements a durable instance.Store on Redis. Each instance
// is kept as two JSON values, one for the instance record and one for its
// execution history, written together in a MULTI/EXEC transaction so that a
// reader never observes a status without its matching history.
//
// Context values round-trip through JSON, so numbers come back as float64.
// Actions that care about integer identity should store strings.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowstate-io/flowstate/instance"
)

const defaultKeyPrefix = "flowstate"

type (
	// Store implements instance.Store backed by a Redis connection owned by
	// the caller.
	Store struct {
		client *redis.Client
		prefix string
		ttl    time.Duration
	}

	// Option configures a Store.
	Option func(*Store)

	// record is the persisted JSON shape of an instance.
	record struct {
		ID           string           `json:"id"`
		DefinitionID string           `json:"definition_id"`
		CurrentState string           `json:"current_state"`
		Status       instance.Status  `json:"status"`
		Context      instance.Context `json:"context,omitempty"`
		CreatedAt    time.Time        `json:"created_at"`
		UpdatedAt    time.Time        `json:"updated_at"`
		CompletedAt  time.Time        `json:"completed_at,omitzero"`
		Error        string           `json:"error,omitempty"`
	}
)

// New builds a Store on the given Redis connection. The caller owns the
// connection lifecycle.
func New(client *redis.Client, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	s := &Store{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// WithKeyPrefix overrides the key prefix, allowing several engines to share
// one Redis database.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTTL expires instance records after the given duration. Zero (the
// default) keeps records forever; deployments that only inspect recent
// instances use a TTL as a retention policy.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// Save writes the instance and its history atomically.
func (s *Store) Save(ctx context.Context, inst instance.Instance, history []string) error {
	rec := record{
		ID:           inst.ID,
		DefinitionID: inst.DefinitionID,
		CurrentState: inst.CurrentState,
		Status:       inst.Status,
		Context:      inst.Context,
		CreatedAt:    inst.CreatedAt,
		UpdatedAt:    inst.UpdatedAt,
		CompletedAt:  inst.CompletedAt,
		Error:        inst.Error,
	}
	instJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal instance %q: %w", inst.ID, err)
	}
	histJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history %q: %w", inst.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.instanceKey(inst.ID), instJSON, s.ttl)
	pipe.Set(ctx, s.historyKey(inst.ID), histJSON, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save instance %q: %w", inst.ID, err)
	}
	return nil
}

// Load reads the instance and its history. Returns instance.ErrNotFound when
// the instance key is absent.
func (s *Store) Load(ctx context.Context, id string) (instance.Instance, []string, error) {
	pipe := s.client.Pipeline()
	instCmd := pipe.Get(ctx, s.instanceKey(id))
	histCmd := pipe.Get(ctx, s.historyKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return instance.Instance{}, nil, fmt.Errorf("load instance %q: %w", id, err)
	}

	instJSON, err := instCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return instance.Instance{}, nil, instance.ErrNotFound
		}
		return instance.Instance{}, nil, fmt.Errorf("load instance %q: %w", id, err)
	}
	var rec record
	if err := json.Unmarshal(instJSON, &rec); err != nil {
		return instance.Instance{}, nil, fmt.Errorf("unmarshal instance %q: %w", id, err)
	}

	var history []string
	histJSON, err := histCmd.Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(histJSON, &history); err != nil {
			return instance.Instance{}, nil, fmt.Errorf("unmarshal history %q: %w", id, err)
		}
	case errors.Is(err, redis.Nil):
		// Tolerated: a TTL may expire the history key first.
	default:
		return instance.Instance{}, nil, fmt.Errorf("load history %q: %w", id, err)
	}

	return instance.Instance{
		ID:           rec.ID,
		DefinitionID: rec.DefinitionID,
		CurrentState: rec.CurrentState,
		Status:       rec.Status,
		Context:      rec.Context,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		CompletedAt:  rec.CompletedAt,
		Error:        rec.Error,
	}, history, nil
}

// Delete removes the instance and its history. Deleting an absent instance
// is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.instanceKey(id), s.historyKey(id)).Err(); err != nil {
		return fmt.Errorf("delete instance %q: %w", id, err)
	}
	return nil
}

func (s *Store) instanceKey(id string) string { return s.prefix + ":instance:" + id }
func (s *Store) historyKey(id string) string  { return s.prefix + ":history:" + id }
