// Package pulse exposes a hooks.Subscriber that publishes engine events to
// goa.design/pulse streams. It mirrors the layering used by existing Pulse
// deployments: services build a Redis client, pass it to the Pulse client, and
// register the resulting subscriber on the engine's event bus. Each instance
// gets its own stream, so external consumers can follow a single workflow
// execution without filtering.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowstate-io/flowstate/features/stream/pulse/clients/pulse"
	"github.com/flowstate-io/flowstate/hooks"
)

type (
	// Options configures the Pulse subscriber.
	Options struct {
		// Client is the Pulse client used to publish events. Required.
		Client pulse.Client
		// StreamID derives the target Pulse stream from an event. Defaults
		// to `instance/<InstanceID>`.
		StreamID func(hooks.Event) (string, error)
		// MarshalEnvelope overrides the envelope serialization (primarily
		// for tests).
		MarshalEnvelope func(Envelope) ([]byte, error)
	}

	// Subscriber publishes engine events into Pulse streams. Register it on
	// the engine bus; delivery happens synchronously in the publishing
	// operation's goroutine. Safe for concurrent use.
	Subscriber struct {
		client  pulse.Client
		stream  func(hooks.Event) (string, error)
		marshal func(Envelope) ([]byte, error)
	}

	// Envelope wraps engine events for transmission over Pulse streams. The
	// event-specific fields travel in Payload; the common identity fields
	// are lifted to the top level so consumers can route without decoding
	// the payload.
	Envelope struct {
		// Type identifies the event kind (e.g. "state_entered").
		Type string `json:"type"`
		// InstanceID links the event to a workflow instance.
		InstanceID string `json:"instance_id"`
		// DefinitionID names the workflow definition the instance executes.
		DefinitionID string `json:"definition_id"`
		// Timestamp is the engine clock reading when the event was created.
		Timestamp time.Time `json:"timestamp"`
		// Payload carries the event-specific fields, if any.
		Payload any `json:"payload,omitempty"`
	}
)

// NewSubscriber constructs a Pulse-backed event subscriber. The Client field
// in opts is required; StreamID and MarshalEnvelope default to the built-in
// implementations.
func NewSubscriber(opts Options) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	s := &Subscriber{
		client:  opts.Client,
		stream:  defaultStreamID,
		marshal: defaultMarshal,
	}
	if opts.StreamID != nil {
		s.stream = opts.StreamID
	}
	if opts.MarshalEnvelope != nil {
		s.marshal = opts.MarshalEnvelope
	}
	return s, nil
}

// HandleEvent implements hooks.Subscriber: it derives the stream id, wraps
// the event in an envelope and publishes it. Errors are returned to the bus,
// which logs and moves on; a failed publish never alters workflow semantics.
func (s *Subscriber) HandleEvent(ctx context.Context, event hooks.Event) error {
	streamID, err := s.stream(event)
	if err != nil {
		return err
	}
	handle, err := s.client.Stream(streamID)
	if err != nil {
		return err
	}
	env := Envelope{
		Type:         string(event.Type()),
		InstanceID:   event.InstanceID(),
		DefinitionID: event.DefinitionID(),
		Timestamp:    event.Timestamp(),
		Payload:      event,
	}
	payload, err := s.marshal(env)
	if err != nil {
		return err
	}
	if _, err := handle.Add(ctx, env.Type, payload); err != nil {
		return err
	}
	return nil
}

// Close releases resources owned by the subscriber's Pulse client.
func (s *Subscriber) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func defaultStreamID(event hooks.Event) (string, error) {
	if event.InstanceID() == "" {
		return "", errors.New("engine event missing instance id")
	}
	return fmt.Sprintf("instance/%s", event.InstanceID()), nil
}

func defaultMarshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
