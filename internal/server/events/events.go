// Package events defines the typed domain events the escrow services emit
// after a successful commit, and a channel-backed sink external notification
// consumers drain. The core only produces events; rendering notifications is
// someone else's job.
package events

import (
	"context"
	"time"

	"github.com/teamvault/escrow/internal/server/models"
)

// Event names. Exactly one policy event is emitted per policy change.
const (
	PolicyEnable  = "policy.enable"
	PolicyDisable = "policy.disable"
	PolicyUpdate  = "policy.update"

	RequestCreate   = "request.create"
	RequestApprove  = "request.approve"
	RequestReject   = "request.reject"
	RequestComplete = "request.complete"
)

// Event is the payload handed to notification consumers.
type Event struct {
	Name     string
	ActorID  string
	Occurred time.Time

	// Policy events carry both sides of the transition.
	OldPolicy *models.OrganizationPolicy
	NewPolicy *models.OrganizationPolicy

	// Request events carry the affected recovery request.
	Request *models.RecoveryRequest
}

// Sink accepts domain events. Publishing never blocks the domain transaction
// that produced the event.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

// ChannelSink buffers events on a channel for an external consumer.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink builds a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Publish enqueues the event. When the buffer is full the event is dropped
// rather than stalling the caller; notification delivery is best-effort.
func (s *ChannelSink) Publish(ctx context.Context, event Event) {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	select {
	case s.ch <- event:
	default:
	}
}

// Events exposes the consumer side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

var _ Sink = (*ChannelSink)(nil)
