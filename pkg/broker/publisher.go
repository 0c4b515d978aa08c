package broker

import (
	"context"
	"errors"
)

// Failure kinds reported by publishers. Callers that only care about
// success/failure can treat any non-nil error uniformly; callers that want to
// distinguish connectivity problems from a refused send can errors.Is against
// these sentinels.
var (
	// ErrConnect covers network refusal, auth failure, channel-level protocol
	// errors and publish timeouts.
	ErrConnect = errors.New("broker unreachable")
	// ErrRejected means the broker client refused to accept the send (or the
	// envelope could not be serialized at all).
	ErrRejected = errors.New("send rejected")
)

// EventPublisher durably delivers one event to the broker per call.
type EventPublisher interface {
	// Publish merges the caller's payload with generated envelope metadata,
	// declares the destination queue as durable and enqueues the message with
	// persistent delivery. The payload is opaque to the publisher.
	Publish(ctx context.Context, destination string, payload map[string]any) error
	// Close cleans up any resources (connections).
	Close() error
}
