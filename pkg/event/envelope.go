package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata keys merged into the JSON body alongside the caller's payload fields.
const (
	KeyEventID     = "_eventId"
	KeyPublishedAt = "_publishedAt"
	KeySource      = "_source"
)

// Envelope is the unit of data placed on the wire. It is built fresh for every
// publish call and never persisted; once marshalled the in-memory value is
// discarded.
type Envelope struct {
	Destination string
	Payload     map[string]any
	EventID     string
	PublishedAt time.Time
	Source      string
}

// New constructs a complete envelope for one publish attempt. The event id is
// derived from the destination plus the publish timestamp, so it is unique per
// attempt but not globally unique under clock skew.
func New(destination, source string, payload map[string]any, now time.Time) *Envelope {
	return &Envelope{
		Destination: destination,
		Payload:     payload,
		EventID:     fmt.Sprintf("%s_%d", destination, now.UnixMilli()),
		PublishedAt: now,
		Source:      source,
	}
}

// Marshal serializes the envelope to a UTF-8 JSON body. The payload's own
// fields sit at the top level next to the metadata keys, not nested under a
// sub-object. Metadata keys win on collision.
func (e *Envelope) Marshal() ([]byte, error) {
	body := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		body[k] = v
	}
	body[KeyEventID] = e.EventID
	body[KeyPublishedAt] = e.PublishedAt.UTC().Format(time.RFC3339)
	body[KeySource] = e.Source

	return json.Marshal(body)
}
