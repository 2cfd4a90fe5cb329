// Package streaming fans run lifecycle events out to live subscribers.
// The REST layer bridges it to server-sent events so open flow views can
// refresh without polling.
package streaming

import "context"

// RunEvent is a real-time event emitted while a run executes.
type RunEvent struct {
	DocumentID string `json:"document_id"`
	NodeID     string `json:"node_id,omitempty"`
	EventType  string `json:"event_type"`
	Payload    any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	DocumentID string   `json:"document_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time run events.
type EventHub interface {
	Publish(ctx context.Context, event RunEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan RunEvent, func(), error)
}
