// Package types - live stream events
//
// The tailer and aggregator emit typed events; transport adapters
// (websocket, SSE) only encode them for the wire. Keeping the event
// shapes here decouples streaming logic from the wire protocol.
package types

import "time"

// StreamEventKind identifies a live transport event.
type StreamEventKind string

const (
	// StreamOpened - subscription resolved, names the active file
	StreamOpened StreamEventKind = "opened"
	// StreamLines - one batch of log lines, in file order
	StreamLines StreamEventKind = "lines"
	// StreamRotation - rotation candidate available, stream unchanged
	StreamRotation StreamEventKind = "rotation"
	// StreamError - stream failed for this subscriber only
	StreamError StreamEventKind = "error"
	// StreamStatus - status snapshot push
	StreamStatus StreamEventKind = "status"
	// StreamClosed - subscription terminated
	StreamClosed StreamEventKind = "closed"
)

// RotationReason explains why a rotation signal was raised.
type RotationReason string

const (
	// RotationTruncated - active file shrank below the read offset
	RotationTruncated RotationReason = "truncated"
	// RotationReplaced - active file was deleted and recreated
	RotationReplaced RotationReason = "replaced"
	// RotationNewerMatch - a newer file matching the glob appeared
	RotationNewerMatch RotationReason = "newer_match"
)

// StreamEvent is one event pushed to a live subscriber.
type StreamEvent struct {
	Kind           StreamEventKind `json:"kind"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`

	// Kind == StreamOpened / StreamLines / StreamRotation
	File  string   `json:"file,omitempty"`
	Lines []string `json:"lines,omitempty"`

	// Kind == StreamRotation
	Candidate string         `json:"candidate,omitempty"`
	Reason    RotationReason `json:"reason,omitempty"`

	// Kind == StreamError
	Error string `json:"error,omitempty"`

	// Kind == StreamStatus
	States []ServiceState `json:"states,omitempty"`
}
