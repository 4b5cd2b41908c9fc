// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream implements the newline-delimited data stream protocol
// spoken between the threadline backend and its chat clients.
package stream

// =============================================================================
// FRAME TYPE CODES
// =============================================================================

// Frame type codes as they appear on the wire. Each frame is one line of the
// form "<code>:<json payload>" terminated by a newline.
const (
	// CodeText carries an incremental piece of assistant output.
	// Payload: JSON string literal.
	CodeText = "0"

	// CodeAnnotation carries out-of-band metadata.
	// Payload: JSON array of objects with optional thread_id / message_id.
	CodeAnnotation = "8"

	// CodeError signals a terminal failure reported by the server mid-stream.
	// Payload: JSON string (best effort; raw text is used if it does not parse).
	CodeError = "3"

	// CodeFinish is the terminal success marker.
	// Payload: JSON object with finishReason and usage.
	CodeFinish = "d"
)

// =============================================================================
// EVENTS
// =============================================================================

// EventType identifies the decoded form of a frame.
type EventType int

const (
	// EventTextDelta is an incremental piece of assistant output.
	EventTextDelta EventType = iota

	// EventAnnotation carries thread/message identifiers.
	EventAnnotation

	// EventError is a terminal failure. No events follow it.
	EventError

	// EventFinish is a terminal success marker. No events follow it.
	EventFinish
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EventTextDelta:
		return "text-delta"
	case EventAnnotation:
		return "annotation"
	case EventError:
		return "error"
	case EventFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// Event is the decoded, typed form of one protocol frame.
// Only the fields relevant to the event's Type are populated.
type Event struct {
	Type EventType

	// Text is the delta fragment (EventTextDelta).
	Text string

	// ThreadID and MessageID identify the conversation (EventAnnotation).
	ThreadID  string
	MessageID string

	// Message is the server-reported failure text (EventError).
	Message string

	// FinishReason and Usage describe a successful completion (EventFinish).
	FinishReason string
	Usage        Usage
}

// Terminal reports whether no further events may follow this one.
func (e Event) Terminal() bool {
	return e.Type == EventError || e.Type == EventFinish
}

// Usage carries token accounting from the finish frame.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Annotation is the wire shape of one entry in an annotation frame payload.
type Annotation struct {
	ThreadID  string `json:"thread_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// finishPayload is the wire shape of the finish frame payload.
type finishPayload struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
}
