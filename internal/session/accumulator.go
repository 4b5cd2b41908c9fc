// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks per-request message accumulation and the
// process-wide current thread identity.
package session

import (
	"strings"

	"github.com/threadline/threadline-tui/internal/stream"
)

// =============================================================================
// MESSAGE STATE
// =============================================================================

// MessageState is a full snapshot of one in-flight assistant message.
// Consumers always receive the entire accumulated text, never a diff, so a
// UI can render directly from the latest snapshot.
type MessageState struct {
	// Text is the concatenation of all deltas received so far, in order.
	Text string

	// ThreadID is the last annotation-supplied thread id, or the id the
	// request was started with.
	ThreadID string

	// MessageID is the last annotation-supplied message id, if any.
	MessageID string
}

// =============================================================================
// CONTENT ERROR
// =============================================================================

// ContentError is a terminal failure reported by the server mid-stream.
// It is distinct from transport failures: zero or more snapshots may already
// have been delivered when it occurs.
type ContentError struct {
	Message string
}

func (e *ContentError) Error() string {
	if e.Message == "" {
		return "server reported an error"
	}
	return e.Message
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Accumulator consumes one decoder event sequence and derives message state
// snapshots from it.
//
// An Accumulator is exclusively owned by one in-flight request and is not
// safe for concurrent use; concurrent sends each get their own.
type Accumulator struct {
	registry *Registry

	// PERFORMANCE: strings.Builder avoids quadratic concatenation.
	text      strings.Builder
	threadID  string
	messageID string

	done         bool
	finishReason string
	err          error
}

// NewAccumulator creates an accumulator for one request. threadID is the
// caller's prior thread id ("" for a new thread); registry receives
// annotation-derived thread ids and may be nil.
func NewAccumulator(registry *Registry, threadID string) *Accumulator {
	return &Accumulator{registry: registry, threadID: threadID}
}

// Apply folds one event into the accumulated state. The returned bool
// reports whether a snapshot should be delivered to the consumer: true only
// for text deltas. Annotations are silent metadata, terminal events end the
// sequence.
func (a *Accumulator) Apply(ev stream.Event) (MessageState, bool) {
	if a.done {
		return a.State(), false
	}

	switch ev.Type {
	case stream.EventTextDelta:
		a.text.WriteString(ev.Text)
		return a.State(), true

	case stream.EventAnnotation:
		if ev.ThreadID != "" {
			a.threadID = ev.ThreadID
			if a.registry != nil {
				a.registry.Set(ev.ThreadID)
			}
		}
		if ev.MessageID != "" {
			a.messageID = ev.MessageID
		}

	case stream.EventError:
		a.done = true
		a.err = &ContentError{Message: ev.Message}

	case stream.EventFinish:
		a.done = true
		a.finishReason = ev.FinishReason
	}

	return a.State(), false
}

// State returns the current snapshot.
func (a *Accumulator) State() MessageState {
	return MessageState{
		Text:      a.text.String(),
		ThreadID:  a.threadID,
		MessageID: a.messageID,
	}
}

// Done reports whether a terminal event has been applied.
func (a *Accumulator) Done() bool {
	return a.done
}

// Err returns the content-level failure, if the sequence ended with one.
func (a *Accumulator) Err() error {
	return a.err
}

// FinishReason returns the server-supplied finish reason, if any.
func (a *Accumulator) FinishReason() string {
	return a.finishReason
}
