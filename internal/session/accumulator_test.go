// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks per-request message accumulation and the
// process-wide current thread identity.
package session

import (
	"errors"
	"testing"

	"github.com/threadline/threadline-tui/internal/stream"
)

// =============================================================================
// ACCUMULATOR TESTS
// =============================================================================

func TestAccumulator_TextSnapshots(t *testing.T) {
	acc := NewAccumulator(nil, "")

	snap, emit := acc.Apply(stream.Event{Type: stream.EventTextDelta, Text: "Hel"})
	if !emit {
		t.Fatal("text delta should emit a snapshot")
	}
	if snap.Text != "Hel" {
		t.Errorf("snapshot text = %q, want %q", snap.Text, "Hel")
	}

	snap, emit = acc.Apply(stream.Event{Type: stream.EventTextDelta, Text: "lo"})
	if !emit {
		t.Fatal("text delta should emit a snapshot")
	}
	if snap.Text != "Hello" {
		t.Errorf("snapshot text = %q, want %q", snap.Text, "Hello")
	}
}

func TestAccumulator_TextIsMonotonic(t *testing.T) {
	acc := NewAccumulator(nil, "")

	deltas := []string{"a", "", "bc", "def", ""}
	lastLen := 0
	for _, d := range deltas {
		snap, _ := acc.Apply(stream.Event{Type: stream.EventTextDelta, Text: d})
		if len(snap.Text) < lastLen {
			t.Fatalf("snapshot length decreased: %d -> %d", lastLen, len(snap.Text))
		}
		lastLen = len(snap.Text)
	}
}

func TestAccumulator_AnnotationIsSilent(t *testing.T) {
	reg := NewRegistry()
	acc := NewAccumulator(reg, "")

	_, emit := acc.Apply(stream.Event{Type: stream.EventAnnotation, ThreadID: "abc", MessageID: "m1"})
	if emit {
		t.Error("annotation should not emit a snapshot")
	}

	if id, ok := reg.Current(); !ok || id != "abc" {
		t.Errorf("registry = (%q, %v), want (\"abc\", true)", id, ok)
	}

	state := acc.State()
	if state.ThreadID != "abc" || state.MessageID != "m1" {
		t.Errorf("state = %+v, want thread abc / message m1", state)
	}
}

func TestAccumulator_KeepsPriorThreadID(t *testing.T) {
	acc := NewAccumulator(nil, "prior")

	snap, _ := acc.Apply(stream.Event{Type: stream.EventTextDelta, Text: "x"})
	if snap.ThreadID != "prior" {
		t.Errorf("ThreadID = %q, want caller's prior value", snap.ThreadID)
	}

	// An annotation without a thread id must not clobber it either.
	acc.Apply(stream.Event{Type: stream.EventAnnotation, MessageID: "m2"})
	if acc.State().ThreadID != "prior" {
		t.Errorf("ThreadID = %q after empty annotation, want %q", acc.State().ThreadID, "prior")
	}
}

func TestAccumulator_ErrorSignal(t *testing.T) {
	acc := NewAccumulator(nil, "")

	acc.Apply(stream.Event{Type: stream.EventTextDelta, Text: "partial"})
	_, emit := acc.Apply(stream.Event{Type: stream.EventError, Message: "boom"})
	if emit {
		t.Error("error event should not emit a snapshot")
	}

	if !acc.Done() {
		t.Error("accumulator should be done after error")
	}
	var contentErr *ContentError
	if err := acc.Err(); err == nil {
		t.Fatal("Err() = nil, want content error")
	} else if !errors.As(err, &contentErr) || contentErr.Message != "boom" {
		t.Errorf("Err() = %v, want ContentError(boom)", err)
	}

	// Events after the terminal one are ignored.
	snap, emit := acc.Apply(stream.Event{Type: stream.EventTextDelta, Text: "late"})
	if emit || snap.Text != "partial" {
		t.Errorf("post-terminal apply: emit=%v text=%q, want false/%q", emit, snap.Text, "partial")
	}
}

func TestAccumulator_FinishSignal(t *testing.T) {
	acc := NewAccumulator(nil, "")

	_, emit := acc.Apply(stream.Event{Type: stream.EventFinish, FinishReason: "stop"})
	if emit {
		t.Error("finish event should not emit a snapshot")
	}
	if !acc.Done() || acc.Err() != nil {
		t.Errorf("done=%v err=%v, want clean termination", acc.Done(), acc.Err())
	}
	if acc.FinishReason() != "stop" {
		t.Errorf("FinishReason() = %q, want %q", acc.FinishReason(), "stop")
	}
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestRegistry_SetAndClear(t *testing.T) {
	reg := NewRegistry()

	if id, ok := reg.Current(); ok || id != "" {
		t.Errorf("fresh registry = (%q, %v), want empty", id, ok)
	}

	reg.Set("t1")
	reg.Set("") // ignored
	if id, ok := reg.Current(); !ok || id != "t1" {
		t.Errorf("registry = (%q, %v), want (\"t1\", true)", id, ok)
	}

	reg.Set("t2")
	if id, _ := reg.Current(); id != "t2" {
		t.Errorf("registry = %q, want last writer t2", id)
	}

	reg.Clear()
	if _, ok := reg.Current(); ok {
		t.Error("registry should be empty after Clear")
	}
}

func TestRegistry_ConcurrentWrites(t *testing.T) {
	reg := NewRegistry()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				reg.Set("thread")
				reg.Current()
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if id, ok := reg.Current(); !ok || id != "thread" {
		t.Errorf("registry = (%q, %v) after concurrent writes", id, ok)
	}
}
