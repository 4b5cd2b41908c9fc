// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks per-request message accumulation and the
// process-wide current thread identity.
//
// # Key Types
//
//   - Accumulator: folds decoder events into MessageState snapshots
//   - MessageState: full snapshot of one in-flight assistant message
//   - Registry: the current-thread-id value shared across requests
//   - ContentError: terminal mid-stream failure reported by the server
//
// # Usage
//
// Accumulate one request's stream:
//
//	acc := session.NewAccumulator(registry, threadID)
//	for _, ev := range events {
//	    if snap, emit := acc.Apply(ev); emit {
//	        render(snap)
//	    }
//	}
//	if err := acc.Err(); err != nil {
//	    // content-level failure; partial text may already be rendered
//	}
//
// An Accumulator is exclusively owned by one in-flight request. The Registry
// is the only cross-request shared mutable value: annotation-derived thread
// ids are written last-writer-wins and the transport reads it once per send.
package session
