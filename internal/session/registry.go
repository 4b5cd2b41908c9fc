// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks per-request message accumulation and the
// process-wide current thread identity.
package session

import "sync"

// =============================================================================
// THREAD IDENTITY REGISTRY
// =============================================================================

// Registry holds the current thread id: the thread the next outbound send
// should attach to. It is shared mutable state with last-writer-wins
// semantics.
//
// Writers are the UI (new-thread and select-thread actions) and accumulators
// applying annotation-derived ids; the transport reads it once per send, at
// send initiation. The mutex exists because the UI loop and stream goroutines
// genuinely run concurrently.
type Registry struct {
	mu       sync.Mutex
	threadID string
}

// NewRegistry creates a registry with no current thread.
func NewRegistry() *Registry {
	return &Registry{}
}

// Current returns the current thread id and whether one is set.
func (r *Registry) Current() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threadID, r.threadID != ""
}

// Set records id as the current thread. Empty ids are ignored; use Clear to
// start a new conversation.
func (r *Registry) Set(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threadID = id
}

// Clear removes the current thread so the next send starts a new one and
// lets the server assign the id.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threadID = ""
}
