// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file implements thread-safe cancel function handling. The cancel
// function is accessed from both the Update loop and the streaming
// goroutine, so it needs synchronization.
package chat

import (
	"context"
	"sync"
)

// =============================================================================
// CANCEL FUNCTION MANAGEMENT
// =============================================================================

// cancelManager manages the cancel function with mutex protection.
// IMPORTANT: This must be held as a pointer (*cancelManager) in the Model
// to prevent copying the mutex when Bubble Tea's Update returns model
// copies.
type cancelManager struct {
	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

func newCancelManager() *cancelManager {
	return &cancelManager{}
}

// set stores a new cancel function, cancelling any previous one first so
// contexts never leak.
func (cm *cancelManager) set(fn context.CancelFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancelFunc != nil {
		cm.cancelFunc()
	}
	cm.cancelFunc = fn
}

// cancel invokes the stored cancel function and clears it.
// Safe to call multiple times or with no cancel function set.
func (cm *cancelManager) cancel() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancelFunc != nil {
		cm.cancelFunc()
		cm.cancelFunc = nil
	}
}

// =============================================================================
// MODEL METHODS (CONVENIENCE WRAPPERS)
// =============================================================================

// setCancelFunc stores the cancel function for the current streaming send.
func (m *Model) setCancelFunc(fn context.CancelFunc) {
	m.cancelMgr.set(fn)
}

// cancelStream cancels the current streaming send if one is in progress.
func (m *Model) cancelStream() {
	m.cancelMgr.cancel()
}
