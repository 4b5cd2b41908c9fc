// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file implements streaming optimization for smooth, flicker-free
// rendering while a response streams in. The StreamingBuffer batches text
// deltas for rendering at a capped frame rate.
package chat

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// STREAMING BUFFER
// =============================================================================

// StreamingBuffer batches text deltas for efficient rendering.
// Deltas are accumulated and flushed when either:
//  1. The batch size threshold is reached (15 deltas)
//  2. Enough time has passed since the last flush (~33ms for 30fps)
//
// This prevents excessive rendering (>1000fps) which causes flicker and
// high CPU usage, while maintaining smooth visual updates.
//
// Thread-safety: all operations are protected by a mutex since the network
// goroutine writes while the main Bubble Tea loop drains.
type StreamingBuffer struct {
	mu         sync.Mutex
	buffer     strings.Builder
	deltaCount int
	lastFlush  time.Time

	batchSize     int           // Deltas per batch
	minFlushDelay time.Duration // Min time between flushes (1000ms/maxFPS)
}

// NewStreamingBuffer creates a streaming buffer with default settings:
// batch size 15, max 30 flushes per second.
func NewStreamingBuffer() *StreamingBuffer {
	return NewStreamingBufferWithConfig(15, 30)
}

// NewStreamingBufferWithConfig creates a streaming buffer with custom
// batch size and frame rate. Out-of-range values fall back to defaults.
func NewStreamingBufferWithConfig(batchSize, maxFPS int) *StreamingBuffer {
	if batchSize <= 0 {
		batchSize = 15
	}
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = 30
	}

	return &StreamingBuffer{
		batchSize:     batchSize,
		minFlushDelay: time.Duration(1000/maxFPS) * time.Millisecond,
		lastFlush:     time.Now(),
	}
}

// Write adds a text delta to the buffer.
// Called from the streaming goroutine.
func (sb *StreamingBuffer) Write(delta string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.buffer.WriteString(delta)
	sb.deltaCount++
}

// Flush returns accumulated content if a flush threshold has been reached,
// and resets the buffer. Returns ("", false) when nothing should be
// rendered yet. Called from the main Bubble Tea loop.
func (sb *StreamingBuffer) Flush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if !sb.shouldFlushLocked() {
		return "", false
	}
	return sb.drainLocked(), true
}

// ForceFlush immediately flushes all buffered content regardless of
// thresholds. Use this when a stream terminates so no trailing text is
// lost.
func (sb *StreamingBuffer) ForceFlush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.buffer.Len() == 0 {
		return "", false
	}
	return sb.drainLocked(), true
}

// Reset clears the buffer without flushing.
// Use this when cancelling a stream or starting a new message.
func (sb *StreamingBuffer) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.buffer.Reset()
	sb.deltaCount = 0
	sb.lastFlush = time.Now()
}

// Pending returns the number of deltas waiting to be flushed.
func (sb *StreamingBuffer) Pending() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.deltaCount
}

// shouldFlushLocked checks flush conditions. Caller must hold the lock.
func (sb *StreamingBuffer) shouldFlushLocked() bool {
	if sb.buffer.Len() == 0 {
		return false
	}
	if sb.deltaCount >= sb.batchSize {
		return true
	}
	// Time-based flush keeps slow streams animating smoothly.
	return time.Since(sb.lastFlush) >= sb.minFlushDelay
}

// drainLocked extracts content and resets. Caller must hold the lock.
func (sb *StreamingBuffer) drainLocked() string {
	content := sb.buffer.String()
	sb.buffer.Reset()
	sb.deltaCount = 0
	sb.lastFlush = time.Now()
	return content
}

// =============================================================================
// STREAMING TICK COMMAND
// =============================================================================

// streamTickCmd creates a tea.Cmd that sends StreamTickMsg at 30fps.
// The tick loop runs only while a stream is in flight.
func streamTickCmd() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
