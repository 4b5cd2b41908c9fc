// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file defines all Bubble Tea message types used by the chat interface.
// Messages are organized into the following categories:
//   - Streaming: stream completion and the render tick
//   - Threads: sidebar load, open, and delete results
//   - Backend: server health
//
// All message types follow Bubble Tea conventions and are immutable.
package chat

import (
	"time"

	"github.com/threadline/threadline-tui/internal/client"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamDoneMsg signals that the in-flight stream has terminated.
// Err is nil on a clean finish and on user cancellation; a
// *session.ContentError carries a server-reported failure and a
// *client.ClientError a transport failure.
type StreamDoneMsg struct {
	Err error
}

// StreamTickMsg is sent at 30fps during streaming to batch render deltas.
// This prevents excessive rendering (1000+ fps) which causes flicker and
// high CPU.
type StreamTickMsg struct {
	Time time.Time
}

// =============================================================================
// THREAD MESSAGES
// =============================================================================

// ThreadsLoadedMsg delivers the thread list for the sidebar.
type ThreadsLoadedMsg struct {
	Threads []client.ThreadInfo
	Err     error
}

// ThreadOpenedMsg delivers the messages of a thread selected in the sidebar.
type ThreadOpenedMsg struct {
	ThreadID string
	Messages []client.ThreadMessage
	Err      error
}

// ThreadDeletedMsg confirms a thread deletion.
type ThreadDeletedMsg struct {
	ThreadID string
	Err      error
}

// =============================================================================
// BACKEND MESSAGES
// =============================================================================

// BackendStatusMsg reports whether the threadline server is reachable.
type BackendStatusMsg struct {
	Err error
}
