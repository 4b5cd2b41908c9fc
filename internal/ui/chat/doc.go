// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the main chat view for the threadline TUI.

The chat package implements a terminal-based chat interface using the
Bubble Tea framework, backed by the threadline HTTP API. It streams
assistant responses in real time and manages persisted threads.

# Key Components

## Model (model.go)

The Model struct is the central Bubble Tea model that maintains all chat
state: the message history of the open thread, the thread sidebar, the
input field, and the streaming state of an in-flight response.

## Update Loop (update.go)

Message handling for keyboard input, thread operations (open, new,
delete), and the streaming life cycle. Responses stream on a goroutine
through client.SendStream; deltas are batched by a StreamingBuffer and
drained at a capped frame rate from the Bubble Tea loop.

## View Rendering (view.go)

Rendering for the complete interface: header with the open thread title,
optional thread sidebar, message bubbles with role-specific styling,
Glamour-rendered markdown for completed assistant messages, and a status
bar with keyboard shortcuts.

## Streaming (streaming.go)

StreamingBuffer batches deltas from the network goroutine so rendering
stays at ~30fps regardless of token rate.

# Thread Identity

The package never invents thread ids. The session.Registry carries the
current thread id; it is set from server annotations during streaming and
cleared when the user starts a new thread.
*/
package chat
