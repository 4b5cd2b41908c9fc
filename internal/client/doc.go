// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client provides the HTTP client for communicating with the
// threadline backend API.
//
// The client owns the transport side of the streaming chat protocol: it
// issues POST /api/chat, hands the chunked response body to a stream.Decoder
// and drives a session.Accumulator, delivering full-state snapshots to the
// caller. Thread listing, fetching, renaming and deletion wrap the REST
// endpoints used to seed UI state before a chat session begins.
//
// # Key Types
//
//   - Client: HTTP client bound to one backend base URL and one Registry
//   - SnapshotFunc: per-snapshot callback for streaming sends
//   - Update: channel element for the SendChan variant
//   - ClientError: typed transport error with an ErrorType discriminator
//
// # Failure taxonomy
//
// Transport failures (unreachable backend, non-2xx status) surface before
// any snapshot. Content failures (server error frame) surface as
// *session.ContentError after zero or more snapshots. Per-frame decode
// failures are swallowed by the decoder. Cancellation is not an error: the
// sequence just ends.
package client
