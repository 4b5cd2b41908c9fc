// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client provides the HTTP client for communicating with the
// threadline backend API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/threadline/threadline-tui/internal/session"
	"github.com/threadline/threadline-tui/internal/stream"
)

// =============================================================================
// CHAT REQUEST
// =============================================================================

// chatRequest is the outbound body of POST /api/chat and /api/search.
// ThreadID is null to start a new thread and let the server assign one.
type chatRequest struct {
	Query     string  `json:"query"`
	ThreadID  *string `json:"thread_id"`
	MessageID *string `json:"message_id"`
}

func newChatRequest(query, threadID string) chatRequest {
	req := chatRequest{Query: query}
	if threadID != "" {
		req.ThreadID = &threadID
	}
	return req
}

// =============================================================================
// STREAMING SEND
// =============================================================================

// SnapshotFunc receives message state snapshots during a streaming send.
// It is called synchronously, in frame order.
type SnapshotFunc func(snapshot session.MessageState)

// readBufSize is the stream read buffer size.
const readBufSize = 4 * 1024

// SendStream issues one POST /api/chat and delivers accumulated snapshots
// through fn until the stream terminates.
//
// The registry's current thread id is read once, at send initiation.
// Failure contract:
//   - transport failures (dial, non-2xx) return a *ClientError before any
//     snapshot is delivered;
//   - a server error frame returns a *session.ContentError after zero or
//     more snapshots;
//   - cancellation via ctx ends the stream silently with a nil error and no
//     further reads;
//   - stream end without a terminal frame is a clean finish.
func (c *Client) SendStream(ctx context.Context, query string, fn SnapshotFunc) error {
	threadID, _ := c.registry.Current()

	body, err := json.Marshal(newChatRequest(query, threadID))
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	// Use a client without timeout for streaming (cancellation comes from ctx).
	streamClient := &http.Client{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled before any byte arrived: not a failure.
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	// Guaranteed release of the connection on every exit path.
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "chat request failed: " + resp.Status,
		}
	}

	dec := stream.NewDecoder()
	acc := session.NewAccumulator(c.registry, threadID)
	buf := make([]byte, readBufSize)

	apply := func(events []stream.Event) {
		for _, ev := range events {
			if snapshot, emit := acc.Apply(ev); emit && fn != nil {
				fn(snapshot)
			}
		}
	}

	for {
		// Cancellation is checked before every read; once observed, no
		// further reads happen and the sequence ends silently.
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			apply(dec.Feed(buf[:n]))
			if acc.Done() {
				return acc.Err()
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				// Implicit clean finish; flush the trailing partial line.
				apply(dec.Close())
				return acc.Err()
			}
			if ctx.Err() != nil {
				return nil
			}
			return &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: readErr}
		}
	}
}

// =============================================================================
// CHANNEL VARIANT
// =============================================================================

// Update is one element of a SendChan sequence. Either a snapshot, or the
// terminal element with Done set (and Err carrying any failure).
type Update struct {
	State session.MessageState
	Done  bool
	Err   error
}

// SendChan runs SendStream on a goroutine and returns a channel of updates.
// The channel is closed after the terminal update. Cancellation closes the
// channel with a clean (nil-error) terminal update.
func (c *Client) SendChan(ctx context.Context, query string) <-chan Update {
	ch := make(chan Update, 16)

	go func() {
		defer close(ch)

		err := c.SendStream(ctx, query, func(snapshot session.MessageState) {
			select {
			case ch <- Update{State: snapshot}:
			case <-ctx.Done():
			}
		})

		select {
		case ch <- Update{Done: true, Err: err}:
		case <-ctx.Done():
			// Cancelled senders end silently; the consumer is gone.
		}
	}()

	return ch
}
