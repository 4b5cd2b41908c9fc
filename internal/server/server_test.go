// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/threadline-tui/internal/llm"
	"github.com/threadline/threadline-tui/internal/store"
	"github.com/threadline/threadline-tui/internal/stream"
)

// scriptedResponder emits a fixed token sequence. If failAfter >= 0, it
// returns err after emitting that many tokens.
type scriptedResponder struct {
	deltas    []string
	failAfter int
	err       error

	mu          sync.Mutex
	lastHistory []llm.Message
}

func newScriptedResponder(deltas ...string) *scriptedResponder {
	return &scriptedResponder{deltas: deltas, failAfter: -1}
}

func (r *scriptedResponder) Respond(ctx context.Context, history []llm.Message, emit func(delta string)) (*llm.Result, error) {
	r.mu.Lock()
	r.lastHistory = history
	r.mu.Unlock()

	var text strings.Builder
	for i, delta := range r.deltas {
		if r.failAfter >= 0 && i == r.failAfter {
			return nil, r.err
		}
		text.WriteString(delta)
		if emit != nil {
			emit(delta)
		}
	}
	return &llm.Result{Text: text.String(), FinishReason: "stop"}, nil
}

func (r *scriptedResponder) history() []llm.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHistory
}

func newTestServer(t *testing.T, responder llm.Responder) (*httptest.Server, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "threadline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := NewServer(0, st, responder)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts, st
}

func postChat(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

// decodeBody runs the full response body through a frame decoder.
func decodeBody(t *testing.T, body io.Reader) []stream.Event {
	t.Helper()

	data, err := io.ReadAll(body)
	require.NoError(t, err)

	dec := stream.NewDecoder()
	events := dec.Feed(data)
	return append(events, dec.Close()...)
}

// =============================================================================
// CHAT
// =============================================================================

func TestChat_StreamDecodesWithFrameDecoder(t *testing.T) {
	ts, _ := newTestServer(t, newScriptedResponder("Hel", "lo ", "世界"))

	resp := postChat(t, ts, "/api/chat", map[string]any{"query": "hi", "thread_id": nil})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	events := decodeBody(t, resp.Body)
	require.NotEmpty(t, events)

	var text strings.Builder
	var annotation *stream.Event
	for _, ev := range events {
		switch ev.Type {
		case stream.EventTextDelta:
			text.WriteString(ev.Text)
		case stream.EventAnnotation:
			require.Nil(t, annotation, "expected a single annotation")
			a := ev
			annotation = &a
		}
	}

	assert.Equal(t, "Hello 世界", text.String())
	require.NotNil(t, annotation, "annotation frame missing")
	assert.NotEmpty(t, annotation.ThreadID)
	assert.NotEmpty(t, annotation.MessageID)

	// Finish is the last event; the annotation precedes it.
	last := events[len(events)-1]
	assert.Equal(t, stream.EventFinish, last.Type)
	assert.Equal(t, "stop", last.FinishReason)
}

func TestChat_PersistsBothMessages(t *testing.T) {
	responder := newScriptedResponder("answer")
	ts, st := newTestServer(t, responder)

	resp := postChat(t, ts, "/api/chat", map[string]any{"query": "what is Go?"})
	defer resp.Body.Close()
	events := decodeBody(t, resp.Body)

	var threadID string
	for _, ev := range events {
		if ev.Type == stream.EventAnnotation {
			threadID = ev.ThreadID
		}
	}
	require.NotEmpty(t, threadID)

	messages, err := st.GetThread(context.Background(), threadID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleHuman, messages[0].Role)
	assert.Equal(t, "what is Go?", messages[0].Content)
	assert.Equal(t, store.RoleAI, messages[1].Role)
	assert.Equal(t, "answer", messages[1].Content)

	// Title falls back to the first human message.
	threads, err := st.ListThreads(context.Background())
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "what is Go?", threads[0].Title)
}

func TestChat_ExistingThreadCarriesHistory(t *testing.T) {
	responder := newScriptedResponder("again")
	ts, st := newTestServer(t, responder)

	ctx := context.Background()
	threadID, err := st.CreateThread(ctx, "", "")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, threadID, store.RoleHuman, "first")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, threadID, store.RoleAI, "first answer")
	require.NoError(t, err)

	resp := postChat(t, ts, "/api/chat", map[string]any{"query": "second", "thread_id": threadID})
	defer resp.Body.Close()
	events := decodeBody(t, resp.Body)

	for _, ev := range events {
		if ev.Type == stream.EventAnnotation {
			assert.Equal(t, threadID, ev.ThreadID)
		}
	}

	require.Equal(t, []llm.Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "second"},
	}, responder.history())
}

func TestChat_ResponderErrorAfterDeltas(t *testing.T) {
	responder := newScriptedResponder("par", "tial", "never")
	responder.failAfter = 2
	responder.err = llm.ErrNotRunning
	ts, _ := newTestServer(t, responder)

	resp := postChat(t, ts, "/api/chat", map[string]any{"query": "hi"})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decodeBody(t, resp.Body)

	var text strings.Builder
	for _, ev := range events {
		if ev.Type == stream.EventTextDelta {
			text.WriteString(ev.Text)
		}
	}
	assert.Equal(t, "partial", text.String())

	last := events[len(events)-1]
	require.Equal(t, stream.EventError, last.Type)
	assert.Equal(t, "model backend is not running", last.Message)
}

func TestChat_BadRequests(t *testing.T) {
	ts, _ := newTestServer(t, newScriptedResponder("x"))

	resp := postChat(t, ts, "/api/chat", map[string]any{"query": "  "})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

// =============================================================================
// SEARCH
// =============================================================================

func TestSearch_ReturnsThreadAndMessageIDs(t *testing.T) {
	ts, st := newTestServer(t, newScriptedResponder("found it"))

	resp := postChat(t, ts, "/api/search", map[string]any{"query": "find"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result searchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))

	assert.Equal(t, "found it", result.Response)
	require.NotEmpty(t, result.ThreadID)
	require.NotEmpty(t, result.MessageID)

	messages, err := st.GetThread(context.Background(), result.ThreadID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, result.MessageID, messages[1].ID)
}

// =============================================================================
// THREAD ENDPOINTS
// =============================================================================

func doRequest(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestThreadLifecycle(t *testing.T) {
	ts, st := newTestServer(t, newScriptedResponder("x"))
	ctx := context.Background()

	threadID, err := st.CreateThread(ctx, "", "notes")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, threadID, store.RoleHuman, "hello")
	require.NoError(t, err)

	// List.
	resp, err := http.Get(ts.URL + "/api/threads")
	require.NoError(t, err)
	var list threadListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Threads, 1)
	assert.Equal(t, "notes", list.Threads[0].Title)

	// Get messages.
	resp, err = http.Get(ts.URL + "/api/thread/" + threadID)
	require.NoError(t, err)
	var thread threadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&thread))
	resp.Body.Close()
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, store.RoleHuman, thread.Messages[0].Role)

	// Rename.
	resp = doRequest(t, http.MethodPut, ts.URL+"/api/thread/"+threadID, strings.NewReader(`{"title":"renamed"}`))
	var mutation mutationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mutation))
	resp.Body.Close()
	assert.True(t, mutation.Success)

	// Renaming a missing thread reports success=false.
	resp = doRequest(t, http.MethodPut, ts.URL+"/api/thread/nope", strings.NewReader(`{"title":"x"}`))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mutation))
	resp.Body.Close()
	assert.False(t, mutation.Success)
	assert.Equal(t, "Thread not found", mutation.Message)

	// Delete.
	resp = doRequest(t, http.MethodDelete, ts.URL+"/api/thread/"+threadID, nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mutation))
	resp.Body.Close()
	assert.True(t, mutation.Success)

	// The thread is gone.
	resp, err = http.Get(ts.URL + "/api/thread/" + threadID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, newScriptedResponder("x"))

	for _, path := range []string{"/health", "/"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)

		var health map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", health["status"], "path %s", path)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	defer limiter.Stop()

	handler := Chain(
		RateLimitMiddleware(limiter),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ts := httptest.NewServer(handler)
	defer ts.Close()

	var limited bool
	for i := 0; i < 5; i++ {
		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			assert.Equal(t, "1", resp.Header.Get("Retry-After"))
		}
	}
	assert.True(t, limited, "expected at least one 429 after burst exhaustion")
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	limiter.Stop()
	limiter.Stop() // second call must not panic

	// Allow still works after Stop; only the sweep is gone.
	assert.True(t, limiter.Allow("203.0.113.9"))
}

func TestHandler_SharesOneRateLimiter(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "threadline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := NewServer(0, st, newScriptedResponder("ok"))
	srv.limiter.Stop()
	srv.limiter = NewRateLimiter(1, 1)
	t.Cleanup(srv.limiter.Stop)

	// Two Handler() calls must share the server's limiter; exhausting the
	// burst through one handler limits the other.
	h1 := srv.Handler()
	h2 := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.7:5000"

	rec := httptest.NewRecorder()
	h1.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h2.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestShutdown_StopsRateLimiterSweep(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "threadline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := NewServer(0, st, newScriptedResponder("ok"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	// The sweep's stop channel is closed exactly once; a second Shutdown
	// must not panic.
	require.NoError(t, srv.Shutdown(ctx))
	select {
	case <-srv.limiter.stop:
	default:
		t.Fatal("Shutdown should close the rate limiter stop channel")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	handler := RecoveryMiddleware(log.New(&buf, "", 0))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "PANIC_RECOVERED")
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, newScriptedResponder("x"))

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:4321"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "192.0.2.10", GetClientIP(r), "forwarded headers ignored off loopback")

	r.RemoteAddr = "127.0.0.1:4321"
	assert.Equal(t, "203.0.113.9", GetClientIP(r))
}
