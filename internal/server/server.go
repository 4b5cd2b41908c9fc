// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/threadline/threadline-tui/internal/llm"
	"github.com/threadline/threadline-tui/internal/store"
	"github.com/threadline/threadline-tui/internal/stream"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultPort is the default port for the HTTP server.
	DefaultPort = 8600

	// MaxQueryLength is the maximum length for a query to prevent abuse.
	MaxQueryLength = 100000

	// MaxRequestBodySize is the maximum size for a request body (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// Version is the server version.
	Version = "0.2.0"
)

// =============================================================================
// SERVER
// =============================================================================

// Server is the threadline HTTP API server. It persists conversations in a
// sqlite store and synthesizes assistant responses through a Responder.
type Server struct {
	port   int
	router *http.ServeMux
	server *http.Server

	store     *store.Store
	responder llm.Responder
	logger    *log.Logger
	limiter   *RateLimiter
}

// NewServer creates a new Server. If port is 0, the default port (8600) is
// used.
func NewServer(port int, st *store.Store, responder llm.Responder) *Server {
	if port == 0 {
		port = DefaultPort
	}

	s := &Server{
		port:      port,
		router:    http.NewServeMux(),
		store:     st,
		responder: responder,
		logger:    log.Default(),
		limiter:   DefaultRateLimiter(),
	}

	s.setupRoutes()
	return s
}

// WithLogger sets a custom logger.
func (s *Server) WithLogger(logger *log.Logger) *Server {
	s.logger = logger
	return s
}

// Port returns the server port.
func (s *Server) Port() int {
	return s.port
}

// =============================================================================
// ROUTES
// =============================================================================

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("POST /api/search", s.handleSearch)

	s.router.HandleFunc("GET /api/threads", s.handleThreads)
	s.router.HandleFunc("GET /api/thread/{id}", s.handleGetThread)
	s.router.HandleFunc("PUT /api/thread/{id}", s.handleRenameThread)
	s.router.HandleFunc("DELETE /api/thread/{id}", s.handleDeleteThread)

	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /{$}", s.handleHealth)
}

// Handler returns the full handler with the middleware chain applied. Exposed
// so tests can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		CORSMiddleware(DefaultCORSConfig()),
		RateLimitMiddleware(s.limiter),
	)(s.router)
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// chatRequest is the body of POST /api/chat and POST /api/search.
type chatRequest struct {
	Query     string  `json:"query"`
	ThreadID  *string `json:"thread_id"`
	MessageID *string `json:"message_id"`
}

// searchResponse is the body of a non-streaming POST /api/search response.
type searchResponse struct {
	Response  string `json:"response"`
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
}

type threadListResponse struct {
	Threads []store.Thread `json:"threads"`
}

type threadResponse struct {
	Messages []store.Message `json:"messages"`
}

type mutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type renameRequest struct {
	Title string `json:"title"`
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// handleChat handles POST /api/chat. The response body is a newline-delimited
// data stream: 0: text deltas while the model generates, then the
// 8: thread/message annotation, then the d: finish frame. A model failure
// after streaming has begun is reported in-band as a 3: frame.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()

	threadID, err := s.resolveThread(ctx, req.ThreadID)
	if err != nil {
		s.logger.Printf("THREAD_RESOLVE_ERROR | error=%v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to resolve thread")
		return
	}

	if _, err := s.store.AppendMessage(ctx, threadID, store.RoleHuman, req.Query); err != nil {
		s.logger.Printf("APPEND_ERROR | thread=%s error=%v", threadID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to persist message")
		return
	}

	history, err := s.loadHistory(ctx, threadID)
	if err != nil {
		s.logger.Printf("HISTORY_ERROR | thread=%s error=%v", threadID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := stream.NewEncoder(w, flusher)

	result, err := s.responder.Respond(ctx, history, func(delta string) {
		if delta != "" {
			enc.WriteText(delta)
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			// Client went away; nothing left to write.
			return
		}
		s.logger.Printf("RESPOND_ERROR | thread=%s error=%v", threadID, err)
		enc.WriteError(responderErrorMessage(err))
		return
	}

	messageID, err := s.store.AppendMessage(ctx, threadID, store.RoleAI, result.Text)
	if err != nil {
		s.logger.Printf("APPEND_ERROR | thread=%s error=%v", threadID, err)
		enc.WriteError("failed to persist response")
		return
	}

	// Annotation goes out before the finish frame: the finish frame is
	// terminal for readers, so anything after it would never be seen.
	enc.WriteAnnotations([]stream.Annotation{{ThreadID: threadID, MessageID: messageID}})
	enc.WriteFinish(finishReason(result), stream.Usage{
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
	})
}

// =============================================================================
// SEARCH HANDLER
// =============================================================================

// handleSearch handles POST /api/search, the non-streaming variant of chat.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	threadID, err := s.resolveThread(ctx, req.ThreadID)
	if err != nil {
		s.logger.Printf("THREAD_RESOLVE_ERROR | error=%v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to resolve thread")
		return
	}

	if _, err := s.store.AppendMessage(ctx, threadID, store.RoleHuman, req.Query); err != nil {
		s.logger.Printf("APPEND_ERROR | thread=%s error=%v", threadID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to persist message")
		return
	}

	history, err := s.loadHistory(ctx, threadID)
	if err != nil {
		s.logger.Printf("HISTORY_ERROR | thread=%s error=%v", threadID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}

	result, err := s.responder.Respond(ctx, history, nil)
	if err != nil {
		s.logger.Printf("RESPOND_ERROR | thread=%s error=%v", threadID, err)
		s.writeError(w, http.StatusInternalServerError, responderErrorMessage(err))
		return
	}

	messageID, err := s.store.AppendMessage(ctx, threadID, store.RoleAI, result.Text)
	if err != nil {
		s.logger.Printf("APPEND_ERROR | thread=%s error=%v", threadID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to persist response")
		return
	}

	s.writeJSON(w, http.StatusOK, searchResponse{
		Response:  result.Text,
		ThreadID:  threadID,
		MessageID: messageID,
	})
}

// =============================================================================
// THREAD HANDLERS
// =============================================================================

// handleThreads handles GET /api/threads.
func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context())
	if err != nil {
		s.logger.Printf("LIST_ERROR | error=%v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list threads")
		return
	}

	if threads == nil {
		threads = []store.Thread{}
	}
	s.writeJSON(w, http.StatusOK, threadListResponse{Threads: threads})
}

// handleGetThread handles GET /api/thread/{id}.
func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	messages, err := s.store.GetThread(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, store.ErrThreadNotFound) {
			s.writeError(w, http.StatusNotFound, "Thread not found")
			return
		}
		s.logger.Printf("GET_THREAD_ERROR | thread=%s error=%v", threadID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}

	if messages == nil {
		messages = []store.Message{}
	}
	s.writeJSON(w, http.StatusOK, threadResponse{Messages: messages})
}

// handleRenameThread handles PUT /api/thread/{id}.
func (s *Server) handleRenameThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		s.writeError(w, http.StatusBadRequest, "Title must not be empty")
		return
	}

	renamed, err := s.store.RenameThread(r.Context(), threadID, req.Title)
	if err != nil {
		s.logger.Printf("RENAME_ERROR | thread=%s error=%v", threadID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to rename thread")
		return
	}
	if !renamed {
		s.writeJSON(w, http.StatusOK, mutationResponse{Success: false, Message: "Thread not found"})
		return
	}

	s.writeJSON(w, http.StatusOK, mutationResponse{Success: true})
}

// handleDeleteThread handles DELETE /api/thread/{id}.
func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	deleted, err := s.store.DeleteThread(r.Context(), threadID)
	if err != nil {
		s.logger.Printf("DELETE_ERROR | thread=%s error=%v", threadID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete thread")
		return
	}
	if !deleted {
		s.writeJSON(w, http.StatusOK, mutationResponse{Success: false, Message: "Thread not found"})
		return
	}

	s.writeJSON(w, http.StatusOK, mutationResponse{Success: true})
}

// =============================================================================
// HEALTH HANDLER
// =============================================================================

// handleHealth handles GET /health and GET /.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

// =============================================================================
// SERVER LIFECYCLE
// =============================================================================

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: chat responses stream for as long as the model
		// generates.
		IdleTimeout: 120 * time.Second,
	}

	s.logger.Printf("SERVER_START | addr=%s version=%s", addr, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and stops the rate limiter's
// background sweep.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()

	if s.server == nil {
		return nil
	}

	s.logger.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeChatRequest parses and validates the shared chat/search request body.
// On failure it writes the error response and returns ok=false.
func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", MaxRequestBodySize))
			return chatRequest{}, false
		}
		s.logger.Printf("BAD_REQUEST | error=%v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return chatRequest{}, false
	}

	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "Query must not be empty")
		return chatRequest{}, false
	}
	if len(req.Query) > MaxQueryLength {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Query exceeds maximum length of %d", MaxQueryLength))
		return chatRequest{}, false
	}

	return req, true
}

// resolveThread returns the thread id to use for a request, creating a new
// thread when none was supplied or the supplied one no longer exists.
func (s *Server) resolveThread(ctx context.Context, requested *string) (string, error) {
	if requested != nil && *requested != "" {
		exists, err := s.store.ThreadExists(ctx, *requested)
		if err != nil {
			return "", err
		}
		if exists {
			return *requested, nil
		}
		return s.store.CreateThread(ctx, *requested, "")
	}
	return s.store.CreateThread(ctx, uuid.NewString(), "")
}

// loadHistory converts a thread's persisted messages into model chat history.
func (s *Server) loadHistory(ctx context.Context, threadID string) ([]llm.Message, error) {
	messages, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	history := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == store.RoleAI {
			role = "assistant"
		}
		history = append(history, llm.Message{Role: role, Content: m.Content})
	}
	return history, nil
}

// responderErrorMessage maps a model backend failure to a client-facing
// message, keeping backend details out of the response.
func responderErrorMessage(err error) string {
	if llm.IsNotRunning(err) {
		return "model backend is not running"
	}
	var clientErr *llm.ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Message
	}
	return "response generation failed"
}

// finishReason returns the finish reason for the terminal frame, defaulting
// to "stop".
func finishReason(result *llm.Result) string {
	if result.FinishReason != "" {
		return result.FinishReason
	}
	return "stop"
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
