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
	"net/http"
	"time"

	"github.com/threadline/threadline-tui/internal/session"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the backend client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeConnection
	ErrTypeThreadNotFound
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning     = &ClientError{Type: ErrTypeNotRunning, Message: "backend is not running"}
	ErrTimeout        = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrThreadNotFound = &ClientError{Type: ErrTypeThreadNotFound, Message: "thread not found"}
)

// IsNotRunning checks if an error indicates the backend is unreachable.
func IsNotRunning(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNotRunning
	}
	return errors.Is(err, ErrNotRunning)
}

// IsThreadNotFound checks if an error is a missing-thread error.
func IsThreadNotFound(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeThreadNotFound
	}
	return errors.Is(err, ErrThreadNotFound)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the backend client.
type Config struct {
	// BaseURL is the backend API base URL (default: http://127.0.0.1:8600)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://127.0.0.1:8600",
		Timeout: 30 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the threadline backend API.
// It is safe for concurrent use; each streaming send owns its own decoder
// and accumulator, and the injected Registry is read once per send.
type Client struct {
	config     *Config
	httpClient *http.Client
	registry   *session.Registry
}

// New creates a client with default configuration. registry holds the
// current thread id; nil creates a private one.
func New(registry *session.Registry) *Client {
	return NewWithConfig(DefaultConfig(), registry)
}

// NewWithConfig creates a client with custom configuration.
func NewWithConfig(config *Config, registry *session.Registry) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8600"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if registry == nil {
		registry = session.NewRegistry()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		registry: registry,
	}
}

// Config returns the client configuration.
func (c *Client) Config() *Config {
	return c.config
}

// Registry returns the injected thread identity registry.
func (c *Client) Registry() *session.Registry {
	return c.registry
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that the backend is reachable.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from backend: " + resp.Status,
		}
	}
	return nil
}

// =============================================================================
// THREAD OPERATIONS
// =============================================================================

// ThreadInfo describes one persisted thread.
type ThreadInfo struct {
	ThreadID  string    `json:"thread_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ThreadMessage is one message of a persisted thread.
// Type is "human" or "ai".
type ThreadMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	ID      string `json:"id"`
}

// SearchResult is the response of a non-streaming search.
type SearchResult struct {
	Response  string `json:"response"`
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
}

type threadListResponse struct {
	Threads []ThreadInfo `json:"threads"`
}

type threadResponse struct {
	Messages []ThreadMessage `json:"messages"`
}

type mutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ListThreads retrieves all threads with their ids and titles.
func (c *Client) ListThreads(ctx context.Context) ([]ThreadInfo, error) {
	var result threadListResponse
	if err := c.getJSON(ctx, "/api/threads", &result); err != nil {
		return nil, err
	}
	return result.Threads, nil
}

// GetThread retrieves all messages for a thread, oldest first.
func (c *Client) GetThread(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	var result threadResponse
	if err := c.getJSON(ctx, "/api/thread/"+threadID, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// RenameThread sets a new title for a thread.
func (c *Client) RenameThread(ctx context.Context, threadID, title string) error {
	body, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}
	return c.mutateThread(ctx, http.MethodPut, "/api/thread/"+threadID, body)
}

// DeleteThread removes a thread and all of its messages.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	return c.mutateThread(ctx, http.MethodDelete, "/api/thread/"+threadID, nil)
}

// Search runs a non-streaming query. The registry's current thread id is
// attached, and the result's thread id is written back to it.
func (c *Client) Search(ctx context.Context, query string) (*SearchResult, error) {
	threadID, _ := c.registry.Current()
	body, err := json.Marshal(newChatRequest(query, threadID))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/search", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "search request failed: " + resp.Status,
		}
	}

	var result SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}

	c.registry.Set(result.ThreadID)
	return &result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// getJSON issues a GET and decodes the JSON response body into v.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrThreadNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "request failed: " + resp.Status,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// mutateThread issues a rename or delete and maps success=false to
// ErrThreadNotFound.
func (c *Client) mutateThread(ctx context.Context, method, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrThreadNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "request failed: " + resp.Status,
		}
	}

	var result mutationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	if !result.Success {
		return ErrThreadNotFound
	}
	return nil
}
