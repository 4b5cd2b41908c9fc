// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the threadline HTTP API server.
//
// The server persists conversations in a sqlite store and synthesizes
// assistant responses through the llm.Responder interface. Chat responses
// stream as newline-delimited data-stream frames; everything else is JSON.
//
// # Endpoints
//
//   - POST   /api/chat        - Streaming chat (data-stream frames)
//   - POST   /api/search      - Non-streaming chat
//   - GET    /api/threads     - List threads
//   - GET    /api/thread/{id} - Thread messages
//   - PUT    /api/thread/{id} - Rename thread
//   - DELETE /api/thread/{id} - Delete thread
//   - GET    /health, GET /   - Health check
//
// # Middleware
//
// Requests pass through recovery, logging, CORS, and per-IP rate limiting
// (token bucket via golang.org/x/time/rate).
//
// # Usage
//
//	srv := server.NewServer(0, st, responder)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
package server
