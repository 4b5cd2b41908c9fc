// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm provides the model backend used by the threadline server to
// produce assistant responses.
//
// The Responder interface is what the server consumes; OllamaResponder is
// the production implementation, streaming completions from a local Ollama
// server over its NDJSON chat API and forwarding tokens as they arrive.
package llm
