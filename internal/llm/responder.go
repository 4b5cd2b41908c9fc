// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import "context"

// systemPrompt frames the assistant for thread-based search conversations.
const systemPrompt = `You are a helpful search assistant.
Your job is to answer questions accurately and cite sources using proper
markdown links, e.g., [Source Title](https://example.com).
If information is uncertain or conflicting, acknowledge this.`

// Responder produces one assistant response for a conversation, emitting
// deltas as they are generated. Implementations must respect ctx.
type Responder interface {
	Respond(ctx context.Context, history []Message, emit func(delta string)) (*Result, error)
}

// OllamaResponder generates responses through a local Ollama server.
type OllamaResponder struct {
	client *Client
	model  string
}

// NewOllamaResponder creates a responder using the given client and model
// ("" for the client's default).
func NewOllamaResponder(client *Client, model string) *OllamaResponder {
	return &OllamaResponder{client: client, model: model}
}

// Respond streams a completion for the conversation history.
func (r *OllamaResponder) Respond(ctx context.Context, history []Message, emit func(delta string)) (*Result, error) {
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)

	return r.client.ChatStream(ctx, r.model, messages, func(token string) {
		if emit != nil {
			emit(token)
		}
	})
}
