// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// =============================================================================
// STREAM READER
// =============================================================================

// streamReader parses the NDJSON body of a streaming chat response.
type streamReader struct {
	reader *bufio.Reader

	// PERFORMANCE: strings.Builder avoids quadratic concatenation.
	accumulator strings.Builder
	result      Result
}

func newStreamReader(r io.Reader) *streamReader {
	return &streamReader{reader: bufio.NewReader(r)}
}

// process reads chunks until the stream completes or ctx is cancelled,
// invoking fn per content token.
func (s *streamReader) process(ctx context.Context, fn TokenFunc) (*Result, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			done, chunkErr := s.handleLine(line, fn)
			if chunkErr != nil {
				return nil, chunkErr
			}
			if done {
				s.result.Text = s.accumulator.String()
				return &s.result, nil
			}
		}
		if err != nil {
			if err == io.EOF {
				// Stream closed without a done marker; return what we have.
				s.result.Text = s.accumulator.String()
				return &s.result, nil
			}
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "stream read failed", Cause: err}
		}
	}
}

// handleLine parses one NDJSON line. Malformed lines are skipped.
func (s *streamReader) handleLine(line []byte, fn TokenFunc) (done bool, err error) {
	var chunk chatChunk
	if err := json.Unmarshal(line, &chunk); err != nil {
		return false, nil
	}

	if content := chunk.Message.Content; content != "" {
		s.accumulator.WriteString(content)
		if fn != nil {
			fn(content)
		}
	}

	if chunk.Done {
		s.result.FinishReason = chunk.DoneReason
		if s.result.FinishReason == "" {
			s.result.FinishReason = "stop"
		}
		s.result.PromptTokens = chunk.PromptEvalCount
		s.result.CompletionTokens = chunk.EvalCount
		return true, nil
	}
	return false, nil
}
