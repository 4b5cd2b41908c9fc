// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream implements the newline-delimited data stream protocol
// spoken between the threadline backend and its chat clients.
package stream

import (
	"encoding/json"
	"io"
)

// =============================================================================
// ENCODER
// =============================================================================

// Flusher is the subset of http.Flusher the encoder needs. A nil flusher is
// allowed; frames are then only flushed by the underlying writer.
type Flusher interface {
	Flush()
}

// Encoder writes protocol frames, flushing after each one so deltas reach the
// client without buffering delays.
type Encoder struct {
	w       io.Writer
	flusher Flusher
}

// NewEncoder creates an encoder over w. If w also implements Flush (as
// http.ResponseWriter commonly does), pass it as flusher.
func NewEncoder(w io.Writer, flusher Flusher) *Encoder {
	return &Encoder{w: w, flusher: flusher}
}

// WriteText emits a text delta frame: 0:"fragment"
func (e *Encoder) WriteText(fragment string) error {
	return e.writeFrame(CodeText, fragment)
}

// WriteAnnotations emits an annotation frame: 8:[{...},...]
func (e *Encoder) WriteAnnotations(entries []Annotation) error {
	return e.writeFrame(CodeAnnotation, entries)
}

// WriteError emits the terminal error frame: 3:"message"
func (e *Encoder) WriteError(message string) error {
	return e.writeFrame(CodeError, message)
}

// WriteFinish emits the terminal finish frame: d:{"finishReason":...,"usage":...}
func (e *Encoder) WriteFinish(reason string, usage Usage) error {
	return e.writeFrame(CodeFinish, finishPayload{FinishReason: reason, Usage: usage})
}

// writeFrame marshals payload and writes one "<code>:<json>\n" line.
func (e *Encoder) writeFrame(code string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	frame := make([]byte, 0, len(code)+len(data)+2)
	frame = append(frame, code...)
	frame = append(frame, ':')
	frame = append(frame, data...)
	frame = append(frame, '\n')

	if _, err := e.w.Write(frame); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
