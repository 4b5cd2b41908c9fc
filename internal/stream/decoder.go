// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream implements the newline-delimited data stream protocol
// spoken between the threadline backend and its chat clients.
package stream

import (
	"encoding/json"
	"log"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// DECODER
// =============================================================================

// Decoder reconstructs protocol events from a chunked byte stream.
//
// Chunks arrive in arbitrary sizes with no alignment to line or rune
// boundaries. The decoder holds back bytes that may end mid-rune so a
// multi-byte character split across chunks is never decoded prematurely,
// buffers the trailing partial line, and emits events strictly in frame
// arrival order.
//
// A Decoder is single-use: it is bound to one response stream and emits
// nothing after a terminal event.
type Decoder struct {
	// pending holds raw bytes whose trailing rune may be incomplete.
	pending []byte

	// buf holds decoded text up to (but excluding) the next newline.
	buf strings.Builder

	terminal bool
	dropped  int
	logger   *log.Logger
}

// NewDecoder creates a decoder for one response stream.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// SetLogger installs a logger for frame-drop diagnostics.
// By default drops are counted but not logged.
func (d *Decoder) SetLogger(logger *log.Logger) {
	d.logger = logger
}

// Feed appends one chunk of raw bytes and returns all events completed by it,
// in order. After a terminal event has been returned, Feed returns nil.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.terminal {
		return nil
	}

	d.pending = append(d.pending, chunk...)

	// Move every byte that is part of a complete rune into the line buffer.
	// A partial trailing rune stays pending until its continuation arrives.
	n := completeRuneLen(d.pending)
	d.buf.Write(d.pending[:n])
	d.pending = append(d.pending[:0], d.pending[n:]...)

	return d.drain(false)
}

// Close flushes the trailing un-terminated line, if any, and returns the
// events it produces. Call it once the underlying stream reaches EOF.
//
// A stream that ends without a terminal frame is a clean implicit finish;
// the caller must not wait for one.
func (d *Decoder) Close() []Event {
	if d.terminal {
		return nil
	}
	// Whatever is still pending at EOF can never complete into a valid rune.
	d.buf.Write(d.pending)
	d.pending = nil
	return d.drain(true)
}

// Terminal reports whether a terminal event has been emitted.
func (d *Decoder) Terminal() bool {
	return d.terminal
}

// Dropped returns the number of frames discarded due to malformed payloads.
// Drops are fail-soft and never surface as errors; this counter is the
// diagnostic channel for them.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// drain processes buffered complete lines. With flush set, the trailing
// partial line is processed too (stream end).
func (d *Decoder) drain(flush bool) []Event {
	text := d.buf.String()
	d.buf.Reset()

	var events []Event
	for !d.terminal {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			break
		}
		line := text[:i]
		text = text[i+1:]
		events = append(events, d.decodeLine(line)...)
	}

	if flush && !d.terminal && text != "" {
		events = append(events, d.decodeLine(text)...)
		text = ""
	}

	// Retain the partial line (dropped instead once a terminal frame was seen).
	if !d.terminal {
		d.buf.WriteString(text)
	}
	return events
}

// decodeLine parses one frame. Malformed lines produce no events and do not
// halt the stream; only the error and finish codes are terminal.
func (d *Decoder) decodeLine(line string) []Event {
	code, payload, ok := strings.Cut(line, ":")
	if !ok {
		// Protocol noise, not an error.
		return nil
	}

	switch code {
	case CodeText:
		var fragment string
		if err := json.Unmarshal([]byte(payload), &fragment); err != nil {
			d.drop(code, err)
			return nil
		}
		return []Event{{Type: EventTextDelta, Text: fragment}}

	case CodeAnnotation:
		var entries []Annotation
		if err := json.Unmarshal([]byte(payload), &entries); err != nil {
			d.drop(code, err)
			return nil
		}
		var events []Event
		for _, a := range entries {
			if a.ThreadID == "" && a.MessageID == "" {
				continue
			}
			events = append(events, Event{
				Type:      EventAnnotation,
				ThreadID:  a.ThreadID,
				MessageID: a.MessageID,
			})
		}
		return events

	case CodeError:
		// Terminal regardless of payload shape: a JSON string payload is the
		// message, anything else is reported verbatim.
		message := payload
		var decoded string
		if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
			message = decoded
		}
		d.terminal = true
		return []Event{{Type: EventError, Message: message}}

	case CodeFinish:
		var fin finishPayload
		if err := json.Unmarshal([]byte(payload), &fin); err != nil {
			d.drop(code, err)
		}
		d.terminal = true
		return []Event{{
			Type:         EventFinish,
			FinishReason: fin.FinishReason,
			Usage:        fin.Usage,
		}}

	default:
		// Unknown type codes are tolerated for forward compatibility.
		return nil
	}
}

// drop records a malformed-payload frame.
func (d *Decoder) drop(code string, err error) {
	d.dropped++
	if d.logger != nil {
		d.logger.Printf("FRAME_DROP | code=%s err=%v", code, err)
	}
}

// completeRuneLen returns the length of the longest prefix of b that ends on
// a rune boundary. Invalid UTF-8 (which can never complete) is passed through
// so the stream keeps making progress.
func completeRuneLen(b []byte) int {
	// Only the last few bytes can belong to an incomplete rune.
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if b[i] < utf8.RuneSelf {
			// ASCII byte: everything up to and including it is complete.
			return len(b)
		}
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
