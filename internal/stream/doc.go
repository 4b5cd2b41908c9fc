// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream implements the newline-delimited data stream protocol
// spoken between the threadline backend and its chat clients.
//
// Each frame is one line of the form "<code>:<json payload>". The codes in
// use are "0" (text delta), "8" (annotations), "3" (terminal error) and "d"
// (terminal finish); unknown codes are tolerated for forward compatibility.
//
// # Key Types
//
//   - Decoder: chunk-fed frame decoder yielding ordered Events
//   - Encoder: server-side frame writer with per-frame flushing
//   - Event: decoded frame with a type discriminator
//
// # Usage
//
// Decode a response body chunk by chunk:
//
//	dec := stream.NewDecoder()
//	for {
//	    n, err := body.Read(buf)
//	    for _, ev := range dec.Feed(buf[:n]) {
//	        handle(ev)
//	    }
//	    if err != nil {
//	        break
//	    }
//	}
//	for _, ev := range dec.Close() {
//	    handle(ev)
//	}
//
// Malformed frame payloads are dropped fail-soft and counted via
// Decoder.Dropped; they never abort the stream.
package stream
