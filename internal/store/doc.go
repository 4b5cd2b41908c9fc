// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides thread and message persistence for the threadline
// backend.
//
// Threads and their messages live in a single SQLite database (pure Go
// driver, WAL mode, one writer). Thread titles are either explicit (set via
// rename) or derived on read from the first human message of the thread.
package store
