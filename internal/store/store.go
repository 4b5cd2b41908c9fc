// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides thread and message persistence for the threadline
// backend.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/threadline/threadline-tui/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrInvalidRole    = errors.New("invalid message role")
)

// Message roles as persisted (matching the wire protocol of the thread API).
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// maxTitleRunes caps auto-derived thread titles.
const maxTitleRunes = 80

// =============================================================================
// TYPES
// =============================================================================

// Thread is one persisted conversation.
type Thread struct {
	ThreadID  string    `json:"thread_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted message of a thread.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"-"`
	Role      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"-"`
}

// =============================================================================
// STORE
// =============================================================================

// Store persists threads and messages in SQLite.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	thread_id  TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	thread_id  TEXT NOT NULL REFERENCES threads(thread_id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, seq);
`

// Open opens (and if necessary creates) the store at path.
func Open(path string) (*Store, error) {
	// An empty path would open a private temporary database that vanishes
	// on close; callers resolve the default path before getting here.
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// THREAD OPERATIONS
// =============================================================================

// CreateThread creates a new thread and returns its id. An empty id
// generates one.
func (s *Store) CreateThread(ctx context.Context, threadID, title string) (string, error) {
	if threadID == "" {
		threadID = uuid.NewString()
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO threads (thread_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		threadID, title, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	return threadID, nil
}

// ThreadExists reports whether a thread id is known.
func (s *Store) ThreadExists(ctx context.Context, threadID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM threads WHERE thread_id = ?", threadID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query thread: %w", err)
	}
	return true, nil
}

// ListThreads returns all threads, most recently updated first. Threads
// without an explicit title fall back to their first human message.
func (s *Store) ListThreads(ctx context.Context) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.thread_id,
		       COALESCE(NULLIF(t.title, ''),
		                (SELECT m.content FROM messages m
		                 WHERE m.thread_id = t.thread_id AND m.role = ?
		                 ORDER BY m.seq LIMIT 1),
		                ''),
		       t.created_at, t.updated_at
		FROM threads t
		ORDER BY t.updated_at DESC`,
		RoleHuman,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var th Thread
		if err := rows.Scan(&th.ThreadID, &th.Title, &th.CreatedAt, &th.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		th.Title = util.TruncateRunes(th.Title, maxTitleRunes)
		threads = append(threads, th)
	}
	return threads, rows.Err()
}

// GetThread returns a thread's messages in order.
func (s *Store) GetThread(ctx context.Context, threadID string) ([]Message, error) {
	exists, err := s.ThreadExists(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrThreadNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, thread_id, role, content, created_at FROM messages WHERE thread_id = ? ORDER BY seq",
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// RenameThread updates a thread's title. Returns false when the thread does
// not exist.
func (s *Store) RenameThread(ctx context.Context, threadID, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE threads SET title = ?, updated_at = ? WHERE thread_id = ?",
		title, time.Now().UTC(), threadID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to rename thread: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteThread removes a thread and its messages. Returns false when the
// thread does not exist.
func (s *Store) DeleteThread(ctx context.Context, threadID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM threads WHERE thread_id = ?", threadID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete thread: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AppendMessage appends one message to a thread and bumps its updated_at.
// Returns the generated message id.
func (s *Store) AppendMessage(ctx context.Context, threadID, role, content string) (string, error) {
	if role != RoleHuman && role != RoleAI {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	exists, err := s.ThreadExists(ctx, threadID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrThreadNotFound
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, seq, role, content, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE thread_id = ?), ?, ?, ?)`,
		id, threadID, threadID, role, content, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE threads SET updated_at = ? WHERE thread_id = ?", now, threadID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to touch thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return id, nil
}
