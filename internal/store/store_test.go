// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides thread and message persistence for the threadline
// backend.
package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "threadline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CreateAndListThreads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateThread(ctx, "", "")
	require.NoError(t, err)
	require.NotEmpty(t, id, "empty id should be generated")

	_, err = s.CreateThread(ctx, "t-fixed", "My topic")
	require.NoError(t, err)

	// Touch t-fixed so its updated_at is strictly newest.
	ok, err := s.RenameThread(ctx, "t-fixed", "My topic")
	require.NoError(t, err)
	require.True(t, ok)

	threads, err := s.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)

	// Most recently updated first.
	assert.Equal(t, "t-fixed", threads[0].ThreadID)
	assert.Equal(t, "My topic", threads[0].Title)
}

func TestStore_TitleFallsBackToFirstHumanMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateThread(ctx, "", "")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, id, RoleHuman, "what is the capital of France?")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, id, RoleAI, "Paris.")
	require.NoError(t, err)

	threads, err := s.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "what is the capital of France?", threads[0].Title)
}

func TestStore_GetThreadOrdersMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateThread(ctx, "", "")
	require.NoError(t, err)

	for _, msg := range []struct{ role, content string }{
		{RoleHuman, "first"},
		{RoleAI, "second"},
		{RoleHuman, "third"},
	} {
		_, err := s.AppendMessage(ctx, id, msg.role, msg.content)
		require.NoError(t, err)
	}

	messages, err := s.GetThread(ctx, id)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "third", messages[2].Content)
	assert.Equal(t, RoleAI, messages[1].Role)
}

func TestStore_GetThreadNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetThread(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestStore_AppendMessageValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateThread(ctx, "", "")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, id, "robot", "nope")
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = s.AppendMessage(ctx, "missing", RoleHuman, "hi")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestStore_RenameThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateThread(ctx, "", "old")
	require.NoError(t, err)

	ok, err := s.RenameThread(ctx, id, "new title")
	require.NoError(t, err)
	assert.True(t, ok)

	threads, err := s.ListThreads(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new title", threads[0].Title)

	ok, err = s.RenameThread(ctx, "missing", "x")
	require.NoError(t, err)
	assert.False(t, ok, "renaming a missing thread reports false")
}

func TestStore_DeleteThreadCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateThread(ctx, "", "")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, id, RoleHuman, "hello")
	require.NoError(t, err)

	ok, err := s.DeleteThread(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.GetThread(ctx, id)
	assert.ErrorIs(t, err, ErrThreadNotFound)

	threads, err := s.ListThreads(ctx)
	require.NoError(t, err)
	assert.Empty(t, threads)

	ok, err = s.DeleteThread(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "deleting a missing thread reports false")
}

func TestOpen_EmptyPathRejected(t *testing.T) {
	_, err := Open("")
	require.Error(t, err, "empty path must not open a temporary database")
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threadline.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.CreateThread(ctx, "t-1", "kept")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "t-1", RoleHuman, "still here?")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	threads, err := s.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "t-1", threads[0].ThreadID)

	msgs, err := s.GetThread(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "still here?", msgs[0].Content)
}
