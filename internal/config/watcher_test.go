// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path string, port int) {
	t.Helper()
	content := "[server]\nport = " + strconv.Itoa(port) + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func startWatcher(t *testing.T, path string) (*Watcher, chan *Config) {
	t.Helper()

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Watch(); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, changes
}

func waitForChange(t *testing.T, changes chan *Config) *Config {
	t.Helper()
	select {
	case cfg := <-changes:
		return cfg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a config reload")
		return nil
	}
}

func assertNoChange(t *testing.T, changes chan *Config, window time.Duration) {
	t.Helper()
	select {
	case cfg := <-changes:
		t.Fatalf("unexpected reload delivered: %+v", cfg)
	case <-time.After(window):
	}
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfigFile(t, path, 9100)

	_, changes := startWatcher(t, path)

	writeConfigFile(t, path, 9200)

	cfg := waitForChange(t, changes)
	if cfg.Server.Port != 9200 {
		t.Errorf("reloaded Server.Port = %d, want 9200", cfg.Server.Port)
	}

	// The write burst collapses into a single debounced reload.
	assertNoChange(t, changes, 600*time.Millisecond)
}

func TestWatcher_RenameIntoPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeConfigFile(t, path, 9100)

	_, changes := startWatcher(t, path)

	// Editors save by writing a sibling temp file and renaming it over the
	// target; the watcher watches the directory, so this must be visible.
	tmp := filepath.Join(dir, "config.toml.tmp")
	writeConfigFile(t, tmp, 9300)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	cfg := waitForChange(t, changes)
	if cfg.Server.Port != 9300 {
		t.Errorf("reloaded Server.Port = %d, want 9300", cfg.Server.Port)
	}
}

func TestWatcher_MalformedRewriteKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfigFile(t, path, 9100)

	_, changes := startWatcher(t, path)

	if err := os.WriteFile(path, []byte("[server]\nport = ]broken\n"), 0600); err != nil {
		t.Fatal(err)
	}

	// The failed load is logged and OnChange never fires.
	assertNoChange(t, changes, 900*time.Millisecond)

	// A subsequent valid write still gets through: the watcher survives
	// load failures.
	writeConfigFile(t, path, 9400)
	cfg := waitForChange(t, changes)
	if cfg.Server.Port != 9400 {
		t.Errorf("reloaded Server.Port = %d, want 9400", cfg.Server.Port)
	}
}

func TestWatcher_CloseStopsDelivery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfigFile(t, path, 9100)

	w, changes := startWatcher(t, path)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	writeConfigFile(t, path, 9500)
	assertNoChange(t, changes, 600*time.Millisecond)
}
