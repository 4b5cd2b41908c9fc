// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8600 {
		t.Errorf("Server.Port = %d, want 8600", cfg.Server.Port)
	}
	if cfg.Model.OllamaURL != "http://127.0.0.1:11434" {
		t.Errorf("Model.OllamaURL = %q", cfg.Model.OllamaURL)
	}
	if cfg.Client.ServerURL != "http://127.0.0.1:8600" {
		t.Errorf("Client.ServerURL = %q", cfg.Client.ServerURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = "1.0.0"

[server]
port = 9001

[model]
name = "llama3.2:3b"

[ui]
theme = "light"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Model.Name != "llama3.2:3b" {
		t.Errorf("Model.Name = %q, want llama3.2:3b", cfg.Model.Name)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("UI.Theme = %q, want light", cfg.UI.Theme)
	}

	// Unset fields are backfilled with defaults.
	if cfg.Model.OllamaURL != "http://127.0.0.1:11434" {
		t.Errorf("Model.OllamaURL = %q, want default", cfg.Model.OllamaURL)
	}
	if cfg.Client.TimeoutSecs != 30 {
		t.Errorf("Client.TimeoutSecs = %d, want 30", cfg.Client.TimeoutSecs)
	}
}

func TestLoadFromPath_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
port = 99999
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("LoadFromPath() with out-of-range port should fail")
	}
}

func TestValidate_Theme(t *testing.T) {
	cfg := Default()
	cfg.UI.Theme = "neon"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should reject unknown theme")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want ValidationError", err)
	}
	if verr.Field != "ui.theme" {
		t.Errorf("Field = %q, want ui.theme", verr.Field)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("THREADLINE_PORT", "9100")
	t.Setenv("THREADLINE_MODEL", "mistral:7b")
	t.Setenv("THREADLINE_SERVER_URL", "http://127.0.0.1:9100")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Model.Name != "mistral:7b" {
		t.Errorf("Model.Name = %q, want mistral:7b", cfg.Model.Name)
	}
	if cfg.Client.ServerURL != "http://127.0.0.1:9100" {
		t.Errorf("Client.ServerURL = %q", cfg.Client.ServerURL)
	}
}

func TestApplyEnvOverrides_BadPortIgnored(t *testing.T) {
	t.Setenv("THREADLINE_PORT", "not-a-number")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Server.Port != 8600 {
		t.Errorf("Server.Port = %d, want 8600 (bad override ignored)", cfg.Server.Port)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Server.Port = 9200
	cfg.UI.CompactMode = true

	if err := SaveToPath(cfg, path); err != nil {
		t.Fatalf("SaveToPath() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 0600", perm)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if loaded.Server.Port != 9200 {
		t.Errorf("Server.Port = %d, want 9200", loaded.Server.Port)
	}
	if !loaded.UI.CompactMode {
		t.Error("UI.CompactMode not round-tripped")
	}
}

func TestResolveDatabasePath(t *testing.T) {
	cfg := Default()
	cfg.Server.DatabasePath = "/tmp/explicit.db"

	got, err := cfg.ResolveDatabasePath()
	if err != nil {
		t.Fatalf("ResolveDatabasePath() error = %v", err)
	}
	if got != "/tmp/explicit.db" {
		t.Errorf("ResolveDatabasePath() = %q, want the configured path", got)
	}
}

func TestResolveDatabasePath_EmptyFallsBackToDefault(t *testing.T) {
	cfg := Default()

	got, err := cfg.ResolveDatabasePath()
	if err != nil {
		t.Fatalf("ResolveDatabasePath() error = %v", err)
	}
	// An unset database_path must resolve to a real file path, never "":
	// sqlite treats "" as a private temporary database.
	want := filepath.Join(".threadline", "threads.db")
	if got == "" || !strings.HasSuffix(got, want) {
		t.Errorf("ResolveDatabasePath() = %q, want suffix %q", got, want)
	}
}
