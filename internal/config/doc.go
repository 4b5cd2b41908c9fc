// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for threadline.
//
// Configuration lives in a TOML file with sensible defaults, environment
// variable overrides, and validation. A Watcher reloads the file when it
// changes on disk.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (THREADLINE_*)
//   - ~/.threadline/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	addr := fmt.Sprintf(":%d", cfg.Server.Port)
package config
