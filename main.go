// threadline - A terminal interface for threaded, streaming chat.
//
// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/threadline/threadline-tui/internal/client"
	"github.com/threadline/threadline-tui/internal/config"
	"github.com/threadline/threadline-tui/internal/llm"
	"github.com/threadline/threadline-tui/internal/server"
	"github.com/threadline/threadline-tui/internal/session"
	"github.com/threadline/threadline-tui/internal/store"
	"github.com/threadline/threadline-tui/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.2.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	cmd := "tui"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "tui":
		runTUI()
	case "serve":
		runServe(args)
	case "version", "--version", "-v":
		fmt.Printf("threadline %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`threadline - threaded, streaming chat in the terminal

Usage:
  threadline          Launch the chat TUI (default)
  threadline serve    Run the backend server
  threadline version  Print version information
  threadline help     Show this help

Serve flags:
  -port int     Listen port (overrides config)
  -db string    SQLite database path (overrides config)

Configuration lives at ~/.threadline/config.toml and can be overridden
with THREADLINE_* environment variables.
`)
}

// =============================================================================
// TUI
// =============================================================================

func runTUI() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "threadline requires an interactive terminal; did you mean 'threadline serve'?")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	c := client.NewWithConfig(&client.Config{
		BaseURL: cfg.Client.ServerURL,
		Timeout: time.Duration(cfg.Client.TimeoutSecs) * time.Second,
	}, session.NewRegistry())

	p := tea.NewProgram(
		chat.New(c, cfg.UI.ShowSidebar),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// SERVE
// =============================================================================

func runServe(args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	portFlag := flags.Int("port", 0, "listen port (overrides config)")
	dbFlag := flags.String("db", "", "database path (overrides config)")
	if err := flags.Parse(args); err != nil {
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("CONFIG_ERROR | err=%v", err)
	}
	if *portFlag != 0 {
		cfg.Server.Port = *portFlag
	}
	if *dbFlag != "" {
		cfg.Server.DatabasePath = *dbFlag
	}

	if err := config.EnsureDir(); err != nil {
		logger.Fatalf("CONFIG_DIR_ERROR | err=%v", err)
	}

	dbPath, err := cfg.ResolveDatabasePath()
	if err != nil {
		logger.Fatalf("CONFIG_ERROR | err=%v", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		logger.Fatalf("STORE_OPEN_ERROR | path=%s err=%v", dbPath, err)
	}
	defer st.Close()

	llmClient := llm.NewClient(&llm.Config{
		BaseURL: cfg.Model.OllamaURL,
		Timeout: time.Duration(cfg.Model.TimeoutSecs) * time.Second,
	})
	responder := llm.NewOllamaResponder(llmClient, cfg.Model.Name)

	// A missing backend is not fatal; chat requests report it per-request.
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := llmClient.CheckRunning(probeCtx); err != nil {
		logger.Printf("MODEL_BACKEND_UNREACHABLE | url=%s err=%v", cfg.Model.OllamaURL, err)
	}
	probeCancel()

	srv := server.NewServer(cfg.Server.Port, st, responder).WithLogger(logger)

	// Hot-reload is informational while running; port and database changes
	// require a restart.
	if cfgPath, perr := config.Path(); perr == nil {
		watcher, werr := config.NewWatcher(cfgPath, func(next *config.Config) {
			if next.Server.Port != cfg.Server.Port || next.Server.DatabasePath != cfg.Server.DatabasePath {
				logger.Printf("CONFIG_RESTART_REQUIRED | field=server")
			}
		})
		if werr == nil {
			if werr := watcher.Watch(); werr != nil {
				logger.Printf("CONFIG_WATCH_ERROR | err=%v", werr)
			}
			defer watcher.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatalf("SERVER_ERROR | err=%v", err)
		}
	case <-ctx.Done():
		logger.Printf("SHUTDOWN_SIGNAL_RECEIVED")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("SHUTDOWN_ERROR | err=%v", err)
		}
	}
}
