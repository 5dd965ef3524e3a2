// offlineai-server - the loopback API server between the chat UI and the
// local Ollama runtime.
//
// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/config"
	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/ollama"
	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/server"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// shutdownTimeout bounds the drain of in-flight requests on exit.
const shutdownTimeout = 10 * time.Second

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (TOML or JSON)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("offlineai-server %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: create data dir: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg)
	log.Printf("SERVER_BOOT | version=%s model=%s ollama=%s", Version, cfg.DefaultModel, cfg.Ollama.URL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL: cfg.Ollama.URL,
		Timeout: time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
	})

	// Best effort: the endpoints report runtime failures per request, so a
	// runtime that refuses to start does not keep the server from binding.
	if err := client.EnsureRunning(ctx); err != nil {
		log.Printf("OLLAMA_UNAVAILABLE | error=%v", err)
	}

	srv := server.New(cfg, client)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("SERVER_EXIT | error=%v", err)
		os.Exit(1)
	}
	log.Printf("SERVER_EXIT | clean=true")
}

// loadConfig installs an explicit config file as the process-wide config,
// otherwise resolves through the lazy global (standard locations with
// defaults as fallback).
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return nil, err
		}
		config.SetGlobal(cfg)
	}
	return config.Global(), nil
}

// setupLogging routes the standard logger to stderr plus a rotating file.
// Stdout stays clean for the port announcement the supervisor scrapes.
func setupLogging(cfg *config.Config) {
	logFile := cfg.LogFile()
	if logFile == "" {
		log.SetOutput(os.Stderr)
		return
	}

	rotating := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotating))
}
