// offlineai - local AI chat assistant shell.
//
// Supervises the offlineai-server child process and drives a line-based
// chat loop against it. All inference happens in the local Ollama runtime;
// nothing leaves the machine.
//
// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/client"
	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/config"
	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/store"
	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/supervisor"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// portWait bounds how long the shell waits for the server to announce its
// port before giving up.
const portWait = 30 * time.Second

func main() {
	var (
		serverBin   = flag.String("server", "", "path to the offlineai-server binary")
		configPath  = flag.String("config", "", "path to config file (TOML or JSON)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("offlineai %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*serverBin, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(serverBin, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	log.SetOutput(os.Stderr)

	bin, err := resolveServerBinary(serverBin)
	if err != nil {
		return err
	}

	var serverArgs []string
	if configPath != "" {
		serverArgs = append(serverArgs, "-config", configPath)
	}

	sup := supervisor.New(bin, serverArgs, cfg.PortFilePath())
	if err := sup.Start(); err != nil {
		return err
	}
	defer sup.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	portCtx, cancel := context.WithTimeout(ctx, portWait)
	port, err := sup.ServerPort(portCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("server did not come up: %w", err)
	}

	st := store.Open(cfg.SessionsPath())
	cli := client.New(fmt.Sprintf("http://127.0.0.1:%d", port), st, cfg.Models)

	// Bail out of the chat loop if the server dies underneath us.
	go func() {
		<-sup.Exited()
		stop()
	}()

	shell := &shell{cli: cli, selection: client.NewSelection(cli)}
	return shell.run(ctx)
}

// shell is the interactive chat loop.
type shell struct {
	cli       *client.Client
	selection *client.Selection
	sessionID string
}

func (sh *shell) run(ctx context.Context) error {
	fmt.Printf("OfflineAI %s — local chat, nothing leaves this machine.\n", Version)
	fmt.Println(`Type a message, or "/help" for commands.`)

	if err := sh.ensureModel(ctx); err != nil {
		return err
	}
	if err := sh.ensureSession(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			quit, err := sh.command(ctx, line)
			if err != nil {
				fmt.Println(err)
			}
			if quit {
				return nil
			}
		default:
			sh.send(ctx, line)
		}
	}
}

// ensureModel checks the server's active model and downloads it when the
// runtime does not have it yet.
func (sh *shell) ensureModel(ctx context.Context) error {
	model, exists, err := sh.cli.ActiveModel(ctx)
	if err != nil {
		return fmt.Errorf("active model: %w", err)
	}
	if exists {
		fmt.Printf("Model: %s\n", model)
		return nil
	}

	fmt.Printf("Model %s is not downloaded yet.\n", model)
	return sh.selectModel(ctx, model)
}

// selectModel drives the selection flow with progress output.
func (sh *shell) selectModel(ctx context.Context, model string) error {
	err := sh.selection.Select(ctx, model, client.SelectionEvents{
		OnProgress: func(pct int) {
			fmt.Printf("\rDownloading %s... %d%%", model, pct)
		},
		OnDownloaded: func() {
			fmt.Printf("\rDownloading %s... done.\n", model)
		},
		OnReady: func() {
			fmt.Printf("Model: %s\n", model)
		},
	})
	if err != nil {
		return fmt.Errorf("switch to %s: %w", model, err)
	}
	return nil
}

// ensureSession resumes the last session or starts a fresh one.
func (sh *shell) ensureSession() error {
	st := sh.cli.Store()
	if current := st.Current(); current != "" {
		sh.sessionID = current
		return nil
	}
	id, err := st.NewSession()
	if err != nil {
		return err
	}
	sh.sessionID = id
	return nil
}

// send runs one chat turn, typing the response out as it streams.
func (sh *shell) send(ctx context.Context, text string) {
	tw := client.NewTypewriter(client.DefaultCharsPerSecond, func(ch string) {
		fmt.Print(ch)
	})

	_, err := sh.cli.Send(ctx, sh.sessionID, text, tw.Write)
	tw.Close()
	fmt.Println()
	if err != nil {
		// Send errors already carry the fixed user-facing message.
		fmt.Println(err)
	}
}

// command dispatches a slash command. Returns true to quit.
func (sh *shell) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		fmt.Println(`Commands:
  /models            list configured models
  /model <name>      switch model (downloads it when absent)
  /new               start a new session
  /sessions          list sessions
  /switch <id>       switch to a session
  /delete <id>       delete a session
  /quit              exit`)
	case "/models":
		for _, m := range sh.cli.Models() {
			fmt.Printf("  %-20s %s\n", m.Value, m.Label)
		}
	case "/model":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /model <name>")
		}
		return false, sh.selectModel(ctx, args[0])
	case "/new":
		id, err := sh.cli.Store().NewSession()
		if err != nil {
			return false, err
		}
		sh.sessionID = id
		fmt.Println("Started a new chat.")
	case "/sessions":
		for _, meta := range sh.cli.Store().List() {
			marker := " "
			if meta.ID == sh.sessionID {
				marker = "*"
			}
			fmt.Printf("%s %-16s %-24s %d messages\n", marker, meta.ID, meta.Title, meta.MessageCount)
		}
	case "/switch":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /switch <id>")
		}
		if err := sh.cli.Store().Switch(args[0]); err != nil {
			return false, err
		}
		sh.sessionID = args[0]
	case "/delete":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /delete <id>")
		}
		if err := sh.cli.Store().Delete(args[0]); err != nil {
			return false, err
		}
		if sh.sessionID == args[0] {
			if err := sh.ensureSession(); err != nil {
				return false, err
			}
		}
	case "/quit", "/exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
	return false, nil
}

// resolveServerBinary finds the offlineai-server binary: explicit flag
// first, then next to this executable, then PATH.
func resolveServerBinary(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	name := "offlineai-server"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), name)
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}

	return name, nil
}

// loadConfig installs an explicit config file as the process-wide config,
// otherwise resolves through the lazy global.
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
