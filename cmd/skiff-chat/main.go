// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

// skiff-chat is the interactive terminal UI for chatting with an
// agent through a Skiff gateway. It connects over a single WebSocket,
// reconciles the gateway's realtime event stream into a conversation
// log, and renders it with markdown and live agent status.
//
// Configuration comes from the Skiff config file (the path in
// SKIFF_CONFIG, or --config), with flags overriding individual
// values.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/skiff-systems/skiff/chat"
	"github.com/skiff-systems/skiff/gateway"
	"github.com/skiff-systems/skiff/lib/chatui"
	"github.com/skiff-systems/skiff/lib/config"
	"github.com/skiff-systems/skiff/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var url string
	var token string
	var sessionKey string
	var modelPin string
	var logOutput string

	flagSet := pflag.NewFlagSet("skiff-chat", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: the path in SKIFF_CONFIG)")
	flagSet.StringVar(&url, "url", "", "gateway WebSocket URL (overrides config)")
	flagSet.StringVar(&token, "token", "", "gateway auth token (overrides config)")
	flagSet.StringVar(&sessionKey, "session", "", "conversation key to open (overrides config)")
	flagSet.StringVar(&modelPin, "model", "", "pin the model for sends (overrides config)")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match other Skiff binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("skiff-chat")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.PrintDefaults()
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if url != "" {
		cfg.Gateway.URL = url
	}
	if token != "" {
		cfg.Gateway.Token = token
	}
	if sessionKey != "" {
		cfg.Chat.Session = sessionKey
	}
	if modelPin != "" {
		cfg.Chat.Model = modelPin
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Chat.Session == "" {
		return fmt.Errorf("no conversation key: set chat.session in the config or pass --session")
	}

	logger, closeLog, err := newLogger(logOutput)
	if err != nil {
		return err
	}
	defer closeLog()

	transport := gateway.NewTransport(gateway.TransportConfig{
		ClientID:   cfg.Client.ID,
		ClientMode: cfg.Client.Mode,
		Logger:     logger,
	})

	// The program handle is assigned after the model exists; callbacks
	// fire only once the UI is running.
	var program *tea.Program
	notify := func(message tea.Msg) {
		if program != nil {
			program.Send(message)
		}
	}

	// Fetch history once the connection comes up. The hook fires on
	// every supervisor update; the Once keeps the fetch to the first
	// connect, and the session's own refresh timers reconcile after.
	var session *chat.Session
	var fetchHistory sync.Once
	var supervisor *gateway.Supervisor
	supervisor = gateway.NewSupervisor(gateway.SupervisorConfig{
		Transport: transport,
		Logger:    logger,
		OnUpdate: func() {
			notify(chatui.ConnectionUpdated{})
			if supervisor.State() == gateway.StateConnected {
				fetchHistory.Do(func() {
					go func() {
						ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
						defer cancel()
						if err := session.RefreshHistory(ctx); err != nil {
							logger.Warn("initial history fetch failed", "error", err)
						}
					}()
				})
			}
		},
	})
	api := gateway.NewChatAPI(gateway.NewCaller(transport), supervisor)
	session = chat.NewSession(chat.SessionConfig{
		Service:  api,
		Logger:   logger,
		OnChange: func() { notify(chatui.SessionUpdated{}) },
	})
	session.SetConversation(cfg.Chat.Session)

	cancelEvents := supervisor.Subscribe("", func(event gateway.Event) {
		session.HandleEvent(event.Name, event.Payload)
	})
	defer cancelEvents()

	model := chatui.NewModel(chatui.Config{
		Session:    session,
		Supervisor: supervisor,
		Model:      cfg.Chat.Model,
	})
	program = tea.NewProgram(model, tea.WithAltScreen())

	supervisor.Connect(cfg.Gateway.URL, cfg.Gateway.Token)
	defer supervisor.Disconnect()

	_, err = program.Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newLogger builds the slog logger. Log records go to the given file,
// or nowhere: stderr belongs to the TUI.
func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log output: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { file.Close() }, nil
}
