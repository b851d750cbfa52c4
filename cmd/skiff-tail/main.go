// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

// skiff-tail streams gateway events to stdout as NDJSON, one record
// per line. It is the headless companion to skiff-chat: useful for
// debugging gateway payload shapes, piping events into jq, or
// watching agent activity from scripts.
//
// Each record carries the receipt timestamp, the event name, and the
// raw payload:
//
//	{"ts":"2026-08-23T10:00:00Z","event":"chat","payload":{...}}
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/skiff-systems/skiff/gateway"
	"github.com/skiff-systems/skiff/lib/config"
	"github.com/skiff-systems/skiff/lib/version"
)

type record struct {
	Timestamp string          `json:"ts"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

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
	var eventFilter string

	flagSet := pflag.NewFlagSet("skiff-tail", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: the path in SKIFF_CONFIG)")
	flagSet.StringVar(&url, "url", "", "gateway WebSocket URL (overrides config)")
	flagSet.StringVar(&token, "token", "", "gateway auth token (overrides config)")
	flagSet.StringVar(&eventFilter, "event", "", "only print events with this name (default: all)")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("skiff-tail")
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
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := gateway.NewTransport(gateway.TransportConfig{
		ClientID:   cfg.Client.ID,
		ClientMode: "tail",
		Logger:     logger,
	})
	failed := make(chan struct{})
	var failOnce sync.Once
	var supervisor *gateway.Supervisor
	supervisor = gateway.NewSupervisor(gateway.SupervisorConfig{
		Transport: transport,
		Logger:    logger,
		OnUpdate: func() {
			if supervisor.State() == gateway.StateFailed {
				failOnce.Do(func() { close(failed) })
			}
		},
	})
	defer supervisor.Disconnect()

	encoder := json.NewEncoder(os.Stdout)
	var stdout sync.Mutex
	cancel := supervisor.Subscribe(eventFilter, func(event gateway.Event) {
		stdout.Lock()
		defer stdout.Unlock()
		encoder.Encode(record{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Event:     event.Name,
			Payload:   event.Payload,
		})
	})
	defer cancel()

	supervisor.Connect(cfg.Gateway.URL, cfg.Gateway.Token)

	select {
	case <-ctx.Done():
		return nil
	case <-failed:
		return fmt.Errorf("connection failed: %s", supervisor.LastError())
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
