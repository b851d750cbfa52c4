// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "skiff.yaml", `
gateway:
  url: ws://gateway.local:18789/ws
  token: secret-token
client:
  id: test-client
chat:
  session: "chan:u1"
  model: fast
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Gateway.URL != "ws://gateway.local:18789/ws" {
		t.Errorf("unexpected URL: %s", cfg.Gateway.URL)
	}
	if cfg.Gateway.Token != "secret-token" {
		t.Errorf("unexpected token: %s", cfg.Gateway.Token)
	}
	if cfg.Client.ID != "test-client" {
		t.Errorf("unexpected client ID: %s", cfg.Client.ID)
	}
	if cfg.Client.Mode != "cli" {
		t.Errorf("default mode not applied: %s", cfg.Client.Mode)
	}
	if cfg.Chat.Session != "chan:u1" {
		t.Errorf("unexpected session: %s", cfg.Chat.Session)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadFileJSONC(t *testing.T) {
	path := writeFile(t, "skiff.jsonc", `{
  // gateway settings
  "gateway": {
    "url": "wss://gateway.example/ws",
    "token": "t0k3n", // inline comment
  },
  "client": {"id": "webui"},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Gateway.URL != "wss://gateway.example/ws" {
		t.Errorf("unexpected URL: %s", cfg.Gateway.URL)
	}
	if cfg.Gateway.Token != "t0k3n" {
		t.Errorf("unexpected token: %s", cfg.Gateway.Token)
	}
	if cfg.Client.ID != "webui" {
		t.Errorf("unexpected client ID: %s", cfg.Client.ID)
	}
}

func TestTokenFile(t *testing.T) {
	tokenPath := writeFile(t, "token", "from-file\n")
	path := writeFile(t, "skiff.yaml", `
gateway:
  url: ws://127.0.0.1:18789/ws
  token_file: `+tokenPath+`
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Gateway.Token != "from-file" {
		t.Errorf("token not read from file: %q", cfg.Gateway.Token)
	}
}

func TestVariableExpansion(t *testing.T) {
	t.Setenv("SKIFF_TEST_HOST", "gw.internal")
	path := writeFile(t, "skiff.yaml", `
gateway:
  url: ws://${SKIFF_TEST_HOST}:18789/ws
  token: x
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Gateway.URL != "ws://gw.internal:18789/ws" {
		t.Errorf("variable not expanded: %s", cfg.Gateway.URL)
	}
}

func TestVariableDefault(t *testing.T) {
	path := writeFile(t, "skiff.yaml", `
gateway:
  url: ws://${SKIFF_UNSET_HOST:-127.0.0.1}:18789/ws
  token: x
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Gateway.URL != "ws://127.0.0.1:18789/ws" {
		t.Errorf("default not applied: %s", cfg.Gateway.URL)
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv("SKIFF_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without SKIFF_CONFIG")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Gateway.URL = "http://not-a-socket"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted non-websocket URL")
	}

	cfg = Default()
	cfg.Client.ID = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted empty client ID")
	}
}
