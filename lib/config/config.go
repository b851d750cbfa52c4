// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the master configuration for Skiff binaries.
type Config struct {
	// Gateway configures the connection to the gateway process.
	Gateway GatewayConfig `yaml:"gateway" json:"gateway"`

	// Client identifies this client to the gateway during the
	// connect handshake.
	Client ClientConfig `yaml:"client" json:"client"`

	// Chat configures conversation defaults.
	Chat ChatConfig `yaml:"chat" json:"chat"`
}

// GatewayConfig configures the gateway endpoint and authentication.
type GatewayConfig struct {
	// URL is the WebSocket endpoint, e.g. "ws://127.0.0.1:18789/ws".
	URL string `yaml:"url" json:"url"`

	// Token is the opaque auth token presented during the connect
	// handshake. Mutually exclusive with TokenFile.
	Token string `yaml:"token" json:"token"`

	// TokenFile is a path to a file whose trimmed contents are the
	// auth token. Takes effect only when Token is empty.
	TokenFile string `yaml:"token_file" json:"token_file"`
}

// ClientConfig identifies this client during the connect handshake.
type ClientConfig struct {
	// ID is the client identifier known to the gateway.
	// Default: "skiff".
	ID string `yaml:"id" json:"id"`

	// Mode describes the client kind reported to the gateway.
	// Default: "cli".
	Mode string `yaml:"mode" json:"mode"`
}

// ChatConfig configures conversation defaults for the chat TUI.
type ChatConfig struct {
	// Session is the conversation key opened at startup when no
	// --session flag is given.
	Session string `yaml:"session" json:"session"`

	// Model is the model hint attached to sends. Empty lets the
	// gateway choose.
	Model string `yaml:"model" json:"model"`
}

// Default returns a Config with development defaults. The config file
// is still required for the gateway URL and token; defaults exist so
// every field has a sensible zero value, not as a fallback.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			URL: "ws://127.0.0.1:18789/ws",
		},
		Client: ClientConfig{
			ID:   "skiff",
			Mode: "cli",
		},
	}
}

// Load loads configuration from the path in SKIFF_CONFIG.
//
// This is the only way to load configuration without an explicit path.
// If SKIFF_CONFIG is not set, Load fails: there are no fallbacks.
func Load() (*Config, error) {
	path := os.Getenv("SKIFF_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("SKIFF_CONFIG environment variable not set; " +
			"set it to the path of your skiff.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar patterns in path and URL fields.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Commented JSON is accepted alongside YAML. jsonc strips
	// comments and trailing commas; the result parses as YAML since
	// YAML is a superset of JSON.
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.resolveToken(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveToken reads Gateway.TokenFile into Gateway.Token when no
// inline token is set.
func (c *Config) resolveToken() error {
	if c.Gateway.Token != "" || c.Gateway.TokenFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.Gateway.TokenFile)
	if err != nil {
		return fmt.Errorf("config: reading token file: %w", err)
	}
	c.Gateway.Token = strings.TrimSpace(string(data))
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in the
// fields that may reference the environment.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Gateway.URL = expandVars(c.Gateway.URL, vars)
	c.Gateway.TokenFile = expandVars(c.Gateway.TokenFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var problems []string
	if c.Gateway.URL == "" {
		problems = append(problems, "gateway.url is required")
	} else if !strings.HasPrefix(c.Gateway.URL, "ws://") && !strings.HasPrefix(c.Gateway.URL, "wss://") {
		problems = append(problems, "gateway.url must be a ws:// or wss:// URL")
	}
	if c.Client.ID == "" {
		problems = append(problems, "client.id is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
