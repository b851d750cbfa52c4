// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Skiff binaries.
//
// Configuration is loaded from a single file specified by either the
// SKIFF_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This keeps configuration deterministic
// and auditable with no hidden overrides.
//
// The canonical format is YAML. Files ending in .json or .jsonc are
// accepted as well: gateway deployments commonly keep their settings
// in commented JSON, and Skiff reads those directly rather than
// forcing a translation step. Comments and trailing commas are
// stripped before parsing.
//
// Variable expansion is performed on the URL, token-file, and log
// fields after loading: ${HOME} and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- gateway endpoint, client identity, chat defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Skiff packages.
package config
