// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// Config File Tests
// =============================================================================

func TestConfigFilePath_EnvOverride(t *testing.T) {
	t.Setenv("MINDSIM_CONFIG", "/tmp/custom.yaml")
	if got := configFilePath(); got != "/tmp/custom.yaml" {
		t.Errorf("expected env path, got %q", got)
	}
}

func TestConfigFilePath_DefaultUnderHome(t *testing.T) {
	t.Setenv("MINDSIM_CONFIG", "")
	got := configFilePath()
	if got == "" {
		t.Skip("no home directory in test environment")
	}
	want := filepath.Join("mindctl", "config.yaml")
	if !filepath.IsAbs(got) || !pathHasSuffix(got, want) {
		t.Errorf("expected absolute path ending in %q, got %q", want, got)
	}
}

func pathHasSuffix(path, suffix string) bool {
	return len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix
}

func TestLoadCLIConfig_MissingFileLeavesZeroValue(t *testing.T) {
	orig := config
	defer func() { config = orig }()
	config = CLIConfig{}

	t.Setenv("MINDSIM_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	loadCLIConfig()

	if config.ServerURL != "" || config.AuthToken != "" {
		t.Errorf("expected zero config for missing file, got %+v", config)
	}
}

func TestLoadCLIConfig_ReadsYAML(t *testing.T) {
	orig := config
	defer func() { config = orig }()
	config = CLIConfig{}

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `server_url: http://mind.internal:12210
auth_token: file-token
default_user: ops
upload:
  bucket: mind-archives
  project: cascadia-prod
  key_file: /etc/keys/sa.json
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("MINDSIM_CONFIG", path)
	loadCLIConfig()

	if config.ServerURL != "http://mind.internal:12210" {
		t.Errorf("server_url not loaded: %+v", config)
	}
	if config.AuthToken != "file-token" {
		t.Errorf("auth_token not loaded: %+v", config)
	}
	if config.DefaultUser != "ops" {
		t.Errorf("default_user not loaded: %+v", config)
	}
	if config.Upload.Bucket != "mind-archives" {
		t.Errorf("upload.bucket not loaded: %+v", config)
	}
	if config.Upload.Project != "cascadia-prod" {
		t.Errorf("upload.project not loaded: %+v", config)
	}
	if config.Upload.KeyFile != "/etc/keys/sa.json" {
		t.Errorf("upload.key_file not loaded: %+v", config)
	}
}
