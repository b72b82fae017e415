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

	"github.com/spf13/viper"

	"github.com/CascadiaAI/CascadiaMind/pkg/ux"
)

// CLIConfig holds optional settings read from the mindctl config file.
// Every field can also be supplied by flag or environment variable, which
// take precedence.
type CLIConfig struct {
	ServerURL   string `mapstructure:"server_url"`
	AuthToken   string `mapstructure:"auth_token"`
	DefaultUser string `mapstructure:"default_user"`

	Upload UploadConfig `mapstructure:"upload"`
}

// UploadConfig carries GCS upload defaults so the bucket and project do
// not have to be repeated on every invocation.
type UploadConfig struct {
	Bucket  string `mapstructure:"bucket"`
	Project string `mapstructure:"project"`
	KeyFile string `mapstructure:"key_file"`
}

var config CLIConfig

// configFilePath resolves the config file location: the MINDSIM_CONFIG
// environment variable wins, otherwise ~/.config/mindctl/config.yaml.
func configFilePath() string {
	if p := os.Getenv("MINDSIM_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mindctl", "config.yaml")
}

// loadCLIConfig reads the optional config file into the package-level
// config. A missing file is normal and leaves the zero value in place;
// a present but unreadable file gets a warning rather than an abort so
// flags and environment variables can still drive the command.
func loadCLIConfig() {
	path := configFilePath()
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		ux.Warning("Could not read config file " + path + ": " + err.Error())
		return
	}
	if err := v.Unmarshal(&config); err != nil {
		ux.Warning("Could not parse config file " + path + ": " + err.Error())
		config = CLIConfig{}
	}
}
