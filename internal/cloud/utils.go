// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Configuration file layout and the environment variables that select it.
const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GCP_RUNTIME"       // The environment variable for specifying the runtime context (e.g., "local", "test", "prod").
)

// Deployment overrides. These win over every TOML file.
const (
	EnvVideoFPS        = "VIDEO_FPS"
	EnvVideoWidth      = "VIDEO_WIDTH"
	EnvVideoHeight     = "VIDEO_HEIGHT"
	EnvBucket          = "GCS_BUCKET"
	EnvPrefix          = "GCS_PREFIX"
	EnvPublic          = "GCS_PUBLIC"
	EnvCredentials     = "GCP_SA_JSON"
	EnvPort            = "PORT"
	EnvFontPath        = "FONT_PATH"
	EnvLogoPath        = "LOGO_PATH"
	EnvStorageProvider = "STORAGE_PROVIDER"
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadDotEnv reads a .env file into the process environment when present.
// Variables already set are left alone.
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}
}

// LoadConfig provides a hierarchical configuration loading mechanism. It first loads a
// base configuration file and then merges or overwrites its values with an environment-specific
// configuration file. The paths and environment are determined by environment variables.
func LoadConfig(baseConfig interface{}) error {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension
	slog.Debug("loading configuration", "base", baseConfigFileName, "runtime", envConfigFileName)

	if fileExists(baseConfigFileName) {
		if _, err := toml.DecodeFile(baseConfigFileName, baseConfig); err != nil {
			return fmt.Errorf("failed to decode base configuration file %s: %w", baseConfigFileName, err)
		}
	}
	if fileExists(envConfigFileName) {
		if _, err := toml.DecodeFile(envConfigFileName, baseConfig); err != nil {
			return fmt.Errorf("failed to decode environment configuration file %s: %w", envConfigFileName, err)
		}
	}
	return nil
}

// ApplyEnvOverrides copies the deployment variables into config. Only
// variables that are set are applied.
func ApplyEnvOverrides(config *Config) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{EnvVideoFPS, &config.Video.FPS},
		{EnvVideoWidth, &config.Video.Width},
		{EnvVideoHeight, &config.Video.Height},
		{EnvPort, &config.Application.Port},
	}
	for _, e := range ints {
		v, ok := lookup(e.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = n
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{EnvBucket, &config.Storage.Bucket},
		{EnvPrefix, &config.Storage.Prefix},
		{EnvCredentials, &config.Application.CredentialsJSON},
		{EnvFontPath, &config.Assets.FontPath},
		{EnvLogoPath, &config.Assets.LogoPath},
		{EnvStorageProvider, &config.Storage.Provider},
	}
	for _, e := range strs {
		if v, ok := lookup(e.name); ok {
			*e.dst = v
		}
	}

	if v, ok := lookup(EnvPublic); ok {
		config.Storage.Public = ParseFlag(v)
	}
	return nil
}

// ParseFlag accepts 1, true and yes in any case.
func ParseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Load builds the full configuration: defaults, TOML files, environment
// overrides, then validation.
func Load() (*Config, error) {
	config := NewConfig()
	if err := LoadConfig(config); err != nil {
		return nil, err
	}
	if err := ApplyEnvOverrides(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
