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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-video-render/internal/cloud"
	"github.com/jaycherian/gcp-go-video-render/internal/core/workflow"
	"github.com/jaycherian/gcp-go-video-render/internal/telemetry"
)

// StateManager holds the process-wide dependencies shared by the server and
// the one-shot render command.
type StateManager struct {
	config   *cloud.Config
	cloud    *cloud.ServiceClients
	workflow *workflow.RenderWorkflow
	closers  []func(context.Context) error
}

// SetupOS points the configuration loader at ./configs with the local
// runtime unless the environment already says otherwise.
func SetupOS() error {
	defaults := map[string]string{
		cloud.EnvConfigFilePrefix: "configs",
		cloud.EnvConfigRuntime:    "local",
	}
	for name, value := range defaults {
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, value); err != nil {
			return err
		}
	}
	return nil
}

// GetConfig reads .env, the TOML files and the environment overrides.
func GetConfig() (*cloud.Config, error) {
	cloud.LoadDotEnv()
	if err := SetupOS(); err != nil {
		return nil, fmt.Errorf("failed to setup os: %w", err)
	}
	return cloud.Load()
}

// InitState loads the configuration, installs logging and telemetry, opens
// the cloud clients and builds the render workflow. Close releases all of it.
func InitState(ctx context.Context) (_ *StateManager, err error) {
	config, err := GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	state := &StateManager{config: config}
	defer func() {
		if err != nil {
			state.Close(context.Background())
		}
	}()

	closeLog, err := telemetry.SetupLogging(config.Application.LogLevel, config.Application.LogFile)
	if err != nil {
		return nil, err
	}
	state.closers = append(state.closers, func(context.Context) error { return closeLog() })
	slog.InfoContext(ctx, "logging initialized", "level", config.Application.LogLevel)

	shutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to setup OpenTelemetry: %w", err)
	}
	state.closers = append(state.closers, shutdown)

	if state.cloud, err = cloud.NewCloudServiceClients(ctx, config); err != nil {
		return nil, fmt.Errorf("failed to create cloud clients: %w", err)
	}
	if state.workflow, err = workflow.NewRenderWorkflow(ctx, config, state.cloud, nil); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "initialized state", "name", config.Application.Name)
	return state, nil
}

// Close releases the clients, flushes telemetry and closes the log file,
// in that order.
func (s *StateManager) Close(ctx context.Context) {
	if s.cloud != nil {
		s.cloud.Close()
	}
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, s.closers[i](ctx))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
}
