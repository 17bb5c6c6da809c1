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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-video-render/internal/api"
	"github.com/jaycherian/gcp-go-video-render/internal/core/workflow"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "video-render",
		Short:         "Renders narrated vertical videos from scene scripts and images",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context())
		},
	}
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newRenderCommand())
	return rootCmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve render requests over HTTP and Pub/Sub (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state, err := InitState(ctx)
	if err != nil {
		return err
	}
	defer state.Close(context.Background())
	config := state.config

	if config.Application.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewRenderHandler(ctx, state.workflow, config.Storage.Bucket, nil)
	r := api.NewEngine(config.Application.Name, handler)

	var writeTimeout time.Duration
	if config.RequestTimeout() > 0 {
		writeTimeout = config.RequestTimeout() + time.Minute
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Application.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      writeTimeout,
	}

	workflow.NewScratchJanitor(config).StartTimer(ctx)
	SetupListeners(ctx, config, state.cloud, state.workflow)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	slog.InfoContext(ctx, "server ready", "port", config.Application.Port)

	select {
	case err := <-serveErr:
		if err != nil {
			slog.Error("failed to listen", "error", err)
			return err
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	// In-flight requests get shutdownTimeout to finish; background renders
	// see the cancelled context and still write their failure notices.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	handler.Wait()

	slog.Info("server exiting")
	return nil
}
