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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-video-render/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

func newRenderCommand() *cobra.Command {
	var (
		requestPath string
		outPath     string
		publish     bool
		example     bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one request file without starting the server",
		Long: "Render one request and write the video to --out. With --publish the video is\n" +
			"uploaded to the configured storage instead and the result is printed as JSON.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if example {
				return writeJSON(cmd.OutOrStdout(), model.GetExampleRequestPayload())
			}
			if requestPath == "" {
				return errors.New("--request is required")
			}
			return renderOnce(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), requestPath, outPath, publish)
		},
	}

	cmd.Flags().StringVarP(&requestPath, "request", "r", "", "Path to the JSON render request, - for stdin")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Where to write the video (default: the request's object name)")
	cmd.Flags().BoolVar(&publish, "publish", false, "Upload the video to the configured storage")
	cmd.Flags().BoolVar(&example, "example", false, "Print an example request and exit")
	return cmd
}

func readRequest(stdin io.Reader, path string) (*model.RenderRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	return model.DecodeRenderRequest(data)
}

func renderOnce(parent context.Context, stdin io.Reader, stdout io.Writer, requestPath, outPath string, publish bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req, err := readRequest(stdin, requestPath)
	if err != nil {
		return err
	}
	if !publish {
		req.ReturnFile = true
	}

	state, err := InitState(ctx)
	if err != nil {
		return err
	}
	defer state.Close(context.Background())

	result, err := state.workflow.Run(ctx, req, false)
	if err != nil {
		if diagnostic := model.DiagnosticOf(err); diagnostic != "" {
			fmt.Fprintln(os.Stderr, diagnostic)
		}
		return err
	}

	if result.LocalPath != "" {
		if outPath == "" {
			outPath = result.ObjectName
		}
		if err := commands.MoveFile(result.LocalPath, outPath); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		result.AssetAddress = outPath
	}
	return writeJSON(stdout, result)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
