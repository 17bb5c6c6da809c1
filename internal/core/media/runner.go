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

// Package media drives the external encoder: it builds compositing graphs for
// single scenes, probes media files and concatenates finished scene clips.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

const maxStderrBytes = 8 * 1024

// RunResult describes one finished encoder or probe process.
type RunResult struct {
	ExitCode   int
	Stdout     []byte
	StderrTail string
	Duration   time.Duration
}

// Runner executes an external media tool. Implementations must honour ctx
// cancellation.
type Runner interface {
	Run(ctx context.Context, binary string, args ...string) (RunResult, error)
}

// ExecRunner runs tools as subprocesses. Timeout bounds every invocation;
// zero leaves only the caller's deadline.
type ExecRunner struct {
	Timeout time.Duration
}

func (r *ExecRunner) Run(ctx context.Context, binary string, args ...string) (RunResult, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	start := time.Now()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &tailWriter{w: &stderr, limit: maxStderrBytes}

	slog.DebugContext(ctx, "executing media command", "binary", binary, "args", args)
	err := cmd.Run()
	result := RunResult{
		Stdout:     stdout.Bytes(),
		StderrTail: stderr.String(),
		Duration:   time.Since(start),
	}
	if err == nil {
		slog.DebugContext(ctx, "media command succeeded", "binary", binary, "duration_ms", result.Duration.Milliseconds())
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	} else {
		result.ExitCode = -1
	}
	if ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	slog.WarnContext(ctx, "media command failed",
		"binary", binary,
		"exit_code", result.ExitCode,
		"duration_ms", result.Duration.Milliseconds(),
		"stderr_tail", truncate(result.StderrTail, 512),
	)
	return result, fmt.Errorf("%s exited %d: %w", binary, result.ExitCode, err)
}

// tailWriter keeps only the last limit bytes written to it.
type tailWriter struct {
	w     *bytes.Buffer
	limit int
}

func (t *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	t.w.Write(p)
	if t.w.Len() > t.limit {
		b := t.w.Bytes()
		keep := append([]byte(nil), b[len(b)-t.limit:]...)
		t.w.Reset()
		t.w.Write(keep)
	}
	return n, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
