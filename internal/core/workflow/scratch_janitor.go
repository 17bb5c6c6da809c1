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

package workflow

import (
	goctx "context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-video-render/internal/cloud"
	"github.com/jaycherian/gcp-go-video-render/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
)

// SweptParam holds the number of entries removed by the last sweep.
const SweptParam = "__swept__"

// ScratchJanitor removes scratch directories and kept renders that a
// crashed or killed process left behind. Every run removes its own scratch
// directory, so anything old enough under the scratch root is an orphan.
type ScratchJanitor struct {
	cor.BaseCommand
	root     string
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewScratchJanitor(config *cloud.Config) *ScratchJanitor {
	root := config.Application.ScratchDir
	if root == "" {
		root = os.TempDir()
	}
	maxAge := config.ScratchMaxAge()
	return &ScratchJanitor{
		BaseCommand: *cor.NewBaseCommand("scratch-janitor"),
		root:        root,
		maxAge:      maxAge,
		interval:    max(maxAge/4, time.Minute),
		now:         time.Now,
	}
}

// SetClock replaces the janitor's time source.
func (j *ScratchJanitor) SetClock(now func() time.Time) {
	j.now = now
}

// StartTimer sweeps on a fixed interval until ctx is cancelled. It does
// nothing when the maximum age is zero.
func (j *ScratchJanitor) StartTimer(ctx goctx.Context) {
	if j.maxAge <= 0 {
		return
	}
	tracer := otel.Tracer("scratch-janitor")
	ticker := time.NewTicker(j.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				traceCtx, span := tracer.Start(ctx, "sweep-scratch")
				chainCtx := cor.NewBaseContext()
				chainCtx.SetContext(traceCtx)

				j.Execute(chainCtx)

				if chainCtx.HasErrors() {
					span.SetStatus(codes.Error, "failed to sweep scratch directory")
				} else {
					span.SetStatus(codes.Ok, "swept scratch directory")
				}
				span.End()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// IsExecutable is always true; the janitor needs no inputs.
func (j *ScratchJanitor) IsExecutable(_ cor.Context) bool {
	return true
}

func (j *ScratchJanitor) Execute(context cor.Context) {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		j.Fail(context, err)
		return
	}

	cutoff := j.now().Add(-j.maxAge)
	swept := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), commands.ScratchDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.WarnContext(context.GetContext(), "failed to remove scratch entry", "path", path, "error", err)
			continue
		}
		swept++
	}

	if swept > 0 {
		slog.InfoContext(context.GetContext(), "removed leftover scratch entries", "root", j.root, "count", swept)
	}
	j.Succeed(context)
	context.Add(SweptParam, swept)
}
