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

package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

const (
	opAssemble = "assemble"
	ConcatList = "concat_list.txt"
)

// Assembler joins scene clips with the concat demuxer and stream copy.
type Assembler struct {
	Runner Runner
	Binary string
	Prober *Prober
}

// NewAssembler creates an Assembler. An empty binary uses "ffmpeg"; prober
// measures the joined file.
func NewAssembler(runner Runner, binary string, prober *Prober) *Assembler {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &Assembler{Runner: runner, Binary: binary, Prober: prober}
}

// ConcatListEntry is one line of a concat demuxer list.
func ConcatListEntry(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file '" + strings.ReplaceAll(abs, "'", `'\''`) + "'", nil
}

// Args is the encoder command line concatenating list into out.
func (a *Assembler) Args(list, out string) []string {
	return ffmpeg.Input(list, ffmpeg.KwArgs{"f": "concat", "safe": 0}).
		Output(out, ffmpeg.KwArgs{"c": "copy", "movflags": "+faststart"}).
		GlobalArgs("-hide_banner", "-nostdin").
		OverWriteOutput().
		GetArgs()
}

// Assemble writes the clips, in ascending order, to out. clips may arrive
// in any order. Every clip must share the first clip's stream profile; a
// mismatch means the composer broke its contract and is not retried.
func (a *Assembler) Assemble(ctx context.Context, clips []*model.SceneClip, out string) (float64, error) {
	if len(clips) == 0 {
		return 0, model.NewError(model.KindCompose, opAssemble, errors.New("no scene clips"))
	}
	ordered := append([]*model.SceneClip(nil), clips...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	if err := a.checkProfiles(ctx, ordered); err != nil {
		return 0, err
	}

	lines := make([]string, 0, len(ordered))
	total := 0.0
	for _, c := range ordered {
		line, err := ConcatListEntry(c.Path)
		if err != nil {
			return 0, model.NewError(model.KindCompose, opAssemble, err)
		}
		lines = append(lines, line)
		total += c.Duration
	}
	list := filepath.Join(filepath.Dir(out), ConcatList)
	if err := os.WriteFile(list, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return 0, model.NewError(model.KindCompose, opAssemble, err)
	}

	res, err := a.Runner.Run(ctx, a.Binary, a.Args(list, out)...)
	if err != nil {
		e := model.NewError(model.KindCompose, opAssemble, err)
		e.Diagnostic = res.StderrTail
		return 0, e
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		e := model.NewError(model.KindCompose, opAssemble, errors.New("concat produced no output"))
		e.Diagnostic = res.StderrTail
		return 0, e
	}
	return total, nil
}

func (a *Assembler) checkProfiles(ctx context.Context, clips []*model.SceneClip) error {
	if a.Prober == nil {
		return nil
	}
	var want StreamProfile
	for i, c := range clips {
		res, err := a.Prober.Inspect(ctx, c.Path)
		if err != nil {
			return model.NewError(model.KindCompose, opAssemble, fmt.Errorf("scene %d: %w", c.Order, err))
		}
		got, err := res.Profile()
		if err != nil {
			return model.NewError(model.KindCompose, opAssemble, fmt.Errorf("scene %d: %w", c.Order, err))
		}
		if i == 0 {
			want = got
			continue
		}
		if got != want {
			return model.NewError(model.KindCompose, opAssemble,
				fmt.Errorf("scene %d profile %+v differs from scene %d profile %+v", c.Order, got, clips[0].Order, want))
		}
	}
	return nil
}
