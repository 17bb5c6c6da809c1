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

package test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jaycherian/gcp-go-video-render/internal/core/media"
)

// Call is one recorded invocation of FakeRunner.
type Call struct {
	Binary string
	Args   []string
}

// FakeRunner stands in for ffmpeg and ffprobe. Encoder calls create their
// output file; probe calls answer with canned JSON.
type FakeRunner struct {
	mu    sync.Mutex
	calls []Call

	// Duration reported by ffprobe unless Durations has an entry for the path.
	Duration  float64
	Durations map[string]float64
	// Width reported by ffprobe unless Widths has an entry for the path.
	Width  int
	Widths map[string]int
	// ProbeFails makes every ffprobe call fail.
	ProbeFails bool
	// FailEncode, when set, decides whether an encoder call fails.
	FailEncode func(args []string) bool
	// SkipOutput leaves the encoder output file unwritten.
	SkipOutput bool
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Duration: 4.0, Width: 1080}
}

// Calls returns the recorded invocations in order.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded invocations of binary.
func (f *FakeRunner) CallsTo(binary string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Binary == binary {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeRunner) Run(ctx context.Context, binary string, args ...string) (media.RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Binary: binary, Args: append([]string(nil), args...)})
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return media.RunResult{ExitCode: -1}, err
	}
	if len(args) == 0 {
		return media.RunResult{ExitCode: 1}, errors.New("no arguments")
	}
	target := OutputArg(args)

	if strings.Contains(binary, "ffprobe") {
		if f.ProbeFails {
			return media.RunResult{ExitCode: 1, StderrTail: target + ": Invalid data found when processing input"},
				fmt.Errorf("%s exited 1", binary)
		}
		return media.RunResult{Stdout: []byte(f.probeJSON(target))}, nil
	}

	if f.FailEncode != nil && f.FailEncode(args) {
		return media.RunResult{ExitCode: 1, StderrTail: "Error initializing complex filters.\nInvalid argument"},
			fmt.Errorf("%s exited 1", binary)
	}
	if !f.SkipOutput {
		if err := os.WriteFile(target, []byte("fake media"), 0o644); err != nil {
			return media.RunResult{ExitCode: 1, StderrTail: err.Error()}, err
		}
	}
	return media.RunResult{}, nil
}

var switches = map[string]bool{"-y": true, "-n": true, "-shortest": true, "-hide_banner": true, "-nostdin": true, "--": true}

// OutputArg is the last positional argument: one that is neither a flag nor
// the value of a flag.
func OutputArg(args []string) string {
	for i := len(args) - 1; i >= 0; i-- {
		if strings.HasPrefix(args[i], "-") {
			continue
		}
		if i == 0 || !strings.HasPrefix(args[i-1], "-") || switches[args[i-1]] {
			return args[i]
		}
	}
	return args[len(args)-1]
}

func (f *FakeRunner) probeJSON(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	duration := f.Duration
	if d, ok := f.Durations[path]; ok {
		duration = d
	}
	width := f.Width
	if w, ok := f.Widths[path]; ok {
		width = w
	}
	return fmt.Sprintf(`{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": %d, "height": 1920, "pix_fmt": "yuv420p", "r_frame_rate": "30/1", "time_base": "1/15360", "profile": "High"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "48000", "channels": 2, "channel_layout": "stereo", "time_base": "1/48000", "profile": "LC"}
  ],
  "format": {"filename": %q, "format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "%.6f", "size": "1024", "bit_rate": "2048"}
}`, width, path, duration)
}
