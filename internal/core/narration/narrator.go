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

package narration

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

const opNarrate = "narrate-scene"

// DurationProber is satisfied by media.Prober.
type DurationProber interface {
	Duration(ctx context.Context, path string, fallback float64) (float64, bool)
}

// Narrator synthesizes a scene script to disk and measures the result.
type Narrator struct {
	Synthesizer Synthesizer
	Prober      DurationProber
	Voice       string
	Fallback    float64       // seconds, used for empty scripts and failed probes
	Timeout     time.Duration // per synthesis call, zero for none
}

// Narrate writes the narration for script into dir. An empty script gets a
// silent track of the fallback length. Synthesis failures are
// asset-fetch errors: there is no substitute for missing narration.
func (n *Narrator) Narrate(ctx context.Context, script, dir string) (*model.Narration, error) {
	if strings.TrimSpace(script) == "" {
		wav, err := SilentWAV(n.Fallback, DefaultSampleRate)
		if err != nil {
			return nil, model.NewError(model.KindInternal, opNarrate, err)
		}
		path := filepath.Join(dir, "narration.wav")
		if err := os.WriteFile(path, wav, 0o644); err != nil {
			return nil, model.NewError(model.KindInternal, opNarrate, err)
		}
		slog.DebugContext(ctx, "empty script, using silent narration", "seconds", n.Fallback)
		return &model.Narration{Path: path, Duration: n.Fallback}, nil
	}

	synthCtx := ctx
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		synthCtx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}
	speech, err := n.Synthesizer.Synthesize(synthCtx, script, n.Voice)
	if err != nil {
		return nil, model.NewError(model.KindAssetFetch, opNarrate, err)
	}

	ext := speech.Extension
	if ext == "" {
		ext = ".wav"
	}
	path := filepath.Join(dir, "narration"+ext)
	if err := os.WriteFile(path, speech.Audio, 0o644); err != nil {
		return nil, model.NewError(model.KindInternal, opNarrate, err)
	}

	seconds, ok := n.Prober.Duration(ctx, path, n.Fallback)
	return &model.Narration{Path: path, Duration: seconds, Probed: ok}, nil
}
