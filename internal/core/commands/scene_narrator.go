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

package commands

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
	"github.com/jaycherian/gcp-go-video-render/internal/core/narration"
)

// SceneNarrator synthesizes the scene script and records its duration,
// which becomes the length of the scene clip.
type SceneNarrator struct {
	cor.BaseCommand
	narrator        *narration.Narrator
	fallbackCounter metric.Int64Counter
}

// NewSceneNarrator builds the narration step of the per-scene chain. Scenes
// that fall back to the default duration are counted in
// "<name>.duration.fallback".
func NewSceneNarrator(name string, narrator *narration.Narrator) *SceneNarrator {
	out := &SceneNarrator{BaseCommand: *cor.NewBaseCommand(name), narrator: narrator}
	out.fallbackCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.duration.fallback", out.GetName()))
	return out
}

func (c *SceneNarrator) Execute(context cor.Context) {
	work := context.Get(c.GetInputParam()).(*model.SceneWork)
	ctx := context.GetContext()

	n, err := c.narrator.Narrate(ctx, work.Scene.Script, work.Dir)
	if err != nil {
		c.Fail(context, fmt.Errorf("scene %d: %w", work.Scene.Order, err))
		return
	}
	if !n.Probed && c.fallbackCounter != nil {
		c.fallbackCounter.Add(ctx, 1)
	}
	work.Narration = n

	slog.DebugContext(ctx, "scene narrated", "scene", work.Scene.Order, "seconds", n.Duration, "probed", n.Probed)
	c.Succeed(context)
	context.Add(c.GetOutputParam(), work)
}
