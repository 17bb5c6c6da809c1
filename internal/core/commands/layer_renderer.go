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
	"path/filepath"

	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/layers"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

// LayerRenderer rasterizes one overlay per subtitle chunk and, when the
// scene has metrics, the info panel. A layer that fails to draw degrades to
// a blank overlay and never fails the scene.
type LayerRenderer struct {
	cor.BaseCommand
	renderer        *layers.Renderer
	panelEnabled    bool
	degradedCounter metric.Int64Counter
}

// NewLayerRenderer builds the overlay step of the per-scene chain.
//
// Inputs:
//   - name: The command name. The degraded-layer counter is "<name>.layer.degraded".
//   - renderer: Draws subtitle chunks and the info panel.
//   - panelEnabled: false skips the info panel even when the scene has metrics.
//
// Outputs:
//   - *LayerRenderer: Reads and updates the scene's *model.SceneWork.
func NewLayerRenderer(name string, renderer *layers.Renderer, panelEnabled bool) *LayerRenderer {
	out := &LayerRenderer{BaseCommand: *cor.NewBaseCommand(name), renderer: renderer, panelEnabled: panelEnabled}
	out.degradedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.layer.degraded", out.GetName()))
	return out
}

func (c *LayerRenderer) Execute(context cor.Context) {
	work := context.Get(c.GetInputParam()).(*model.SceneWork)
	ctx := context.GetContext()

	work.Subtitles = make([]*model.Layer, 0, len(work.Chunks))
	for i, chunk := range work.Chunks {
		layer := c.renderer.RenderSubtitle(chunk, filepath.Join(work.Dir, fmt.Sprintf("subtitle_%02d.png", i)))
		layer.Name = fmt.Sprintf("subtitle_%02d", i)
		c.check(context, work, layer)
		work.Subtitles = append(work.Subtitles, layer)
	}

	if c.panelEnabled && work.Metrics != nil {
		work.Panel = c.renderer.RenderPanel(work.Metrics.Rows(work.Subject), filepath.Join(work.Dir, "panel.png"))
		c.check(context, work, work.Panel)
	}

	slog.DebugContext(ctx, "scene layers rendered", "scene", work.Scene.Order, "subtitles", len(work.Subtitles), "panel", work.Panel != nil)
	c.Succeed(context)
	context.Add(c.GetOutputParam(), work)
}

func (c *LayerRenderer) check(context cor.Context, work *model.SceneWork, layer *model.Layer) {
	if !layer.Degraded() {
		return
	}
	slog.WarnContext(context.GetContext(), "layer degraded to blank",
		"scene", work.Scene.Order, "layer", layer.Name, "reason", layer.Reason)
	if c.degradedCounter != nil {
		c.degradedCounter.Add(context.GetContext(), 1)
	}
}
