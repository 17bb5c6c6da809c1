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
	"os"
	"path/filepath"

	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

const ScratchDirPrefix = "render_"

// RenderWorkspace creates the run's private scratch directory with one
// sub-directory per scene and registers it for removal when the context is
// closed. Nothing in the directory is shared with other runs.
type RenderWorkspace struct {
	cor.BaseCommand
	root string // parent directory, empty for the OS default
}

// NewRenderWorkspace builds the step that creates the per-render scratch
// directory.
//
// Inputs:
//   - name: The command name.
//   - root: The parent of every render directory. Empty uses the OS default.
//
// Outputs:
//   - *RenderWorkspace: Reads RequestParam and writes the ordered scenes under
//     ScenesParam. The directory is registered with the context for removal.
func NewRenderWorkspace(name string, root string) *RenderWorkspace {
	out := &RenderWorkspace{BaseCommand: *cor.NewBaseCommand(name), root: root}
	out.InputParamName = RequestParam
	out.OutputParamName = ScenesParam
	return out
}

func (c *RenderWorkspace) Execute(context cor.Context) {
	req := context.Get(c.GetInputParam()).(*model.RenderRequest)

	dir, err := os.MkdirTemp(c.root, ScratchDirPrefix)
	if err != nil {
		c.Fail(context, model.NewError(model.KindInternal, "create-scratch-dir", err))
		return
	}
	context.AddTempFile(dir)

	work := make([]*model.SceneWork, 0, len(req.Scenes))
	for _, s := range req.Scenes {
		sceneDir := filepath.Join(dir, fmt.Sprintf("scene_%03d", s.Order))
		if err := os.Mkdir(sceneDir, 0o755); err != nil {
			c.Fail(context, model.NewError(model.KindInternal, "create-scratch-dir", err))
			return
		}
		work = append(work, &model.SceneWork{
			Scene:   s,
			Subject: req.SubjectID,
			Metrics: req.SceneMetrics(s),
			Dir:     sceneDir,
		})
	}

	slog.DebugContext(context.GetContext(), "scratch directory ready", "render_id", req.ID, "dir", dir)
	c.Succeed(context)
	context.Add(RenderDirParam, dir)
	context.Add(c.GetOutputParam(), work)
}
