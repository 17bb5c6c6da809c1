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
	"log/slog"
	"path/filepath"

	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/media"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

// SceneComposer encodes one scene clip from the scene's image, narration
// and overlays. The clip lasts exactly as long as the narration.
type SceneComposer struct {
	cor.BaseCommand
	composer *media.Composer
	logo     *media.Logo
}

// NewSceneComposer builds the encode step of the per-scene chain.
//
// Inputs:
//   - name: The command name.
//   - composer: Encodes one scene into one clip.
//   - logo: The logo overlay. nil renders without one.
//
// Outputs:
//   - *SceneComposer: Sets the clip path on the scene's *model.SceneWork.
func NewSceneComposer(name string, composer *media.Composer, logo *media.Logo) *SceneComposer {
	return &SceneComposer{BaseCommand: *cor.NewBaseCommand(name), composer: composer, logo: logo}
}

func (c *SceneComposer) IsExecutable(context cor.Context) bool {
	if !c.BaseCommand.IsExecutable(context) {
		return false
	}
	work, ok := context.Get(c.GetInputParam()).(*model.SceneWork)
	return ok && work.Image != nil && work.Narration != nil
}

func (c *SceneComposer) Execute(context cor.Context) {
	work := context.Get(c.GetInputParam()).(*model.SceneWork)

	spec := media.SceneSpec{
		Image:     work.Image.Path,
		Audio:     work.Narration.Path,
		Duration:  work.Narration.Duration,
		Panel:     work.Panel,
		Subtitles: work.Subtitles,
		Logo:      c.logo,
		Output:    filepath.Join(work.Dir, "scene.mp4"),
	}
	clip, err := c.composer.Compose(context.GetContext(), work.Scene.Order, spec)
	if err != nil {
		c.Fail(context, err)
		return
	}
	work.Clip = clip

	slog.InfoContext(context.GetContext(), "scene composed", "scene", work.Scene.Order, "seconds", clip.Duration)
	c.Succeed(context)
	context.Add(c.GetOutputParam(), work)
}
