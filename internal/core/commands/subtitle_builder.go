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
	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
	"github.com/jaycherian/gcp-go-video-render/internal/core/subtitle"
)

// SubtitleBuilder splits the script into chunks and times them against the
// narration duration.
type SubtitleBuilder struct {
	cor.BaseCommand
	chunker *subtitle.Chunker
}

// NewSubtitleBuilder builds the step that splits a scene's script into timed
// subtitle chunks.
func NewSubtitleBuilder(name string, chunker *subtitle.Chunker) *SubtitleBuilder {
	return &SubtitleBuilder{BaseCommand: *cor.NewBaseCommand(name), chunker: chunker}
}

func (c *SubtitleBuilder) IsExecutable(context cor.Context) bool {
	if !c.BaseCommand.IsExecutable(context) {
		return false
	}
	work, ok := context.Get(c.GetInputParam()).(*model.SceneWork)
	return ok && work.Narration != nil
}

func (c *SubtitleBuilder) Execute(context cor.Context) {
	work := context.Get(c.GetInputParam()).(*model.SceneWork)
	work.Chunks = c.chunker.Build(work.Scene.Script, work.Narration.Duration)
	c.Succeed(context)
	context.Add(c.GetOutputParam(), work)
}
