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
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

// SceneFanOut runs the per-scene chain (narrate, subtitles, layers, compose)
// for every scene, with at most numberOfWorkers scenes in flight. With one
// worker scenes run strictly in ascending order. The first scene failure
// cancels the scenes still running and fails the command.
type SceneFanOut struct {
	cor.BaseCommand
	sceneChain      cor.Chain
	numberOfWorkers int
}

// NewSceneFanOut builds the step that renders every scene.
//
// Inputs:
//   - name: The command name.
//   - sceneChain: The chain run once per scene with its *model.SceneWork as input.
//   - numberOfWorkers: The number of scenes rendered at once. Values below one
//     are raised to one.
//
// Outputs:
//   - *SceneFanOut: Reads ScenesParam and writes the clips, in scene order,
//     under ClipsParam.
func NewSceneFanOut(name string, sceneChain cor.Chain, numberOfWorkers int) *SceneFanOut {
	out := &SceneFanOut{
		BaseCommand:     *cor.NewBaseCommand(name),
		sceneChain:      sceneChain,
		numberOfWorkers: max(numberOfWorkers, 1),
	}
	out.InputParamName = ScenesParam
	out.OutputParamName = ClipsParam
	return out
}

func (s *SceneFanOut) Execute(context cor.Context) {
	work := context.Get(s.GetInputParam()).([]*model.SceneWork)

	group, groupCtx := errgroup.WithContext(context.GetContext())
	group.SetLimit(s.numberOfWorkers)

	for _, w := range work {
		group.Go(func() error {
			sceneCtx, span := s.Tracer.Start(groupCtx, fmt.Sprintf("%s_scene_%d", s.GetName(), w.Scene.Order))
			defer span.End()
			span.SetAttributes(attribute.Int("order", w.Scene.Order))

			sub := cor.NewBaseContext()
			sub.SetContext(sceneCtx)
			sub.Add(cor.CtxIn, w)
			defer sub.Close()

			s.sceneChain.Execute(sub)

			if err := sub.FirstError(); err != nil {
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			if w.Clip == nil {
				err := model.NewError(model.KindCompose, "compose-scene", fmt.Errorf("scene %d produced no clip", w.Scene.Order))
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			span.SetStatus(codes.Ok, "scene complete")
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		s.Fail(context, err)
		return
	}

	clips := make([]*model.SceneClip, 0, len(work))
	for _, w := range work {
		clips = append(clips, w.Clip)
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].Order < clips[j].Order })

	s.Succeed(context)
	context.Add(s.GetOutputParam(), clips)
}
