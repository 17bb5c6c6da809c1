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
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/media"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

const FinalVideoName = "final.mp4"

// SceneAssembler concatenates the scene clips, in order and without
// re-encoding, into the run's final video.
type SceneAssembler struct {
	cor.BaseCommand
	assembler *media.Assembler
}

// NewSceneAssembler builds the step that joins the scene clips.
//
// Inputs:
//   - name: The command name.
//   - assembler: Concatenates the clips and probes the joined file.
//
// Outputs:
//   - *SceneAssembler: Reads ClipsParam and writes the final file under
//     FinalVideoParam.
func NewSceneAssembler(name string, assembler *media.Assembler) *SceneAssembler {
	out := &SceneAssembler{BaseCommand: *cor.NewBaseCommand(name), assembler: assembler}
	out.InputParamName = ClipsParam
	out.OutputParamName = FinalVideoParam
	return out
}

func (c *SceneAssembler) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(RenderDirParam) != nil
}

func (c *SceneAssembler) Execute(context cor.Context) {
	clips := context.Get(c.GetInputParam()).([]*model.SceneClip)
	out := filepath.Join(context.Get(RenderDirParam).(string), FinalVideoName)

	total, err := c.assembler.Assemble(context.GetContext(), clips, out)
	if err != nil {
		c.Fail(context, err)
		return
	}

	slog.InfoContext(context.GetContext(), "scenes assembled", "clips", len(clips), "seconds", total)
	c.Succeed(context)
	context.Add(DurationParam, total)
	context.Add(c.GetOutputParam(), out)
}

// MoveFile moves sourcePath to destPath, copying when a rename is not
// possible (for example across file systems).
func MoveFile(sourcePath, destPath string) error {
	if err := os.Rename(sourcePath, destPath); err == nil {
		return nil
	}

	inputFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("could not open source file: %w", err)
	}
	defer inputFile.Close()

	outputFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("could not open dest file: %w", err)
	}
	if _, err = io.Copy(outputFile, inputFile); err != nil {
		outputFile.Close()
		return fmt.Errorf("could not copy to dest from source: %w", err)
	}
	if err = outputFile.Close(); err != nil {
		return fmt.Errorf("could not close dest file: %w", err)
	}

	inputFile.Close()
	if err = os.Remove(sourcePath); err != nil {
		return fmt.Errorf("could not remove source file: %w", err)
	}
	return nil
}
