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
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

const blackFrameName = "black.png"

// SceneImageResolver writes every scene's image to its scratch directory.
// Scenes run in ascending order so that a scene without a usable image can
// reuse the previous scene's; the first such scene gets a black frame.
type SceneImageResolver struct {
	cor.BaseCommand
	width  int
	height int
}

// NewSceneImageResolver builds the step that gives every scene a usable
// background image.
//
// Inputs:
//   - name: The command name.
//   - width, height: The size of the black frame used when no earlier scene
//     has an image to reuse.
//
// Outputs:
//   - *SceneImageResolver: Reads and rewrites ScenesParam.
func NewSceneImageResolver(name string, width, height int) *SceneImageResolver {
	out := &SceneImageResolver{BaseCommand: *cor.NewBaseCommand(name), width: width, height: height}
	out.InputParamName = ScenesParam
	out.OutputParamName = ScenesParam
	return out
}

// SniffImage returns the file extension for data when it is an image the
// encoder can loop as a still frame.
//
// The whole image is decoded, not just its header, so a truncated or
// corrupt body is reported here and the scene falls back to a substitute
// instead of failing later in the encoder.
//
// Inputs:
//   - data: The raw image bytes from the request.
//
// Outputs:
//   - string: The extension matching the detected format, e.g. ".png".
//   - error: Non-nil when data is empty, not an image, or does not decode.
func SniffImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("no image supplied")
	}
	kind, err := filetype.Match(data)
	if err != nil {
		return "", err
	}
	if kind == filetype.Unknown || !filetype.IsImage(data) {
		return "", fmt.Errorf("unrecognised image data (%d bytes)", len(data))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("undecodable %s image: %w", kind.Extension, err)
	}
	if img.Bounds().Empty() {
		return "", fmt.Errorf("empty %s image", kind.Extension)
	}
	return "." + kind.Extension, nil
}

func (c *SceneImageResolver) Execute(context cor.Context) {
	work := context.Get(c.GetInputParam()).([]*model.SceneWork)
	ctx := context.GetContext()

	var previous string
	for _, w := range work {
		ext, err := SniffImage(w.Scene.Image)
		if err == nil {
			path := filepath.Join(w.Dir, "image"+ext)
			if err := os.WriteFile(path, w.Scene.Image, 0o644); err != nil {
				c.Fail(context, model.NewError(model.KindInternal, "write-scene-image", err))
				return
			}
			w.Image = &model.SceneImage{Path: path}
			previous = path
			continue
		}

		reason := err.Error()
		if previous == "" {
			black, err := c.blackFrame(filepath.Dir(w.Dir))
			if err != nil {
				c.Fail(context, model.NewError(model.KindInternal, "write-scene-image", err))
				return
			}
			previous = black
			reason += "; using black frame"
		} else {
			reason += "; reusing previous scene image"
		}
		slog.WarnContext(ctx, "scene image substituted", "scene", w.Scene.Order, "reason", reason)
		w.Image = &model.SceneImage{Path: previous, Substitute: true, Reason: reason}
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), work)
}

func (c *SceneImageResolver) blackFrame(dir string) (string, error) {
	path := filepath.Join(dir, blackFrameName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, max(c.width, 2), max(c.height, 2)))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+3] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, buf.Bytes(), 0o644)
}
