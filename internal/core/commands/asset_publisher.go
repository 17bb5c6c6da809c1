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
	"errors"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-video-render/internal/cloud"
	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

const opPublish = "publish"

// ErrStorageNotConfigured is returned when a render must be published but no
// storage backend is set up.
var ErrStorageNotConfigured = errors.New("storage not configured")

// AssetPublisher hands the final video to its caller. Normally the file is
// uploaded once (no retry) and its address returned. When the request asks
// for the file itself, the upload is skipped and the file is moved out of
// the scratch directory; the caller then owns it.
type AssetPublisher struct {
	cor.BaseCommand
	publisher cloud.Publisher // nil when storage is not configured
	keepDir   string
}

// NewAssetPublisher builds the final step of the render chain.
//
// Inputs:
//   - name: The command name, used for its span and metric names.
//   - publisher: The storage backend that receives the video. nil means storage
//     is not configured; only return_file requests can then succeed.
//   - keepDir: The directory a return_file video is moved to. Empty uses the
//     OS temporary directory.
//
// Outputs:
//   - *AssetPublisher: Reads FinalVideoParam and writes a *model.RenderResult
//     under ResultParam.
func NewAssetPublisher(name string, publisher cloud.Publisher, keepDir string) *AssetPublisher {
	out := &AssetPublisher{BaseCommand: *cor.NewBaseCommand(name), publisher: publisher, keepDir: keepDir}
	out.InputParamName = FinalVideoParam
	out.OutputParamName = ResultParam
	return out
}

func (c *AssetPublisher) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(RequestParam) != nil
}

func (c *AssetPublisher) Execute(context cor.Context) {
	ctx := context.GetContext()
	path := context.Get(c.GetInputParam()).(string)
	req := context.Get(RequestParam).(*model.RenderRequest)
	duration, _ := context.Get(DurationParam).(float64)

	result := &model.RenderResult{
		RenderID:   req.ID,
		SubjectID:  req.SubjectID,
		ObjectName: req.ObjectName(),
		SceneCount: len(req.Scenes),
		Duration:   duration,
	}

	switch {
	case req.ReturnFile:
		kept, err := c.keep(path)
		if err != nil {
			c.Fail(context, model.NewError(model.KindInternal, "keep-asset", err))
			return
		}
		result.LocalPath = kept
		slog.InfoContext(ctx, "render kept for caller", "render_id", req.ID, "object_name", result.ObjectName)
	case c.publisher == nil:
		c.Fail(context, model.NewError(model.KindPublish, opPublish, ErrStorageNotConfigured))
		return
	default:
		address, err := c.publisher.Publish(ctx, path, result.ObjectName)
		if err != nil {
			c.Fail(context, model.NewError(model.KindPublish, opPublish, err))
			return
		}
		result.AssetAddress = address
		slog.InfoContext(ctx, "render published", "render_id", req.ID, "object_name", result.ObjectName)
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), result)
	context.Add(cor.CtxOut, result)
}

// keep moves path out of the scratch directory so it survives cleanup.
func (c *AssetPublisher) keep(path string) (string, error) {
	f, err := os.CreateTemp(c.keepDir, "render_*"+model.OutputExtension)
	if err != nil {
		return "", err
	}
	dest := f.Name()
	f.Close()
	if err := MoveFile(path, dest); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, nil
}
