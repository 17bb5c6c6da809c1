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

	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

// RenderRequestReader is the entry point of the render workflow. It accepts
// a raw JSON body ([]byte or string) from a Pub/Sub message or the CLI, or
// an already decoded *model.RenderRequest from the HTTP layer, and stores
// the validated request under RequestParam. A queued render (QueuedParam
// set) cannot ask for return_file because nobody would collect the file.
type RenderRequestReader struct {
	cor.BaseCommand
}

// NewRenderRequestReader builds the first step of the render chain. It reads
// cor.CtxIn and writes the request under RequestParam and cor.CtxOut.
func NewRenderRequestReader(name string) *RenderRequestReader {
	return &RenderRequestReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *RenderRequestReader) Execute(context cor.Context) {
	var (
		req *model.RenderRequest
		err error
	)
	switch in := context.Get(c.GetInputParam()).(type) {
	case *model.RenderRequest:
		req = in
	case []byte:
		req, err = model.DecodeRenderRequest(in)
	case string:
		req, err = model.DecodeRenderRequest([]byte(in))
	default:
		err = model.InputErrorf("decode-request", "unsupported request input %T", in)
	}
	if err == nil && len(req.Scenes) == 0 {
		err = model.InputErrorf("decode-request", "data is empty")
	}
	if queued, _ := context.Get(QueuedParam).(bool); err == nil && queued && req.ReturnFile {
		err = model.InputErrorf("decode-request", "return_file is not supported for queued renders")
	}
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to read render request: %w", err))
		return
	}

	slog.InfoContext(context.GetContext(), "render request accepted",
		"render_id", req.ID, "subject_id", req.SubjectID, "scenes", len(req.Scenes), "return_file", req.ReturnFile)
	c.Succeed(context)
	context.Add(RequestParam, req)
	context.Add(cor.CtxOut, req)
}
