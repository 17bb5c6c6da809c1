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
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jaycherian/gcp-go-video-render/internal/cloud"
	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

// RenderNotifier publishes the completion notice of a run.
type RenderNotifier struct {
	cor.BaseCommand
	sender cloud.NoticeSender
}

// NewRenderNotifier builds the completion notice step. It reads a
// *model.CompletionNotice from NoticeParam and is skipped when none is set.
func NewRenderNotifier(name string, sender cloud.NoticeSender) *RenderNotifier {
	out := &RenderNotifier{BaseCommand: *cor.NewBaseCommand(name), sender: sender}
	out.InputParamName = NoticeParam
	return out
}

func (s *RenderNotifier) Execute(context cor.Context) {
	notice := context.Get(s.GetInputParam()).(*model.CompletionNotice)

	data, err := json.Marshal(notice)
	if err != nil {
		s.Fail(context, fmt.Errorf("failed to encode completion notice: %w", err))
		return
	}
	attrs := map[string]string{
		"render_id": notice.RenderID,
		"ok":        strconv.FormatBool(notice.OK),
	}
	if err := s.sender.Send(context.GetContext(), data, attrs); err != nil {
		slog.WarnContext(context.GetContext(), "failed to publish completion notice", "render_id", notice.RenderID, "error", err)
		s.Fail(context, fmt.Errorf("completion notice for render %s: %w", notice.RenderID, err))
		return
	}
	s.Succeed(context)
}
