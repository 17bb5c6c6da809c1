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
	"context"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

// RecordInserter is satisfied by *bigquery.Inserter.
type RecordInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// RenderPersistToBigQuery writes the run's audit row.
type RenderPersistToBigQuery struct {
	cor.BaseCommand
	inserter RecordInserter
}

// NewRenderPersistToBigQuery builds the audit step.
//
// Inputs:
//   - name: The command name.
//   - inserter: Writes rows to the audit table, normally a *bigquery.Inserter.
//
// Outputs:
//   - *RenderPersistToBigQuery: Reads a *model.RenderRecord from RecordParam.
func NewRenderPersistToBigQuery(name string, inserter RecordInserter) *RenderPersistToBigQuery {
	out := &RenderPersistToBigQuery{BaseCommand: *cor.NewBaseCommand(name), inserter: inserter}
	out.InputParamName = RecordParam
	return out
}

func (s *RenderPersistToBigQuery) Execute(context cor.Context) {
	record := context.Get(s.GetInputParam()).(*model.RenderRecord)

	if err := s.inserter.Put(context.GetContext(), record); err != nil {
		slog.WarnContext(context.GetContext(), "failed to write render record", "render_id", record.RenderID, "error", err)
		s.Fail(context, fmt.Errorf("bigquery insert failed for render %s: %w", record.RenderID, err))
		return
	}

	s.Succeed(context)
	slog.DebugContext(context.GetContext(), "render record persisted", "render_id", record.RenderID, "status", record.Status)
}
