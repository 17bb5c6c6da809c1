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

package model_test

import (
	"errors"
	"testing"

	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTradeMetrics(t *testing.T) {
	m, err := model.ParseTradeMetrics(map[string]interface{}{
		"TREND":       "Bearish",
		"stop-loss":   42.0,
		"risk reward": true,
		"unknown_key": "ignored",
		"tf":          nil,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearish", m.Value(model.MetricTrend))
	assert.Equal(t, "42", m.Value(model.MetricStopLoss))
	assert.Equal(t, "true", m.Value(model.MetricRiskReward))
	assert.False(t, m.Has(model.MetricTimeframe))
	assert.Equal(t, model.MetricPlaceholder, m.Value(model.MetricTimeframe))
}

func TestParseTradeMetrics_Nil(t *testing.T) {
	m, err := model.ParseTradeMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, model.MetricPlaceholder, m.Value(model.MetricEntry))
}

func TestRows_PartialMetricsUsePlaceholder(t *testing.T) {
	m := model.NewTradeMetrics(map[model.MetricKey]string{model.MetricEntry: "10"})
	rows := m.Rows("ACME")

	require.Len(t, rows, len(model.MetricFields)+1)
	assert.Equal(t, model.MetricRow{Label: "Symbol", Value: "ACME"}, rows[0])
	for _, r := range rows[1:] {
		if r.Label == "Entry" {
			assert.Equal(t, "10", r.Value)
			continue
		}
		assert.Equal(t, model.MetricPlaceholder, r.Value, r.Label)
	}
}

func TestMerge(t *testing.T) {
	global := model.NewTradeMetrics(map[model.MetricKey]string{model.MetricTrend: "Up", model.MetricEntry: "1"})
	scene := model.NewTradeMetrics(map[model.MetricKey]string{model.MetricEntry: "2"})

	merged := global.Merge(scene)
	assert.Equal(t, "Up", merged.Value(model.MetricTrend))
	assert.Equal(t, "2", merged.Value(model.MetricEntry))
	assert.Equal(t, "1", global.Value(model.MetricEntry))

	var none *model.TradeMetrics
	assert.Nil(t, none.Merge(nil))
	assert.Equal(t, "2", none.Merge(scene).Value(model.MetricEntry))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, model.ErrorKind(""), model.KindOf(nil))
	assert.Equal(t, model.KindInternal, model.KindOf(errors.New("boom")))

	inner := &model.Error{Kind: model.KindCompose, Op: "encode", Err: errors.New("exit 1"), Diagnostic: "stderr tail"}
	wrapped := errors.Join(errors.New("scene 2"), inner)
	assert.Equal(t, model.KindCompose, model.KindOf(wrapped))
	assert.Equal(t, "stderr tail", model.DiagnosticOf(wrapped))
	assert.NotContains(t, inner.Error(), "stderr tail")
}

func TestNewRenderRecord(t *testing.T) {
	req := &model.RenderRequest{ID: "id-1", SubjectID: "S", Scenes: []*model.Scene{{Order: 1}}}

	ok := model.NewRenderRecord(req, &model.RenderResult{ObjectName: "S.mp4", Duration: 4}, nil)
	assert.Equal(t, model.RenderStatusSucceeded, ok.Status)
	assert.Equal(t, 1, ok.SceneCount)
	assert.Equal(t, "S.mp4", ok.ObjectName)

	failed := model.NewRenderRecord(req, nil, model.NewError(model.KindPublish, "upload", errors.New("denied")))
	assert.Equal(t, model.RenderStatusFailed, failed.Status)
	assert.Equal(t, string(model.KindPublish), failed.ErrorKind)

	notice := model.NewCompletionNotice(failed, errors.New("denied"))
	assert.False(t, notice.OK)
	assert.Equal(t, "denied", notice.Error)
}
