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

package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// MetricKey is one of the recognized trade metric fields shown on the info panel.
type MetricKey string

const (
	MetricTrend      MetricKey = "trend"
	MetricEntry      MetricKey = "entry"
	MetricStopLoss   MetricKey = "stop_loss"
	MetricTakeProfit MetricKey = "take_profit"
	MetricRiskReward MetricKey = "risk_reward"
	MetricTimeframe  MetricKey = "timeframe"
)

// MetricPlaceholder is rendered for any recognized field that was not supplied.
const MetricPlaceholder = "-"

// MetricField describes one panel row. The order of MetricFields is the row order.
type MetricField struct {
	Key     MetricKey
	Label   string
	Aliases []string
}

var MetricFields = []MetricField{
	{Key: MetricTrend, Label: "Trend", Aliases: []string{"direction", "bias"}},
	{Key: MetricEntry, Label: "Entry", Aliases: []string{"entry_price", "buy"}},
	{Key: MetricStopLoss, Label: "Stop Loss", Aliases: []string{"sl", "stoploss", "stop"}},
	{Key: MetricTakeProfit, Label: "Take Profit", Aliases: []string{"tp", "target"}},
	{Key: MetricRiskReward, Label: "R:R", Aliases: []string{"rr", "risk_reward_ratio"}},
	{Key: MetricTimeframe, Label: "Timeframe", Aliases: []string{"tf", "interval"}},
}

var metricLookup = buildMetricLookup()

func buildMetricLookup() map[string]MetricKey {
	out := make(map[string]MetricKey)
	for _, f := range MetricFields {
		out[string(f.Key)] = f.Key
		for _, a := range f.Aliases {
			out[a] = f.Key
		}
	}
	return out
}

// MetricRow is a resolved label/value pair ready for rendering.
type MetricRow struct {
	Label string
	Value string
}

// TradeMetrics holds the recognized subset of a caller's free-form metrics map.
// A nil *TradeMetrics means "no metrics supplied" and is safe to call.
type TradeMetrics struct {
	values map[MetricKey]string
}

// ParseTradeMetrics validates a decoded JSON object. Unknown keys are dropped,
// scalar values are stringified and anything nested is rejected.
func ParseTradeMetrics(raw map[string]interface{}) (*TradeMetrics, error) {
	if raw == nil {
		return nil, nil
	}
	fold := cases.Fold()
	out := &TradeMetrics{values: make(map[MetricKey]string)}
	for k, v := range raw {
		normalized := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimSpace(fold.String(k)))
		key, ok := metricLookup[normalized]
		if !ok {
			continue
		}
		value, err := scalarString(v)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", k, err)
		}
		if value != "" {
			out.values[key] = value
		}
	}
	return out, nil
}

func scalarString(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// NewTradeMetrics builds metrics from already recognized keys.
func NewTradeMetrics(values map[MetricKey]string) *TradeMetrics {
	out := &TradeMetrics{values: make(map[MetricKey]string, len(values))}
	for k, v := range values {
		out.values[k] = v
	}
	return out
}

// Has reports whether key was supplied.
func (m *TradeMetrics) Has(key MetricKey) bool {
	if m == nil {
		return false
	}
	_, ok := m.values[key]
	return ok
}

// Value returns the supplied value or MetricPlaceholder.
func (m *TradeMetrics) Value(key MetricKey) string {
	if m == nil {
		return MetricPlaceholder
	}
	if v, ok := m.values[key]; ok {
		return v
	}
	return MetricPlaceholder
}

// Merge returns a copy of m with every value in override applied on top.
// The result is nil only when both sides are nil.
func (m *TradeMetrics) Merge(override *TradeMetrics) *TradeMetrics {
	if m == nil && override == nil {
		return nil
	}
	out := &TradeMetrics{values: make(map[MetricKey]string)}
	if m != nil {
		for k, v := range m.values {
			out.values[k] = v
		}
	}
	if override != nil {
		for k, v := range override.values {
			out.values[k] = v
		}
	}
	return out
}

// Rows returns the fixed panel rows, subject first.
func (m *TradeMetrics) Rows(subject string) []MetricRow {
	rows := make([]MetricRow, 0, len(MetricFields)+1)
	if subject == "" {
		subject = MetricPlaceholder
	}
	rows = append(rows, MetricRow{Label: "Symbol", Value: subject})
	for _, f := range MetricFields {
		rows = append(rows, MetricRow{Label: f.Label, Value: m.Value(f.Key)})
	}
	return rows
}

// MarshalJSON exposes the recognized values, mainly for logs and notices.
func (m *TradeMetrics) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(m.values)
}
