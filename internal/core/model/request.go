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

// Package model defines the data carried through the render workflow: the
// validated request, per-scene intermediate artifacts and the final result.
// Wire payloads are converted into these types exactly once, at ingestion.
package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultSubject   = "UNKNOWN"
	OutputExtension  = ".mp4"
	opDecodeRequest  = "decode-request"
	objectNameSuffix = 6
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Scene is one validated (image, script, metrics) unit. Image may be empty,
// in which case the workflow substitutes a fallback frame.
type Scene struct {
	Order   int
	Script  string
	Image   []byte
	Metrics *TradeMetrics
}

// RenderRequest is the validated input of one render run. Scenes are sorted
// by ascending Order and orders are unique.
type RenderRequest struct {
	ID         string
	SubjectID  string
	Scenes     []*Scene
	Metrics    *TradeMetrics
	OutputName string
	ReturnFile bool
}

// ScenePayload is the wire form of a scene. Both the current field names and
// the names used by the legacy orchestrator are accepted.
type ScenePayload struct {
	Order       int                    `json:"order,omitempty"`
	SceneNumber int                    `json:"scene_number,omitempty"`
	Script      string                 `json:"script"`
	Image       string                 `json:"image,omitempty"`
	ImageBase64 string                 `json:"image_base64,omitempty"`
	Metrics     map[string]interface{} `json:"metrics,omitempty"`
	TradeSetup  map[string]interface{} `json:"trade_setup,omitempty"`
}

// RenderRequestPayload is the wire form of a render request.
type RenderRequestPayload struct {
	SubjectID     string                 `json:"subject_id,omitempty"`
	StockSymbol   string                 `json:"stock_symbol,omitempty"`
	Scenes        []ScenePayload         `json:"scenes,omitempty"`
	Data          []ScenePayload         `json:"data,omitempty"`
	GlobalMetrics map[string]interface{} `json:"global_metrics,omitempty"`
	TradeSetup    map[string]interface{} `json:"trade_setup,omitempty"`
	OutputName    string                 `json:"output_name,omitempty"`
	ReturnFile    bool                   `json:"return_file,omitempty"`
}

// DecodeRenderRequest parses and validates a JSON request body.
func DecodeRenderRequest(data []byte) (*RenderRequest, error) {
	var payload RenderRequestPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, InputErrorf(opDecodeRequest, "malformed request body: %v", err)
	}
	return payload.ToRequest()
}

// ToRequest validates the payload and converts it into a RenderRequest.
func (p *RenderRequestPayload) ToRequest() (*RenderRequest, error) {
	scenes := p.Scenes
	if len(scenes) == 0 {
		scenes = p.Data
	}
	if len(scenes) == 0 {
		return nil, InputErrorf(opDecodeRequest, "data is empty")
	}

	globalRaw := p.GlobalMetrics
	if globalRaw == nil {
		globalRaw = p.TradeSetup
	}
	global, err := ParseTradeMetrics(globalRaw)
	if err != nil {
		return nil, InputErrorf(opDecodeRequest, "global metrics: %v", err)
	}

	subject := strings.TrimSpace(firstNonEmpty(p.SubjectID, p.StockSymbol))
	if subject == "" {
		subject = DefaultSubject
	}

	out := &RenderRequest{
		ID:         uuid.NewString(),
		SubjectID:  subject,
		Metrics:    global,
		OutputName: strings.TrimSpace(p.OutputName),
		ReturnFile: p.ReturnFile,
		Scenes:     make([]*Scene, 0, len(scenes)),
	}

	seen := make(map[int]bool, len(scenes))
	for i, sp := range scenes {
		order := sp.Order
		if order == 0 {
			order = sp.SceneNumber
		}
		if order < 1 {
			return nil, InputErrorf(opDecodeRequest, "scene %d: order must be >= 1, got %d", i, order)
		}
		if seen[order] {
			return nil, InputErrorf(opDecodeRequest, "scene order %d appears more than once", order)
		}
		seen[order] = true

		image, err := decodeImagePayload(firstNonEmpty(sp.Image, sp.ImageBase64))
		if err != nil {
			return nil, InputErrorf(opDecodeRequest, "scene %d: malformed image payload: %v", order, err)
		}

		sceneRaw := sp.Metrics
		if sceneRaw == nil {
			sceneRaw = sp.TradeSetup
		}
		metrics, err := ParseTradeMetrics(sceneRaw)
		if err != nil {
			return nil, InputErrorf(opDecodeRequest, "scene %d metrics: %v", order, err)
		}

		out.Scenes = append(out.Scenes, &Scene{
			Order:   order,
			Script:  sp.Script,
			Image:   image,
			Metrics: metrics,
		})
	}

	sort.Slice(out.Scenes, func(i, j int) bool {
		return out.Scenes[i].Order < out.Scenes[j].Order
	})
	return out, nil
}

// decodeImagePayload accepts raw or data-URL base64, padded or not.
func decodeImagePayload(in string) ([]byte, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return nil, nil
	}
	if strings.HasPrefix(in, "data:") {
		idx := strings.Index(in, ",")
		if idx < 0 {
			return nil, fmt.Errorf("data URL without payload")
		}
		in = in[idx+1:]
	}
	if out, err := base64.StdEncoding.DecodeString(in); err == nil {
		return out, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(in, "="))
}

// SceneMetrics is the panel data for one scene: global values overridden by
// the scene's own. Nil means the scene has no info panel.
func (r *RenderRequest) SceneMetrics(s *Scene) *TradeMetrics {
	return r.Metrics.Merge(s.Metrics)
}

// ObjectName is the file name used for the final asset.
func (r *RenderRequest) ObjectName() string {
	if r.OutputName != "" {
		name := sanitizeName(path.Base(strings.ReplaceAll(r.OutputName, "\\", "/")))
		if name != "" && name != "." {
			if !strings.HasSuffix(strings.ToLower(name), OutputExtension) {
				name += OutputExtension
			}
			return name
		}
	}
	suffix := strings.ReplaceAll(r.ID, "-", "")
	if len(suffix) > objectNameSuffix {
		suffix = suffix[:objectNameSuffix]
	}
	subject := sanitizeName(r.SubjectID)
	if subject == "" {
		subject = DefaultSubject
	}
	return fmt.Sprintf("%s_%s%s", subject, suffix, OutputExtension)
}

func sanitizeName(in string) string {
	return strings.Trim(unsafeNameChars.ReplaceAllString(in, "_"), "_")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
