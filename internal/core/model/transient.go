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
	"strings"

	"github.com/rivo/uniseg"
)

// These objects live only for the duration of one render run.

// Window is a half-open display interval [Start, End) in seconds.
type Window struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Length returns End - Start.
func (w Window) Length() float64 {
	return w.End - w.Start
}

// SubtitleChunk is a group of subtitle lines shown together.
type SubtitleChunk struct {
	Lines  []string `json:"lines"`
	Window Window   `json:"window"`
}

// Text joins the lines with structural newlines.
func (c *SubtitleChunk) Text() string {
	return strings.Join(c.Lines, "\n")
}

// CharCount is the number of visible characters (grapheme clusters),
// excluding the newlines that separate lines.
func (c *SubtitleChunk) CharCount() int {
	n := 0
	for _, l := range c.Lines {
		n += uniseg.GraphemeClusterCount(l)
	}
	return n
}

// LayerStatus tells whether a layer holds real content or a blank substitute.
type LayerStatus string

const (
	LayerRendered LayerStatus = "rendered"
	LayerBlank    LayerStatus = "blank"
)

// Layer is a rendered full-frame transparent bitmap plus how to composite it.
// A nil Window means the layer is visible for the whole scene.
type Layer struct {
	Name    string
	Path    string
	Window  *Window
	Opacity float64
	Status  LayerStatus
	Reason  string
}

// Degraded reports whether rendering fell back to a blank layer.
func (l *Layer) Degraded() bool {
	return l.Status == LayerBlank
}

// SceneImage is the on-disk image a scene composes from, after validation.
type SceneImage struct {
	Path       string
	Substitute bool   // true when taken from an earlier scene or a black frame
	Reason     string // why a substitute was used
}

// Narration is the synthesized audio for one scene.
type Narration struct {
	Path     string
	Duration float64
	Probed   bool // false when Duration is the configured fallback
}

// SceneWork is the per-scene state passed through the scene sub-chain.
type SceneWork struct {
	Scene     *Scene
	Subject   string
	Metrics   *TradeMetrics
	Dir       string
	Image     *SceneImage
	Narration *Narration
	Chunks    []SubtitleChunk
	Subtitles []*Layer
	Panel     *Layer
	Clip      *SceneClip
}

// SceneClip is one encoded scene.
type SceneClip struct {
	Order    int
	Path     string
	Duration float64
}

// RenderResult is what a successful run hands back to its caller.
// LocalPath is set only when the caller asked to keep the file and then
// owns its removal.
type RenderResult struct {
	RenderID     string  `json:"render_id"`
	SubjectID    string  `json:"subject_id"`
	ObjectName   string  `json:"object_name"`
	AssetAddress string  `json:"asset_address,omitempty"`
	SceneCount   int     `json:"scene_count"`
	Duration     float64 `json:"duration_seconds"`
	LocalPath    string  `json:"-"`
}
