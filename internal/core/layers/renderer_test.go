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

package layers

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

const (
	testWidth  = 270
	testHeight = 480
)

func testStyle() Style {
	s := DefaultStyle()
	s.SubtitleFontSize = 18
	s.SubtitleTop = 40
	s.PanelFontSize = 14
	s.PanelMargin = 30
	return s
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(goregular.TTF, testWidth, testHeight, testStyle())
	require.NoError(t, err)
	return r
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func opaquePixels(img image.Image, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a > 0 {
				n++
			}
		}
	}
	return n
}

func TestNewRenderer_RequiresFont(t *testing.T) {
	_, err := NewRenderer(nil, testWidth, testHeight, testStyle())
	assert.Error(t, err)

	_, err = NewRenderer([]byte("not a font"), testWidth, testHeight, testStyle())
	assert.Error(t, err)

	_, err = NewRenderer(goregular.TTF, 0, testHeight, testStyle())
	assert.Error(t, err)
}

func TestRenderSubtitle(t *testing.T) {
	r := newTestRenderer(t)
	out := filepath.Join(t.TempDir(), "sub.png")
	chunk := model.SubtitleChunk{Lines: []string{"Hello", "world"}, Window: model.Window{Start: 1, End: 2.5}}

	layer := r.RenderSubtitle(chunk, out)

	assert.Equal(t, model.LayerRendered, layer.Status)
	assert.False(t, layer.Degraded())
	require.NotNil(t, layer.Window)
	assert.Equal(t, chunk.Window, *layer.Window)

	img := decodePNG(t, out)
	assert.Equal(t, r.Bounds(), img.Bounds())
	assert.Positive(t, opaquePixels(img, image.Rect(0, 0, testWidth, testHeight/2)))
	assert.Zero(t, opaquePixels(img, image.Rect(0, testHeight/2, testWidth, testHeight)))
}

func TestRenderPanel_BottomAnchored(t *testing.T) {
	r := newTestRenderer(t)
	out := filepath.Join(t.TempDir(), "panel.png")
	rows := model.NewTradeMetrics(map[model.MetricKey]string{model.MetricEntry: "10"}).Rows("ACME")

	layer := r.RenderPanel(rows, out)

	assert.Equal(t, model.LayerRendered, layer.Status)
	assert.Nil(t, layer.Window)
	img := decodePNG(t, out)
	assert.Equal(t, r.Bounds(), img.Bounds())
	assert.Zero(t, opaquePixels(img, image.Rect(0, 0, testWidth, testHeight/4)))
	assert.Positive(t, opaquePixels(img, image.Rect(0, testHeight/2, testWidth, testHeight)))
}

func TestRender_PanicDegradesToBlank(t *testing.T) {
	r := newTestRenderer(t)
	layer := &model.Layer{Path: filepath.Join(t.TempDir(), "x.png")}

	r.render(layer, func(*image.NRGBA) error { panic("glyph table corrupt") })

	assert.True(t, layer.Degraded())
	assert.Contains(t, layer.Reason, "glyph table corrupt")
	img := decodePNG(t, layer.Path)
	assert.Equal(t, r.Bounds(), img.Bounds())
	assert.Zero(t, opaquePixels(img, img.Bounds()))
}

func TestRender_ErrorDegradesToBlank(t *testing.T) {
	r := newTestRenderer(t)
	layer := &model.Layer{Path: filepath.Join(t.TempDir(), "x.png")}

	r.render(layer, func(*image.NRGBA) error { return errors.New("no glyph") })

	assert.Equal(t, model.LayerBlank, layer.Status)
	assert.Equal(t, "no glyph", layer.Reason)
	assert.FileExists(t, layer.Path)
}

func TestRender_UnwritablePathClearsLayer(t *testing.T) {
	r := newTestRenderer(t)
	out := filepath.Join(t.TempDir(), "missing", "sub.png")

	layer := r.RenderSubtitle(model.SubtitleChunk{Lines: []string{"hi"}}, out)

	assert.True(t, layer.Degraded())
	assert.Empty(t, layer.Path)
	assert.NotEmpty(t, layer.Reason)
}
