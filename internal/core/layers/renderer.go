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

// Package layers rasterizes subtitle chunks and the info panel into
// full-frame transparent PNG overlays, and caches the font and logo assets
// they depend on.
package layers

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

// Style holds the visual parameters of the overlays. Sizes are in pixels.
type Style struct {
	SubtitleFontSize float64
	SubtitleTop      int
	SubtitlePadding  int
	LineSpacing      float64
	Outline          int
	BoxAlpha         uint8

	PanelFontSize   float64
	PanelWidthRatio float64
	PanelMargin     int
	PanelPadding    int
	PanelBorder     int
	PanelAlpha      uint8
}

// DefaultStyle is tuned for a 1080x1920 frame.
func DefaultStyle() Style {
	return Style{
		SubtitleFontSize: 56,
		SubtitleTop:      220,
		SubtitlePadding:  24,
		LineSpacing:      1.25,
		Outline:          3,
		BoxAlpha:         140,
		PanelFontSize:    40,
		PanelWidthRatio:  0.82,
		PanelMargin:      160,
		PanelPadding:     28,
		PanelBorder:      3,
		PanelAlpha:       170,
	}
}

var (
	textFill    = color.White
	textOutline = color.Black
	panelBorder = color.NRGBA{R: 255, G: 255, B: 255, A: 200}
)

// Renderer draws overlays for one frame size. It is safe for concurrent use:
// the parsed font is shared and each render creates its own face.
type Renderer struct {
	font   *opentype.Font
	width  int
	height int
	style  Style
}

// NewRenderer parses fontData. A missing or unusable font is an error; there
// is no fallback face.
func NewRenderer(fontData []byte, width, height int, style Style) (*Renderer, error) {
	if len(fontData) == 0 {
		return nil, fmt.Errorf("font data is empty")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	f, err := opentype.Parse(fontData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	r := &Renderer{font: f, width: width, height: height, style: style}
	face, err := r.face(style.SubtitleFontSize)
	if err != nil {
		return nil, err
	}
	return r, face.Close()
}

func (r *Renderer) face(size float64) (font.Face, error) {
	face, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

// Bounds is the frame rectangle every layer is drawn on.
func (r *Renderer) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.width, r.height)
}

// RenderSubtitle writes the chunk's overlay to path. The layer is visible
// during the chunk's window.
func (r *Renderer) RenderSubtitle(chunk model.SubtitleChunk, path string) *model.Layer {
	w := chunk.Window
	layer := &model.Layer{Name: "subtitle", Path: path, Window: &w, Opacity: 1}
	r.render(layer, func(dst *image.NRGBA) error {
		return r.drawSubtitle(dst, chunk.Lines)
	})
	return layer
}

// RenderPanel writes the info panel overlay to path, visible for the whole scene.
func (r *Renderer) RenderPanel(rows []model.MetricRow, path string) *model.Layer {
	layer := &model.Layer{Name: "info-panel", Path: path, Opacity: 1}
	r.render(layer, func(dst *image.NRGBA) error {
		return r.drawPanel(dst, rows)
	})
	return layer
}

// render runs draw and records the outcome on layer. Any failure, including
// a panic inside the rasterizer, leaves a blank frame-sized PNG at layer.Path.
// If even that cannot be written the path is cleared and the layer is skipped
// at composition.
func (r *Renderer) render(layer *model.Layer, drawFn func(dst *image.NRGBA) error) {
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("rasterizer panic: %v", p)
			}
		}()
		dst := image.NewNRGBA(r.Bounds())
		if err := drawFn(dst); err != nil {
			return err
		}
		return writePNG(layer.Path, dst)
	}()
	if err == nil {
		layer.Status = model.LayerRendered
		return
	}

	layer.Status = model.LayerBlank
	layer.Reason = err.Error()
	if werr := writePNG(layer.Path, image.NewNRGBA(r.Bounds())); werr != nil {
		layer.Reason = fmt.Sprintf("%s; blank layer: %v", layer.Reason, werr)
		layer.Path = ""
	}
}

func (r *Renderer) drawSubtitle(dst *image.NRGBA, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	face, err := r.face(r.style.SubtitleFontSize)
	if err != nil {
		return err
	}
	defer face.Close()

	m := face.Metrics()
	ascent := m.Ascent.Ceil()
	lineHeight := int(float64((m.Ascent + m.Descent).Ceil()) * r.style.LineSpacing)

	widths := make([]int, len(lines))
	blockW := 0
	for i, l := range lines {
		widths[i] = font.MeasureString(face, l).Ceil()
		blockW = max(blockW, widths[i])
	}
	blockH := lineHeight * len(lines)

	pad := r.style.SubtitlePadding
	top := r.style.SubtitleTop
	box := image.Rect(
		(r.width-blockW)/2-pad, top-pad,
		(r.width+blockW)/2+pad, top+blockH+pad,
	).Intersect(dst.Bounds())
	draw.Draw(dst, box, image.NewUniform(color.NRGBA{A: r.style.BoxAlpha}), image.Point{}, draw.Over)

	for i, l := range lines {
		x := (r.width - widths[i]) / 2
		y := top + i*lineHeight + ascent
		drawOutlined(dst, face, l, x, y, r.style.Outline)
	}
	return nil
}

func (r *Renderer) drawPanel(dst *image.NRGBA, rows []model.MetricRow) error {
	if len(rows) == 0 {
		return nil
	}
	face, err := r.face(r.style.PanelFontSize)
	if err != nil {
		return err
	}
	defer face.Close()

	m := face.Metrics()
	ascent := m.Ascent.Ceil()
	rowHeight := int(float64((m.Ascent + m.Descent).Ceil()) * r.style.LineSpacing)

	pad := r.style.PanelPadding
	panelW := int(float64(r.width) * r.style.PanelWidthRatio)
	panelH := rowHeight*len(rows) + 2*pad
	x0 := (r.width - panelW) / 2
	y1 := r.height - r.style.PanelMargin
	y0 := y1 - panelH
	box := image.Rect(x0, y0, x0+panelW, y1)

	draw.Draw(dst, box.Intersect(dst.Bounds()), image.NewUniform(color.NRGBA{A: r.style.PanelAlpha}), image.Point{}, draw.Over)
	strokeRect(dst, box, r.style.PanelBorder, panelBorder)

	for i, row := range rows {
		y := y0 + pad + i*rowHeight + ascent
		drawOutlined(dst, face, row.Label, x0+pad, y, 1)
		valueW := font.MeasureString(face, row.Value).Ceil()
		drawOutlined(dst, face, row.Value, x0+panelW-pad-valueW, y, 1)
	}
	return nil
}

// drawOutlined draws s with its baseline origin at (x, y): dark copies offset
// in every direction first, then the light fill on top.
func drawOutlined(dst draw.Image, face font.Face, s string, x, y, outline int) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(textOutline), Face: face}
	for dx := -outline; dx <= outline; dx++ {
		for dy := -outline; dy <= outline; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			d.Dot = fixed.P(x+dx, y+dy)
			d.DrawString(s)
		}
	}
	d.Src = image.NewUniform(textFill)
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}

func strokeRect(dst draw.Image, r image.Rectangle, width int, c color.Color) {
	if width <= 0 {
		return
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
