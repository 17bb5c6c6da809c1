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
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
)

// GetExampleImage returns a small PNG gradient usable as a scene image.
func GetExampleImage(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(255 * x / max(width-1, 1)),
				G: uint8(255 * y / max(height-1, 1)),
				B: 96,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// GetExampleRequestPayload creates a two-scene request in the wire format,
// scenes deliberately out of order. It is printed by `render --example` and
// used as a fixture.
func GetExampleRequestPayload() *RenderRequestPayload {
	img := base64.StdEncoding.EncodeToString(GetExampleImage(64, 36))
	return &RenderRequestPayload{
		SubjectID: "ACME",
		GlobalMetrics: map[string]interface{}{
			"trend":     "Bullish",
			"entry":     "101.5",
			"timeframe": "4H",
		},
		Scenes: []ScenePayload{
			{
				Order:  2,
				Script: "Stop loss sits just under the recent swing low, with the first target at the prior high.",
				Image:  img,
				Metrics: map[string]interface{}{
					"stop_loss":   "98.2",
					"take_profit": "110",
				},
			},
			{
				Order:  1,
				Script: "ACME broke out of a four week range on rising volume.",
				Image:  img,
			},
		},
	}
}
