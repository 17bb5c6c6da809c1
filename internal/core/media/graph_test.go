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

package media_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-render/internal/core/media"
)

func TestGraphInputsAreIndexedInOrder(t *testing.T) {
	g := media.NewGraph()
	a := g.AddInput("image", "a.png", "-loop", "1")
	b := g.AddInput("narration", "b.wav")

	assert.Equal(t, "0:v", a.Video().MapArg())
	assert.Equal(t, "1:a", b.Audio().MapArg())
	assert.Equal(t, []string{"-loop", "1", "-i", "a.png", "-i", "b.wav"}, g.InputArgs())

	in, ok := g.Lookup("narration")
	require.True(t, ok)
	assert.Equal(t, "b.wav", in.Path)
}

func TestGraphChainAndOverlay(t *testing.T) {
	g := media.NewGraph()
	img := g.AddInput("image", "a.png")
	sub := g.AddInput("sub", "s.png")

	scaled := g.Chain("scaled", media.VideoPad, []media.Pad{img.Video()}, "scale=10:10", "setsar=1")
	out := g.Overlay("out", scaled, sub.Video(), "0", "0", "gte(t,1.000)*lt(t,2.000)")

	require.NoError(t, g.Err())
	assert.Equal(t,
		"[0:v]scale=10:10,setsar=1[scaled];[scaled][1:v]overlay=0:0:enable='gte(t,1.000)*lt(t,2.000)'[out]",
		g.String())
	assert.Equal(t, "[out]", out.MapArg())
	assert.Equal(t, media.VideoPad, out.Kind())
}

func TestGraphRejectsStructuralMistakes(t *testing.T) {
	tests := []struct {
		name  string
		build func(g *media.Graph)
	}{
		{"duplicate label", func(g *media.Graph) {
			in := g.AddInput("image", "a.png")
			g.Chain("x", media.VideoPad, []media.Pad{in.Video()}, "null")
			g.Chain("x", media.VideoPad, []media.Pad{in.Video()}, "null")
		}},
		{"pad consumed twice", func(g *media.Graph) {
			in := g.AddInput("image", "a.png")
			x := g.Chain("x", media.VideoPad, []media.Pad{in.Video()}, "null")
			g.Chain("y", media.VideoPad, []media.Pad{x}, "null")
			g.Chain("z", media.VideoPad, []media.Pad{x}, "null")
		}},
		{"invalid label", func(g *media.Graph) {
			in := g.AddInput("image", "a.png")
			g.Chain("bad label", media.VideoPad, []media.Pad{in.Video()}, "null")
		}},
		{"no filters", func(g *media.Graph) {
			in := g.AddInput("image", "a.png")
			g.Chain("x", media.VideoPad, []media.Pad{in.Video()})
		}},
		{"audio overlay", func(g *media.Graph) {
			v := g.AddInput("image", "a.png")
			a := g.AddInput("narration", "b.wav")
			g.Overlay("x", v.Video(), a.Audio(), "0", "0", "")
		}},
		{"duplicate input", func(g *media.Graph) {
			g.AddInput("image", "a.png")
			g.AddInput("image", "b.png")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := media.NewGraph()
			tt.build(g)
			assert.Error(t, g.Err())
		})
	}
}

func TestGraphSplit(t *testing.T) {
	g := media.NewGraph()
	in := g.AddInput("image", "a.png")
	pads := g.Split(in.Video(), "one", "two")
	g.Overlay("out", pads[0], pads[1], "0", "0", "")

	require.NoError(t, g.Err())
	assert.Equal(t, "[0:v]split=2[one][two];[one][two]overlay=0:0[out]", g.String())
}
