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

package media

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

const opCompose = "compose-scene"

// Profile is the single encode profile shared by every scene clip. Clips
// encoded with the same Profile can be concatenated without re-encoding.
type Profile struct {
	Width        int
	Height       int
	FPS          int
	VideoCodec   string
	Preset       string
	CRF          int
	PixFmt       string
	AudioCodec   string
	AudioBitrate string
	SampleRate   int
	Channels     int
}

// DefaultProfile returns the encode profile used for every scene clip.
//
// Inputs:
//   - width, height: The output frame size in pixels. Both must be even.
//   - fps: The output frame rate.
//
// Outputs:
//   - Profile: H.264 (libx264, veryfast, CRF 23, yuv420p) with AAC stereo
//     audio at 48 kHz and 128k.
func DefaultProfile(width, height, fps int) Profile {
	return Profile{
		Width:        width,
		Height:       height,
		FPS:          fps,
		VideoCodec:   "libx264",
		Preset:       "veryfast",
		CRF:          23,
		PixFmt:       "yuv420p",
		AudioCodec:   "aac",
		AudioBitrate: "128k",
		SampleRate:   48000,
		Channels:     2,
	}
}

// OutputArgs are the codec flags of the profile.
func (p Profile) OutputArgs() []string {
	return []string{
		"-c:v", p.VideoCodec,
		"-preset", p.Preset,
		"-crf", strconv.Itoa(p.CRF),
		"-pix_fmt", p.PixFmt,
		"-r", strconv.Itoa(p.FPS),
		"-c:a", p.AudioCodec,
		"-b:a", p.AudioBitrate,
		"-ar", strconv.Itoa(p.SampleRate),
		"-ac", strconv.Itoa(p.Channels),
		"-movflags", "+faststart",
	}
}

// Logo places a watermark in the top-right corner.
type Logo struct {
	Path       string
	WidthRatio float64
	Margin     int
	Opacity    float64
}

// SceneSpec is everything the composer needs for one clip. Panel, Logo and
// Subtitles are optional; layers without a path are skipped.
type SceneSpec struct {
	Image     string
	Audio     string
	Duration  float64
	Panel     *model.Layer
	Subtitles []*model.Layer
	Logo      *Logo
	Output    string
}

// Composer turns one scene into one clip with the external encoder.
type Composer struct {
	Runner     Runner
	Binary     string
	Profile    Profile
	BlurRadius int
}

// NewComposer creates a Composer.
//
// Inputs:
//   - runner: Executes the encoder. ExecRunner in production, a fake in tests.
//   - binary: The encoder executable. Empty uses "ffmpeg" from PATH.
//   - profile: The encode profile shared by every clip.
//
// Outputs:
//   - *Composer: A composer with the default background blur radius of 20.
func NewComposer(runner Runner, binary string, profile Profile) *Composer {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &Composer{Runner: runner, Binary: binary, Profile: profile, BlurRadius: 20}
}

// Graph builds the compositing graph for spec and returns it with the name
// of its final video pad.
//
// Layer order, bottom to top: blurred fill background, fitted foreground,
// info panel, time-gated subtitles, logo.
func (c *Composer) Graph(spec SceneSpec) (*Graph, Pad, Pad) {
	p := c.Profile
	g := NewGraph()
	fps := strconv.Itoa(p.FPS)

	image := g.AddInput("image", spec.Image, "-loop", "1", "-framerate", fps)
	audio := g.AddInput("narration", spec.Audio)

	src := g.Split(image.Video(), "bgsrc", "fgsrc")
	bg := g.Chain("bg", VideoPad, src[:1],
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", p.Width, p.Height),
		fmt.Sprintf("crop=%d:%d", p.Width, p.Height),
		fmt.Sprintf("boxblur=%d:1", c.BlurRadius),
		"setsar=1",
	)
	fg := g.Chain("fg", VideoPad, src[1:],
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", p.Width, p.Height),
		"setsar=1",
	)
	cur := g.Overlay("base", bg, fg, "(W-w)/2", "(H-h)/2", "")

	if spec.Panel != nil && spec.Panel.Path != "" {
		panel := g.AddInput("panel", spec.Panel.Path)
		cur = g.Overlay("with_panel", cur, panel.Video(), "0", "0", "")
	}

	n := 0
	for _, sub := range spec.Subtitles {
		if sub == nil || sub.Path == "" {
			continue
		}
		in := g.AddInput(fmt.Sprintf("subtitle_%d", n), sub.Path)
		enable := ""
		if sub.Window != nil {
			enable = WindowExpr(*sub.Window)
		}
		cur = g.Overlay(fmt.Sprintf("sub_%d", n), cur, in.Video(), "0", "0", enable)
		n++
	}

	if spec.Logo != nil && spec.Logo.Path != "" {
		logo := g.AddInput("logo", spec.Logo.Path)
		width := int(float64(p.Width) * spec.Logo.WidthRatio)
		scaled := g.Chain("logo_scaled", VideoPad, []Pad{logo.Video()},
			fmt.Sprintf("scale=%d:-1", max(width, 2)),
			"format=rgba",
			fmt.Sprintf("colorchannelmixer=aa=%.2f", spec.Logo.Opacity),
		)
		m := strconv.Itoa(spec.Logo.Margin)
		cur = g.Overlay("with_logo", cur, scaled, "W-w-"+m, m, "")
	}

	vout := g.Chain("vout", VideoPad, []Pad{cur}, "fps="+fps, "format="+p.PixFmt)
	return g, vout, audio.Audio()
}

// WindowExpr is the half-open gate gte(t,start)*lt(t,end). Adjacent windows
// sharing a boundary are never visible on the same frame.
func WindowExpr(w model.Window) string {
	return fmt.Sprintf("gte(t,%.3f)*lt(t,%.3f)", w.Start, w.End)
}

// Args is the full encoder command line for spec.
func (c *Composer) Args(spec SceneSpec) ([]string, error) {
	if spec.Duration <= 0 {
		return nil, fmt.Errorf("scene duration must be positive, got %.3f", spec.Duration)
	}
	g, vout, aout := c.Graph(spec)
	if err := g.Err(); err != nil {
		return nil, err
	}
	args := []string{"-y", "-hide_banner", "-nostdin"}
	args = append(args, g.InputArgs()...)
	args = append(args,
		"-filter_complex", g.String(),
		"-map", vout.MapArg(),
		"-map", aout.MapArg(),
	)
	args = append(args, c.Profile.OutputArgs()...)
	args = append(args, "-t", fmt.Sprintf("%.3f", spec.Duration), "-shortest", spec.Output)
	return args, nil
}

// Compose encodes the clip. A non-zero exit is a compose error carrying the
// encoder's stderr tail as its diagnostic.
func (c *Composer) Compose(ctx context.Context, order int, spec SceneSpec) (*model.SceneClip, error) {
	args, err := c.Args(spec)
	if err != nil {
		return nil, model.NewError(model.KindCompose, opCompose, err)
	}
	res, err := c.Runner.Run(ctx, c.Binary, args...)
	if err != nil {
		e := model.NewError(model.KindCompose, opCompose, fmt.Errorf("scene %d: %w", order, err))
		e.Diagnostic = res.StderrTail
		return nil, e
	}
	if info, err := os.Stat(spec.Output); err != nil || info.Size() == 0 {
		e := model.NewError(model.KindCompose, opCompose, fmt.Errorf("scene %d: encoder produced no output", order))
		e.Diagnostic = res.StderrTail
		return nil, e
	}
	return &model.SceneClip{Order: order, Path: spec.Output, Duration: spec.Duration}, nil
}
