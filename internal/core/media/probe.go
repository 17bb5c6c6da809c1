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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// ProbeResult is the decoded ffprobe JSON for one file.
type ProbeResult struct {
	Streams []Stream    `json:"streams"`
	Format  ProbeFormat `json:"format"`
}

type Stream struct {
	Index         int    `json:"index"`
	CodecName     string `json:"codec_name"`
	CodecType     string `json:"codec_type"`
	Profile       string `json:"profile"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	PixFmt        string `json:"pix_fmt"`
	RFrameRate    string `json:"r_frame_rate"`
	TimeBase      string `json:"time_base"`
	SampleRate    string `json:"sample_rate"`
	Channels      int    `json:"channels"`
	ChannelLayout string `json:"channel_layout"`
	Duration      string `json:"duration"`
}

type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// DurationSeconds is the container duration, 0 when absent and NaN when
// unparseable.
func (r ProbeResult) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

func (r ProbeResult) first(codecType string) *Stream {
	for i := range r.Streams {
		if strings.EqualFold(r.Streams[i].CodecType, codecType) {
			return &r.Streams[i]
		}
	}
	return nil
}

// StreamProfile is the set of parameters that must match across clips for a
// stream-copy concatenation.
type StreamProfile struct {
	VideoCodec    string
	VideoProfile  string
	Width         int
	Height        int
	PixFmt        string
	FrameRate     string
	VideoTimeBase string
	AudioCodec    string
	SampleRate    string
	Channels      int
	ChannelLayout string
}

// Profile extracts the stream-copy profile. Both a video and an audio stream
// are required.
func (r ProbeResult) Profile() (StreamProfile, error) {
	v, a := r.first("video"), r.first("audio")
	if v == nil || a == nil {
		return StreamProfile{}, fmt.Errorf("expected one video and one audio stream, found %d streams", len(r.Streams))
	}
	return StreamProfile{
		VideoCodec:    v.CodecName,
		VideoProfile:  v.Profile,
		Width:         v.Width,
		Height:        v.Height,
		PixFmt:        v.PixFmt,
		FrameRate:     v.RFrameRate,
		VideoTimeBase: v.TimeBase,
		AudioCodec:    a.CodecName,
		SampleRate:    a.SampleRate,
		Channels:      a.Channels,
		ChannelLayout: a.ChannelLayout,
	}, nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

// Prober inspects media files with ffprobe through a Runner.
type Prober struct {
	Runner Runner
	Binary string
}

// NewProber creates a Prober. An empty binary uses "ffprobe".
func NewProber(runner Runner, binary string) *Prober {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	return &Prober{Runner: runner, Binary: binary}
}

// Inspect runs ffprobe on path and decodes its JSON report.
func (p *Prober) Inspect(ctx context.Context, path string) (ProbeResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ProbeResult{}, errors.New("ffprobe inspect: empty path")
	}
	res, err := p.Runner.Run(ctx, p.Binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(res.StderrTail))
	}
	var out ProbeResult
	if err := json.Unmarshal(res.Stdout, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return out, nil
}

// Duration returns the duration of path in seconds. When probing fails or
// yields no positive duration, fallback is returned with ok=false.
func (p *Prober) Duration(ctx context.Context, path string, fallback float64) (seconds float64, ok bool) {
	res, err := p.Inspect(ctx, path)
	if err != nil {
		slog.WarnContext(ctx, "duration probe failed, using fallback", "path", path, "fallback", fallback, "error", err)
		return fallback, false
	}
	d := res.DurationSeconds()
	if math.IsNaN(d) || d <= 0 {
		slog.WarnContext(ctx, "duration probe returned no duration, using fallback", "path", path, "fallback", fallback, "raw", res.Format.Duration)
		return fallback, false
	}
	return d, true
}
