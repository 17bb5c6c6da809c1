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

package narration

import (
	"context"
	"math"

	"github.com/rivo/uniseg"
)

// SilenceSynthesizer produces silent audio whose length grows with the text.
// It stands in for a speech service in local runs and tests.
type SilenceSynthesizer struct {
	PerGrapheme float64 // seconds
	Minimum     float64 // seconds
}

func NewSilenceSynthesizer() *SilenceSynthesizer {
	return &SilenceSynthesizer{PerGrapheme: 0.075, Minimum: 1.0}
}

func (s *SilenceSynthesizer) Name() string { return "silence" }

// Length is the duration produced for text.
func (s *SilenceSynthesizer) Length(text string) float64 {
	return math.Max(s.Minimum, float64(uniseg.GraphemeClusterCount(text))*s.PerGrapheme)
}

func (s *SilenceSynthesizer) Synthesize(ctx context.Context, text, _ string) (*Speech, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wav, err := SilentWAV(s.Length(text), DefaultSampleRate)
	if err != nil {
		return nil, err
	}
	return &Speech{Audio: wav, Extension: ".wav"}, nil
}
