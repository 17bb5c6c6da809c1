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
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// SpeechModel is satisfied by cloud.QuotaAwareSpeechModel.
type SpeechModel interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiSynthesizer asks a speech-capable Gemini model for audio and wraps
// the returned PCM as WAV.
type GeminiSynthesizer struct {
	Model        SpeechModel
	LanguageCode string
}

func NewGeminiSynthesizer(model SpeechModel, languageCode string) *GeminiSynthesizer {
	return &GeminiSynthesizer{Model: model, LanguageCode: languageCode}
}

func (g *GeminiSynthesizer) Name() string { return "gemini" }

// SpeechConfig builds the request config for one voice.
func (g *GeminiSynthesizer) SpeechConfig(voice string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			LanguageCode: g.LanguageCode,
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
}

func (g *GeminiSynthesizer) Synthesize(ctx context.Context, text, voice string) (*Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("nothing to synthesize")
	}
	resp, err := g.Model.GenerateContent(ctx, genai.Text(text), g.SpeechConfig(voice))
	if err != nil {
		return nil, err
	}
	blob, err := audioBlob(resp)
	if err != nil {
		return nil, err
	}
	rate, channels := pcmFormat(blob.MIMEType)
	slog.DebugContext(ctx, "speech synthesized", "voice", voice, "mime_type", blob.MIMEType, "bytes", len(blob.Data))
	return &Speech{Audio: PCMToWAV(blob.Data, rate, channels), Extension: ".wav"}, nil
}

func audioBlob(resp *genai.GenerateContentResponse) (*genai.Blob, error) {
	if resp == nil {
		return nil, errors.New("empty speech response")
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData, nil
			}
		}
	}
	return nil, fmt.Errorf("speech response carried no audio")
}

// pcmFormat reads rate and channels from a type such as
// "audio/L16;codec=pcm;rate=24000".
func pcmFormat(mimeType string) (rate, channels int) {
	rate, channels = DefaultSampleRate, 1
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return rate, channels
	}
	if v, err := strconv.Atoi(params["rate"]); err == nil && v > 0 {
		rate = v
	}
	if v, err := strconv.Atoi(params["channels"]); err == nil && v > 0 {
		channels = v
	}
	return rate, channels
}
