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

package narration_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
	"github.com/jaycherian/gcp-go-video-render/internal/core/narration"
)

type fakeModel struct {
	resp   *genai.GenerateContentResponse
	err    error
	config *genai.GenerateContentConfig
	text   string
}

func (f *fakeModel) GenerateContent(_ context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.text = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

type fakeProber struct {
	seconds float64
	ok      bool
	calls   int
}

func (f *fakeProber) Duration(_ context.Context, _ string, fallback float64) (float64, bool) {
	f.calls++
	if !f.ok {
		return fallback, false
	}
	return f.seconds, true
}

type failingSynth struct{}

func (failingSynth) Name() string { return "failing" }
func (failingSynth) Synthesize(context.Context, string, string) (*narration.Speech, error) {
	return nil, errors.New("quota exhausted")
}

func audioResponse(mimeType string, pcm []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{
				InlineData: &genai.Blob{MIMEType: mimeType, Data: pcm},
			}}},
		}},
	}
}

func TestPCMToWAVHeader(t *testing.T) {
	pcm := make([]byte, 48000) // 1s of 24kHz mono 16-bit
	wav := narration.PCMToWAV(pcm, 24000, 1)

	assert.Equal(t, 44+len(pcm), len(wav))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	d, err := narration.WAVDuration(wav)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)
}

func TestSilentWAV(t *testing.T) {
	wav, err := narration.SilentWAV(3.0, 24000)
	require.NoError(t, err)
	d, err := narration.WAVDuration(wav)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, d, 1e-4)

	_, err = narration.SilentWAV(0, 24000)
	assert.Error(t, err)
}

func TestGeminiSynthesizer(t *testing.T) {
	fm := &fakeModel{resp: audioResponse("audio/L16;codec=pcm;rate=16000", make([]byte, 32000))}
	g := narration.NewGeminiSynthesizer(fm, "th-TH")

	speech, err := g.Synthesize(context.Background(), "สวัสดีครับ", "Kore")
	require.NoError(t, err)
	assert.Equal(t, ".wav", speech.Extension)
	d, err := narration.WAVDuration(speech.Audio)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)

	assert.Equal(t, "สวัสดีครับ", fm.text)
	require.NotNil(t, fm.config.SpeechConfig)
	assert.Equal(t, "Kore", fm.config.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	assert.Equal(t, "th-TH", fm.config.SpeechConfig.LanguageCode)
	assert.Equal(t, []string{"AUDIO"}, fm.config.ResponseModalities)
}

func TestGeminiSynthesizerErrors(t *testing.T) {
	tests := []struct {
		name string
		fm   *fakeModel
	}{
		{"model error", &fakeModel{err: errors.New("unavailable")}},
		{"no candidates", &fakeModel{resp: &genai.GenerateContentResponse{}}},
		{"no audio", &fakeModel{resp: audioResponse("audio/L16", nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := narration.NewGeminiSynthesizer(tt.fm, "").Synthesize(context.Background(), "hi", "Kore")
			assert.Error(t, err)
		})
	}
}

func TestSilenceSynthesizerLength(t *testing.T) {
	s := narration.NewSilenceSynthesizer()
	assert.InDelta(t, 1.0, s.Length("hi"), 1e-9)
	assert.InDelta(t, 3.0, s.Length(strings.Repeat("a", 40)), 1e-9)
}

func TestNarrator(t *testing.T) {
	t.Run("probed duration", func(t *testing.T) {
		prober := &fakeProber{seconds: 4.2, ok: true}
		n := &narration.Narrator{Synthesizer: narration.NewSilenceSynthesizer(), Prober: prober, Voice: "v", Fallback: 3}

		out, err := n.Narrate(context.Background(), "Hello world", t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, 4.2, out.Duration)
		assert.True(t, out.Probed)
		assert.FileExists(t, out.Path)
	})

	t.Run("probe failure falls back", func(t *testing.T) {
		n := &narration.Narrator{Synthesizer: narration.NewSilenceSynthesizer(), Prober: &fakeProber{}, Fallback: 3}

		out, err := n.Narrate(context.Background(), "Hello world", t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, 3.0, out.Duration)
		assert.False(t, out.Probed)
	})

	t.Run("empty script is silent fallback", func(t *testing.T) {
		prober := &fakeProber{seconds: 9, ok: true}
		n := &narration.Narrator{Synthesizer: failingSynth{}, Prober: prober, Fallback: 3}

		out, err := n.Narrate(context.Background(), "  \n ", t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, 3.0, out.Duration)
		assert.Equal(t, 0, prober.calls)
		data, err := os.ReadFile(out.Path)
		require.NoError(t, err)
		d, err := narration.WAVDuration(data)
		require.NoError(t, err)
		assert.InDelta(t, 3.0, d, 1e-4)
	})

	t.Run("synthesis failure is an asset fetch error", func(t *testing.T) {
		n := &narration.Narrator{Synthesizer: failingSynth{}, Prober: &fakeProber{}, Fallback: 3}

		_, err := n.Narrate(context.Background(), "Hello", t.TempDir())
		require.Error(t, err)
		assert.Equal(t, model.KindAssetFetch, model.KindOf(err))
	})
}
