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

// Package narration turns a scene script into an audio file whose duration
// drives the scene's timeline.
package narration

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	DefaultSampleRate = 24000
	bitsPerSample     = 16
)

// Speech is a synthesized audio asset.
type Speech struct {
	Audio     []byte
	Extension string // including the dot, e.g. ".wav"
}

// Synthesizer converts text into speech with the given voice.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, voice string) (*Speech, error)
}

// PCMToWAV wraps signed 16-bit little endian PCM in a RIFF/WAVE header.
func PCMToWAV(pcm []byte, sampleRate, channels int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// SilentWAV returns a mono WAV of the given length.
func SilentWAV(seconds float64, sampleRate int) ([]byte, error) {
	if math.IsNaN(seconds) || seconds <= 0 {
		return nil, fmt.Errorf("silent track needs a positive duration, got %v", seconds)
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	samples := int(math.Ceil(seconds * float64(sampleRate)))
	return PCMToWAV(make([]byte, samples*bitsPerSample/8), sampleRate, 1), nil
}

// WAVDuration reads the duration of a canonical PCM WAV produced by PCMToWAV.
func WAVDuration(wav []byte) (float64, error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0, fmt.Errorf("not a WAV file")
	}
	byteRate := binary.LittleEndian.Uint32(wav[28:32])
	dataLen := binary.LittleEndian.Uint32(wav[40:44])
	if byteRate == 0 {
		return 0, fmt.Errorf("WAV header has zero byte rate")
	}
	return float64(dataLen) / float64(byteRate), nil
}
