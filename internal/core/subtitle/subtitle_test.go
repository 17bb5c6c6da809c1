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

package subtitle_test

import (
	"math"
	"strings"
	"testing"

	"github.com/rivo/uniseg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
	"github.com/jaycherian/gcp-go-video-render/internal/core/subtitle"
)

const tolerance = 1e-9

var scripts = []string{
	"",
	"   \n\t ",
	"Hello world",
	"The quick brown fox jumps over the lazy dog while the market opens higher on strong earnings.",
	"Supercalifragilisticexpialidocious-antidisestablishmentarianism is a long token",
	"ราคาทะลุแนวต้านสำคัญพร้อมปริมาณการซื้อขายที่เพิ่มขึ้นอย่างต่อเนื่อง",
	"line one\nline two\n\nline three   with   gaps",
	"日本語のテキストはスペースなしで書かれています",
	"été café",
}

func TestChunk_RespectsBudgets(t *testing.T) {
	budgets := []struct{ w, h int }{{32, 3}, {10, 2}, {5, 1}, {1, 1}}
	tokenizers := []subtitle.Tokenizer{subtitle.WordTokenizer{}, subtitle.CharTokenizer{}}

	for _, b := range budgets {
		for _, tok := range tokenizers {
			c := subtitle.NewChunker(b.w, b.h)
			c.Tokenizer = tok
			for _, s := range scripts {
				for _, chunk := range c.Chunk(s) {
					require.NotEmpty(t, chunk.Lines)
					assert.LessOrEqual(t, len(chunk.Lines), b.h)
					for _, line := range chunk.Lines {
						assert.LessOrEqual(t, uniseg.GraphemeClusterCount(line), b.w, "%s %q", tok.Name(), line)
						assert.Equal(t, strings.TrimSpace(line), line)
						assert.NotEmpty(t, line)
					}
				}
			}
		}
	}
}

func TestChunk_PreservesText(t *testing.T) {
	c := subtitle.NewChunker(12, 2)
	for _, s := range scripts {
		var words []string
		for _, chunk := range c.Chunk(s) {
			words = append(words, chunk.Lines...)
		}
		got := strings.ReplaceAll(strings.Join(words, ""), " ", "")
		want := strings.ReplaceAll(subtitle.Normalize(s), " ", "")
		assert.Equal(t, want, got)
	}
}

func TestChunk_EmptyScript(t *testing.T) {
	c := subtitle.NewChunker(32, 3)
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk(" \n "))
	assert.Empty(t, c.Build("", 4.0))
}

func TestChunk_GreedyPacking(t *testing.T) {
	c := subtitle.NewChunker(11, 2)
	chunks := c.Chunk("aaa bbb ccc ddd eee fff ggg")

	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"aaa bbb ccc", "ddd eee fff"}, chunks[0].Lines)
	assert.Equal(t, []string{"ggg"}, chunks[1].Lines)
	assert.Equal(t, "aaa bbb ccc\nddd eee fff", chunks[0].Text())
	assert.Equal(t, 22, chunks[0].CharCount())
}

func TestChunk_LongTokenIsSplit(t *testing.T) {
	c := subtitle.NewChunker(4, 3)
	chunks := c.Chunk("abcdefghij")
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunks[0].Lines)
}

func TestChunk_Deterministic(t *testing.T) {
	c := subtitle.NewChunker(16, 2)
	for _, s := range scripts {
		assert.Equal(t, c.Build(s, 7.3), c.Build(s, 7.3))
	}
}

func TestAllocate_HelloWorld(t *testing.T) {
	chunks := subtitle.NewChunker(32, 3).Build("Hello world", 4.0)
	require.Len(t, chunks, 1)
	assert.Equal(t, 11, chunks[0].CharCount())
	assert.Equal(t, model.Window{Start: 0, End: 4.0}, chunks[0].Window)
}

func TestAllocate_ContiguousAndProportional(t *testing.T) {
	totals := []float64{0, 0.1, 1, 3.3333, 4, 17.77, 123.456}
	c := subtitle.NewChunker(10, 2)
	for _, s := range scripts {
		for _, total := range totals {
			chunks := c.Build(s, total)
			if len(chunks) == 0 {
				continue
			}
			sum := 0
			for _, ch := range chunks {
				sum += ch.CharCount()
			}
			assert.Equal(t, 0.0, chunks[0].Window.Start)
			assert.Equal(t, total, chunks[len(chunks)-1].Window.End)
			for i, ch := range chunks {
				if i > 0 {
					assert.Equal(t, chunks[i-1].Window.End, ch.Window.Start)
				}
				assert.GreaterOrEqual(t, ch.Window.Length(), 0.0)
				want := total * float64(ch.CharCount()) / float64(sum)
				assert.InDelta(t, want, ch.Window.Length(), 1e-6)
			}
		}
	}
}

func TestAllocate_ZeroCountsShareEqually(t *testing.T) {
	chunks := []model.SubtitleChunk{{Lines: []string{""}}, {Lines: nil}, {Lines: []string{""}}}
	subtitle.Allocate(chunks, 3.0)
	for i, ch := range chunks {
		assert.InDelta(t, float64(i), ch.Window.Start, tolerance)
		assert.InDelta(t, 1.0, ch.Window.Length(), tolerance)
	}
	assert.Equal(t, 3.0, chunks[2].Window.End)
}

func TestAllocate_NegativeTotal(t *testing.T) {
	chunks := subtitle.Allocate([]model.SubtitleChunk{{Lines: []string{"abc"}}}, -1)
	assert.Equal(t, model.Window{}, chunks[0].Window)
	assert.False(t, math.Signbit(chunks[0].Window.End))
}
