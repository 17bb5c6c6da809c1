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

// Package subtitle splits narration scripts into on-screen chunks and times
// them against the narration length.
//
// Widths are measured in grapheme clusters, so a combining sequence such as a
// Thai consonant with its tone mark counts as one character.
package subtitle

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"

	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

const (
	DefaultMaxCharsPerLine  = 32
	DefaultMaxLinesPerChunk = 3
)

// Tokenizer splits text into the units the chunker packs into lines.
// Concatenating the tokens must reproduce the input.
type Tokenizer interface {
	Name() string
	Tokens(text string) []string
}

// WordTokenizer follows Unicode word boundaries (UAX #29). Whitespace runs
// come back as their own tokens.
//
// UAX #29 has no dictionary for scripts written without spaces. Thai, Lao,
// Khmer and Myanmar text therefore breaks between every grapheme, which is
// the same quality as CharTokenizer for those scripts: lines still respect the
// width budget but may wrap inside a word.
type WordTokenizer struct{}

func (WordTokenizer) Name() string { return "uax29-word" }

func (WordTokenizer) Tokens(text string) []string {
	var out []string
	state := -1
	rest := text
	for len(rest) > 0 {
		var word string
		word, rest, state = uniseg.FirstWordInString(rest, state)
		out = append(out, word)
	}
	return out
}

// CharTokenizer emits one token per grapheme cluster. It is the fallback
// when word segmentation is not wanted and gives the poorest line breaks.
type CharTokenizer struct{}

func (CharTokenizer) Name() string { return "grapheme" }

func (CharTokenizer) Tokens(text string) []string {
	var out []string
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}

// Chunker packs tokens into lines of at most MaxCharsPerLine characters and
// lines into chunks of at most MaxLinesPerChunk lines.
type Chunker struct {
	MaxCharsPerLine  int
	MaxLinesPerChunk int
	Tokenizer        Tokenizer
}

// NewChunker returns a chunker using the word tokenizer. Budgets below one
// fall back to the defaults.
func NewChunker(maxCharsPerLine, maxLinesPerChunk int) *Chunker {
	if maxCharsPerLine < 1 {
		maxCharsPerLine = DefaultMaxCharsPerLine
	}
	if maxLinesPerChunk < 1 {
		maxLinesPerChunk = DefaultMaxLinesPerChunk
	}
	return &Chunker{
		MaxCharsPerLine:  maxCharsPerLine,
		MaxLinesPerChunk: maxLinesPerChunk,
		Tokenizer:        WordTokenizer{},
	}
}

// Normalize applies NFC and collapses every whitespace run (newlines
// included) into a single space.
func Normalize(script string) string {
	return strings.Join(strings.FieldsFunc(norm.NFC.String(script), unicode.IsSpace), " ")
}

// Chunk returns the subtitle chunks for script, without timing. An empty or
// whitespace-only script gives no chunks.
func (c *Chunker) Chunk(script string) []model.SubtitleChunk {
	text := Normalize(script)
	if text == "" {
		return nil
	}
	tok := c.Tokenizer
	if tok == nil {
		tok = WordTokenizer{}
	}

	var (
		chunks  []model.SubtitleChunk
		lines   []string
		line    strings.Builder
		lineLen int
	)
	closeChunk := func() {
		if len(lines) > 0 {
			chunks = append(chunks, model.SubtitleChunk{Lines: lines})
			lines = nil
		}
	}
	closeLine := func() {
		l := strings.TrimRightFunc(line.String(), unicode.IsSpace)
		line.Reset()
		lineLen = 0
		if l == "" {
			return
		}
		lines = append(lines, l)
		if len(lines) >= c.MaxLinesPerChunk {
			closeChunk()
		}
	}

	for _, token := range tok.Tokens(text) {
		for _, piece := range c.split(token) {
			isSpace := strings.TrimSpace(piece) == ""
			if isSpace && lineLen == 0 {
				continue
			}
			n := uniseg.GraphemeClusterCount(piece)
			if lineLen+n > c.MaxCharsPerLine {
				closeLine()
				if isSpace {
					continue
				}
			}
			line.WriteString(piece)
			lineLen += n
		}
	}
	closeLine()
	closeChunk()
	return chunks
}

// split breaks a token wider than a full line into line-sized pieces.
func (c *Chunker) split(token string) []string {
	if uniseg.GraphemeClusterCount(token) <= c.MaxCharsPerLine {
		return []string{token}
	}
	var (
		out   []string
		piece strings.Builder
		n     int
	)
	g := uniseg.NewGraphemes(token)
	for g.Next() {
		piece.WriteString(g.Str())
		n++
		if n == c.MaxCharsPerLine {
			out = append(out, piece.String())
			piece.Reset()
			n = 0
		}
	}
	if n > 0 {
		out = append(out, piece.String())
	}
	return out
}
