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

package subtitle

import "github.com/jaycherian/gcp-go-video-render/internal/core/model"

// Allocate assigns each chunk a window proportional to its visible character
// count. Windows are laid end to end from 0 and the last one ends exactly at
// total. When no chunk has visible characters each gets an equal share.
// The slice is updated in place and returned.
func Allocate(chunks []model.SubtitleChunk, total float64) []model.SubtitleChunk {
	if len(chunks) == 0 {
		return chunks
	}
	if total < 0 {
		total = 0
	}

	counts := make([]int, len(chunks))
	sum := 0
	for i := range chunks {
		counts[i] = chunks[i].CharCount()
		sum += counts[i]
	}

	cursor := 0.0
	for i := range chunks {
		var length float64
		if sum == 0 {
			length = total / float64(len(chunks))
		} else {
			length = total * float64(counts[i]) / float64(sum)
		}
		end := cursor + length
		if i == len(chunks)-1 || end > total {
			end = total
		}
		chunks[i].Window = model.Window{Start: cursor, End: end}
		cursor = end
	}
	return chunks
}

// Build chunks and times script in one step.
func (c *Chunker) Build(script string, total float64) []model.SubtitleChunk {
	return Allocate(c.Chunk(script), total)
}
