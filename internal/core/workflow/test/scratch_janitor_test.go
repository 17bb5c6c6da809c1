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

package workflow_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/workflow"
)

func TestScratchJanitor_RemovesOnlyOldRenderEntries(t *testing.T) {
	cfg := testConfig(t)
	cfg.Application.ScratchMaxAgeMinutes = 60
	root := cfg.Application.ScratchDir
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	old := filepath.Join(root, "render_1234")
	fresh := filepath.Join(root, "render_5678")
	oldKept := filepath.Join(root, "render_abcd.mp4")
	unrelated := filepath.Join(root, "cache_old")
	require.NoError(t, os.MkdirAll(filepath.Join(old, "scene_001"), 0o755))
	require.NoError(t, os.Mkdir(fresh, 0o755))
	require.NoError(t, os.WriteFile(oldKept, []byte("mp4"), 0o644))
	require.NoError(t, os.Mkdir(unrelated, 0o755))

	stale := now.Add(-2 * time.Hour)
	for _, p := range []string{old, oldKept, unrelated} {
		require.NoError(t, os.Chtimes(p, stale, stale))
	}
	require.NoError(t, os.Chtimes(fresh, now.Add(-time.Minute), now.Add(-time.Minute)))

	janitor := workflow.NewScratchJanitor(cfg)
	janitor.SetClock(func() time.Time { return now })

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(ctx)
	require.True(t, janitor.IsExecutable(chainCtx))
	janitor.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	assert.Equal(t, 2, chainCtx.Get(workflow.SweptParam))
	assert.NoDirExists(t, old)
	assert.NoFileExists(t, oldKept)
	assert.DirExists(t, fresh)
	assert.DirExists(t, unrelated)
}

func TestScratchJanitor_MissingRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Application.ScratchDir = filepath.Join(t.TempDir(), "gone")

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(ctx)
	workflow.NewScratchJanitor(cfg).Execute(chainCtx)
	assert.True(t, chainCtx.HasErrors())
}
