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

package commands_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-render/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
	test "github.com/jaycherian/gcp-go-video-render/internal/testutil"
)

func newContext(in interface{}) cor.Context {
	c := cor.NewBaseContext()
	c.SetContext(context.Background())
	if in != nil {
		c.Add(cor.CtxIn, in)
	}
	return c
}

func TestRenderRequestReader(t *testing.T) {
	decoded, err := model.DecodeRenderRequest([]byte(test.GetTestRenderRequest()))
	require.NoError(t, err)

	tests := []struct {
		name     string
		in       interface{}
		wantKind model.ErrorKind
	}{
		{name: "bytes", in: []byte(test.GetTestRenderRequest())},
		{name: "string", in: test.GetTestRenderRequest()},
		{name: "decoded", in: decoded},
		{name: "unsupported", in: 42, wantKind: model.KindInput},
		{name: "empty scenes", in: `{"scenes": []}`, wantKind: model.KindInput},
		{name: "decoded without scenes", in: &model.RenderRequest{ID: "x"}, wantKind: model.KindInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newContext(tt.in)
			commands.NewRenderRequestReader("read").Execute(c)

			if tt.wantKind != "" {
				require.True(t, c.HasErrors())
				assert.Equal(t, tt.wantKind, model.KindOf(c.FirstError()))
				assert.Nil(t, c.Get(commands.RequestParam))
				return
			}
			require.False(t, c.HasErrors())
			req := c.Get(commands.GetRequestParameterName()).(*model.RenderRequest)
			assert.Equal(t, "PTT", req.SubjectID)
			require.Len(t, req.Scenes, 2)
			assert.Equal(t, 1, req.Scenes[0].Order)
			assert.Same(t, req, c.Get(cor.CtxOut))
		})
	}
}

func TestRenderRequestReader_QueuedReturnFile(t *testing.T) {
	req, err := model.DecodeRenderRequest([]byte(test.GetTestRenderRequest()))
	require.NoError(t, err)
	req.ReturnFile = true

	c := newContext(req)
	commands.NewRenderRequestReader("read").Execute(c)
	require.False(t, c.HasErrors(), "synchronous callers may ask for the file")

	c = newContext(req)
	c.Add(commands.QueuedParam, true)
	commands.NewRenderRequestReader("read").Execute(c)
	require.True(t, c.HasErrors())
	assert.Equal(t, model.KindInput, model.KindOf(c.FirstError()))
	assert.ErrorContains(t, c.FirstError(), "return_file is not supported for queued renders")
	assert.Nil(t, c.Get(commands.RequestParam))
}

func decodedRequest(t *testing.T) *model.RenderRequest {
	t.Helper()
	req, err := model.DecodeRenderRequest([]byte(test.GetTestRenderRequest()))
	require.NoError(t, err)
	return req
}

func TestRenderWorkspace(t *testing.T) {
	root := t.TempDir()
	req := decodedRequest(t)
	c := newContext(nil)
	c.Add(commands.RequestParam, req)

	cmd := commands.NewRenderWorkspace("workspace", root)
	require.True(t, cmd.IsExecutable(c))
	cmd.Execute(c)
	require.False(t, c.HasErrors())

	dir := c.Get(commands.RenderDirParam).(string)
	assert.Equal(t, root, filepath.Dir(dir))
	assert.Contains(t, c.GetTempFiles(), dir)

	work := c.Get(commands.ScenesParam).([]*model.SceneWork)
	require.Len(t, work, 2)
	assert.Equal(t, filepath.Join(dir, "scene_001"), work[0].Dir)
	assert.Equal(t, filepath.Join(dir, "scene_002"), work[1].Dir)
	assert.DirExists(t, work[1].Dir)
	assert.Equal(t, "PTT", work[1].Subject)
	require.NotNil(t, work[1].Metrics, "scene metrics merge with the global setup")

	c.Close()
	assert.NoDirExists(t, dir)
}

func workspace(t *testing.T, images ...[]byte) (cor.Context, []*model.SceneWork, string) {
	t.Helper()
	root := t.TempDir()
	work := make([]*model.SceneWork, 0, len(images))
	for i, img := range images {
		dir := filepath.Join(root, fmt.Sprintf("scene_%03d", i+1))
		require.NoError(t, os.Mkdir(dir, 0o755))
		work = append(work, &model.SceneWork{Scene: &model.Scene{Order: i + 1, Script: "script", Image: img}, Dir: dir})
	}
	c := newContext(nil)
	c.Add(commands.ScenesParam, work)
	c.Add(commands.RenderDirParam, root)
	return c, work, root
}

func TestSniffImage(t *testing.T) {
	png := model.GetExampleImage(8, 8)

	ext, err := commands.SniffImage(png)
	require.NoError(t, err)
	assert.Equal(t, ".png", ext)

	_, err = commands.SniffImage(nil)
	assert.Error(t, err)
	_, err = commands.SniffImage([]byte("definitely not an image"))
	assert.Error(t, err)
	_, err = commands.SniffImage(png[:24])
	assert.Error(t, err, "a truncated header must not pass")

	// Header intact, pixel data cut short.
	truncated := model.GetExampleImage(64, 64)[:60]
	_, err = commands.SniffImage(truncated)
	assert.ErrorContains(t, err, "undecodable png image")
}

func TestSceneImageResolver_Fallbacks(t *testing.T) {
	good := model.GetExampleImage(8, 8)
	c, work, root := workspace(t, nil, good, []byte("garbage"))

	commands.NewSceneImageResolver("images", 16, 32).Execute(c)
	require.False(t, c.HasErrors())

	black := filepath.Join(root, "black.png")
	assert.Equal(t, black, work[0].Image.Path)
	assert.True(t, work[0].Image.Substitute)
	assert.Contains(t, work[0].Image.Reason, "black frame")
	ext, err := commands.SniffImage(mustRead(t, black))
	require.NoError(t, err)
	assert.Equal(t, ".png", ext)

	assert.Equal(t, filepath.Join(work[1].Dir, "image.png"), work[1].Image.Path)
	assert.False(t, work[1].Image.Substitute)

	assert.Equal(t, work[1].Image.Path, work[2].Image.Path)
	assert.True(t, work[2].Image.Substitute)
	assert.Contains(t, work[2].Image.Reason, "previous scene")
}

func TestSceneImageResolver_TruncatedBodyFallsBack(t *testing.T) {
	good := model.GetExampleImage(8, 8)
	truncated := model.GetExampleImage(64, 64)[:60]
	c, work, _ := workspace(t, good, truncated)

	commands.NewSceneImageResolver("images", 16, 32).Execute(c)
	require.False(t, c.HasErrors())

	assert.False(t, work[0].Image.Substitute)
	assert.Equal(t, work[0].Image.Path, work[1].Image.Path)
	assert.True(t, work[1].Image.Substitute)
	assert.Contains(t, work[1].Image.Reason, "undecodable png image")
	assert.NoFileExists(t, filepath.Join(work[1].Dir, "image.png"))
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// clipCommand stands in for the per-scene chain.
type clipCommand struct {
	cor.BaseCommand
	failOrder int
	running   atomic.Int32
	peak      atomic.Int32
}

func (c *clipCommand) Execute(context cor.Context) {
	n := c.running.Add(1)
	defer c.running.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	work := context.Get(c.GetInputParam()).(*model.SceneWork)
	if work.Scene.Order == c.failOrder {
		c.Fail(context, model.NewError(model.KindCompose, "compose-scene", errors.New("boom")))
		return
	}
	work.Clip = &model.SceneClip{Order: work.Scene.Order, Path: filepath.Join(work.Dir, "scene.mp4"), Duration: float64(work.Scene.Order)}
	context.Add(c.GetOutputParam(), work)
}

func TestSceneFanOut_CollectsClipsInOrder(t *testing.T) {
	c, _, _ := workspace(t, nil, nil, nil, nil, nil)
	cmd := &clipCommand{BaseCommand: *cor.NewBaseCommand("clip")}
	chain := cor.NewBaseChain("scene").AddCommand(cmd)

	commands.NewSceneFanOut("fan-out", chain, 2).Execute(c)
	require.False(t, c.HasErrors())

	clips := c.Get(commands.ClipsParam).([]*model.SceneClip)
	require.Len(t, clips, 5)
	for i, clip := range clips {
		assert.Equal(t, i+1, clip.Order)
	}
	assert.LessOrEqual(t, cmd.peak.Load(), int32(2))
}

func TestSceneFanOut_FirstFailureWins(t *testing.T) {
	c, _, _ := workspace(t, nil, nil, nil)
	cmd := &clipCommand{BaseCommand: *cor.NewBaseCommand("clip"), failOrder: 2}
	chain := cor.NewBaseChain("scene").AddCommand(cmd)

	commands.NewSceneFanOut("fan-out", chain, 1).Execute(c)
	require.True(t, c.HasErrors())
	assert.Equal(t, model.KindCompose, model.KindOf(c.FirstError()))
	assert.Nil(t, c.Get(commands.ClipsParam))
}

func TestSceneFanOut_MissingClip(t *testing.T) {
	c, _, _ := workspace(t, nil)
	noop := cor.NewBaseChain("scene")

	commands.NewSceneFanOut("fan-out", noop, 1).Execute(c)
	require.True(t, c.HasErrors())
	assert.Equal(t, model.KindCompose, model.KindOf(c.FirstError()))
}

func publishContext(t *testing.T, returnFile bool) (cor.Context, string) {
	t.Helper()
	req := decodedRequest(t)
	req.ReturnFile = returnFile
	final := filepath.Join(t.TempDir(), commands.FinalVideoName)
	require.NoError(t, os.WriteFile(final, []byte("mp4 bytes"), 0o644))

	c := newContext(nil)
	c.Add(commands.RequestParam, req)
	c.Add(commands.FinalVideoParam, final)
	c.Add(commands.DurationParam, 7.5)
	return c, final
}

func TestAssetPublisher_Publishes(t *testing.T) {
	c, _ := publishContext(t, false)
	publisher := test.NewMemoryPublisher()

	commands.NewAssetPublisher("publish", publisher, t.TempDir()).Execute(c)
	require.False(t, c.HasErrors())

	result := c.Get(commands.GetResultParameterName()).(*model.RenderResult)
	assert.Equal(t, "memory://renders/"+result.ObjectName, result.AssetAddress)
	assert.Equal(t, 7.5, result.Duration)
	assert.Equal(t, 2, result.SceneCount)
	assert.Equal(t, 1, publisher.Calls)
	assert.Equal(t, "mp4 bytes", string(publisher.Objects[result.ObjectName]))
}

func TestAssetPublisher_SingleAttemptOnFailure(t *testing.T) {
	c, _ := publishContext(t, false)
	publisher := test.NewMemoryPublisher()
	publisher.Err = errors.New("503 backend unavailable")

	commands.NewAssetPublisher("publish", publisher, t.TempDir()).Execute(c)
	require.True(t, c.HasErrors())
	assert.Equal(t, model.KindPublish, model.KindOf(c.FirstError()))
	assert.Equal(t, 1, publisher.Calls)
}

func TestAssetPublisher_NoStorage(t *testing.T) {
	c, _ := publishContext(t, false)

	commands.NewAssetPublisher("publish", nil, t.TempDir()).Execute(c)
	require.True(t, c.HasErrors())
	assert.ErrorIs(t, c.FirstError(), commands.ErrStorageNotConfigured)
	assert.Contains(t, c.FirstError().Error(), "storage not configured")
}

func TestAssetPublisher_ReturnFile(t *testing.T) {
	c, final := publishContext(t, true)
	keep := t.TempDir()

	commands.NewAssetPublisher("publish", nil, keep).Execute(c)
	require.False(t, c.HasErrors())

	result := c.Get(commands.ResultParam).(*model.RenderResult)
	assert.Equal(t, keep, filepath.Dir(result.LocalPath))
	assert.Equal(t, "mp4 bytes", string(mustRead(t, result.LocalPath)))
	assert.NoFileExists(t, final)
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp4")
	dst := filepath.Join(dir, "b.mp4")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.NoError(t, commands.MoveFile(src, dst))
	assert.NoFileExists(t, src)
	assert.Equal(t, "x", string(mustRead(t, dst)))

	assert.Error(t, commands.MoveFile(filepath.Join(dir, "missing"), dst))
}

func TestRenderPersistToBigQuery(t *testing.T) {
	record := model.NewRenderRecord(decodedRequest(t), nil, model.InputErrorf("decode-request", "bad"))

	inserter := &test.RecordingInserter{}
	c := newContext(nil)
	c.Add(commands.RecordParam, record)
	commands.NewRenderPersistToBigQuery("bq", inserter).Execute(c)
	require.False(t, c.HasErrors())
	require.Len(t, inserter.Rows, 1)
	assert.Same(t, record, inserter.Rows[0])
	assert.Equal(t, model.RenderStatusFailed, record.Status)
	assert.Equal(t, string(model.KindInput), record.ErrorKind)

	failing := &test.RecordingInserter{Err: errors.New("table not found")}
	c = newContext(nil)
	c.Add(commands.RecordParam, record)
	commands.NewRenderPersistToBigQuery("bq", failing).Execute(c)
	assert.True(t, c.HasErrors())
}

func TestRenderNotifier(t *testing.T) {
	record := model.NewRenderRecord(decodedRequest(t), &model.RenderResult{ObjectName: "PTT_abc.mp4", AssetAddress: "https://example/PTT_abc.mp4"}, nil)
	notice := model.NewCompletionNotice(record, nil)

	notifier := &test.RecordingNotifier{}
	c := newContext(nil)
	cmd := commands.NewRenderNotifier("notify", notifier)
	assert.False(t, cmd.IsExecutable(c), "no notice, nothing to send")

	c.Add(commands.NoticeParam, notice)
	require.True(t, cmd.IsExecutable(c))
	cmd.Execute(c)
	require.False(t, c.HasErrors())

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].OK)
	assert.Equal(t, "https://example/PTT_abc.mp4", sent[0].AssetAddress)
	assert.Equal(t, map[string]string{"render_id": record.RenderID, "ok": "true"}, notifier.Attrs[0])
}
