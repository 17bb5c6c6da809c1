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

package layers_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-render/internal/core/layers"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

func TestAssetCache_RemoteFetchedOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("font-bytes"))
	}))
	defer srv.Close()

	cache := layers.NewAssetCache(t.TempDir(), srv.Client())
	ctx := context.Background()

	var wg sync.WaitGroup
	paths := make([]string, 16)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := cache.Path(ctx, srv.URL+"/fonts/Sarabun.ttf")
			assert.NoError(t, err)
			paths[i] = p
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for _, p := range paths {
		assert.Equal(t, paths[0], p)
	}
	assert.Equal(t, ".ttf", filepath.Ext(paths[0]))

	data, err := cache.Bytes(ctx, srv.URL+"/fonts/Sarabun.ttf")
	require.NoError(t, err)
	assert.Equal(t, "font-bytes", string(data))
	assert.Equal(t, int32(1), hits.Load())
}

func TestAssetCache_CancelledCallerDoesNotAbortSharedFetch(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(started)
		}
		<-release
		_, _ = w.Write([]byte("font-bytes"))
	}))
	defer srv.Close()
	defer func() {
		select {
		case <-release:
		default:
			close(release)
		}
	}()

	cache := layers.NewAssetCache(t.TempDir(), srv.Client())
	source := srv.URL + "/fonts/NotoSansThai.ttf"

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Path(first, source)
		firstErr <- err
	}()
	<-started
	cancel()

	err := <-firstErr
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.KindAssetFetch, model.KindOf(err))

	second := make(chan string, 1)
	go func() {
		p, err := cache.Path(context.Background(), source)
		assert.NoError(t, err)
		second <- p
	}()
	close(release)

	p := <-second
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "font-bytes", string(data))
	assert.Equal(t, int32(1), hits.Load(), "the waiting caller reuses the fetch the first one started")
}

func TestAssetCache_DiskCacheSharedAcrossInstances(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("logo"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	ctx := context.Background()
	_, err := layers.NewAssetCache(dir, srv.Client()).Path(ctx, srv.URL+"/logo.png")
	require.NoError(t, err)
	_, err = layers.NewAssetCache(dir, srv.Client()).Path(ctx, srv.URL+"/logo.png")
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
}

func TestAssetCache_FailuresAreNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cache := layers.NewAssetCache(t.TempDir(), srv.Client())
	ctx := context.Background()

	_, err := cache.Path(ctx, srv.URL+"/a.png")
	require.Error(t, err)
	assert.Equal(t, model.KindAssetFetch, model.KindOf(err))

	data, err := cache.Bytes(ctx, srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestAssetCache_LocalPaths(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(local, []byte("png"), 0o644))

	cache := layers.NewAssetCache(filepath.Join(dir, "cache"), nil)
	p, err := cache.Path(context.Background(), local)
	require.NoError(t, err)
	assert.Equal(t, local, p)

	_, err = cache.Path(context.Background(), filepath.Join(dir, "nope.ttf"))
	assert.Equal(t, model.KindAssetFetch, model.KindOf(err))

	_, err = cache.Path(context.Background(), "")
	assert.Error(t, err)
}

func TestAssetCache_ObjectLocations(t *testing.T) {
	var opened []string
	cache := layers.NewAssetCache(t.TempDir(), nil)
	cache.Objects = func(_ context.Context, bucket, object string) (io.ReadCloser, error) {
		opened = append(opened, bucket+"|"+object)
		return io.NopCloser(strings.NewReader("png-bytes")), nil
	}
	ctx := context.Background()

	data, err := cache.Bytes(ctx, "gs://brand-assets/logos/mark.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, []string{"brand-assets|logos/mark.png"}, opened)

	_, err = cache.Path(ctx, "gs://brand-assets")
	assert.Equal(t, model.KindAssetFetch, model.KindOf(err))

	noClient := layers.NewAssetCache(t.TempDir(), nil)
	_, err = noClient.Path(ctx, "gs://brand-assets/logos/mark.png")
	assert.Error(t, err)
}
