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

package layers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"

	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

const (
	opFetchAsset        = "fetch-asset"
	lockRetryDelay      = 100 * time.Millisecond
	defaultFetchTimeout = 30 * time.Second
)

// ObjectOpener streams an object out of a bucket. cloud.GCSObjectOpener
// provides one for gs:// locations.
type ObjectOpener func(ctx context.Context, bucket, object string) (io.ReadCloser, error)

// AssetCache resolves font and logo locations to local files. Remote
// (http/https, and gs:// when Objects is set) assets are downloaded once per
// process and kept in dir, which may be shared between processes. Local
// paths are used in place.
//
// Only successful lookups are remembered, so a failed fetch is retried by the
// next caller. Cached files are never rewritten.
//
// A fetch shared by concurrent callers is bounded by Timeout only. A caller
// whose context ends stops waiting without aborting the fetch for the others.
type AssetCache struct {
	dir     string
	client  *http.Client
	Objects ObjectOpener
	Timeout time.Duration
	group   singleflight.Group

	mu    sync.RWMutex
	paths map[string]string
}

// NewAssetCache creates a cache rooted at dir.
//
// Inputs:
//   - dir: directory for downloaded assets, created on first fetch.
//   - client: HTTP client for http(s) sources. nil uses http.DefaultClient.
//
// Outputs:
//   - *AssetCache: a cache whose fetch Timeout is taken from client.Timeout,
//     or defaultFetchTimeout when the client has none.
func NewAssetCache(dir string, client *http.Client) *AssetCache {
	if client == nil {
		client = http.DefaultClient
	}
	timeout := client.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &AssetCache{dir: dir, client: client, Timeout: timeout, paths: make(map[string]string)}
}

// Path returns a local file holding the asset at source.
func (c *AssetCache) Path(ctx context.Context, source string) (string, error) {
	c.mu.RLock()
	p, ok := c.paths[source]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	ch := c.group.DoChan(source, func() (interface{}, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if c.Timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, c.Timeout)
			defer cancel()
		}
		p, err := c.resolve(fetchCtx, source)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.paths[source] = p
		c.mu.Unlock()
		return p, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", model.NewError(model.KindAssetFetch, opFetchAsset, ctx.Err())
	}
}

// Bytes reads the asset at source.
func (c *AssetCache) Bytes(ctx context.Context, source string) ([]byte, error) {
	p, err := c.Path(ctx, source)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, model.NewError(model.KindAssetFetch, opFetchAsset, err)
	}
	return data, nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") || strings.HasPrefix(source, gcsScheme)
}

const gcsScheme = "gs://"

// splitObjectURI turns gs://bucket/path/to/object into its parts.
func splitObjectURI(source string) (bucket, object string, err error) {
	bucket, object, ok := strings.Cut(strings.TrimPrefix(source, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed object location %q", source)
	}
	return bucket, object, nil
}

func (c *AssetCache) resolve(ctx context.Context, source string) (string, error) {
	if source == "" {
		return "", model.NewError(model.KindAssetFetch, opFetchAsset, fmt.Errorf("empty asset location"))
	}
	if !isRemote(source) {
		abs, err := filepath.Abs(source)
		if err != nil {
			return "", model.NewError(model.KindAssetFetch, opFetchAsset, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return "", model.NewError(model.KindAssetFetch, opFetchAsset, err)
		}
		return abs, nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", model.NewError(model.KindAssetFetch, opFetchAsset, err)
	}
	sum := sha256.Sum256([]byte(source))
	target := filepath.Join(c.dir, hex.EncodeToString(sum[:8])+path.Ext(strings.SplitN(source, "?", 2)[0]))

	lock := flock.New(target + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		if err == nil {
			err = ctx.Err()
		}
		return "", model.NewError(model.KindAssetFetch, opFetchAsset, fmt.Errorf("lock %s: %w", target, err))
	}
	defer func() { _ = lock.Unlock() }()

	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		return target, nil
	}

	if err := c.download(ctx, source, target); err != nil {
		return "", model.NewError(model.KindAssetFetch, opFetchAsset, err)
	}
	slog.InfoContext(ctx, "cached remote asset", "source", source, "path", target)
	return target, nil
}

func (c *AssetCache) open(ctx context.Context, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, gcsScheme) {
		if c.Objects == nil {
			return nil, fmt.Errorf("no object storage client for %s", source)
		}
		bucket, object, err := splitObjectURI(source)
		if err != nil {
			return nil, err
		}
		return c.Objects(ctx, bucket, object)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", source, resp.Status)
	}
	return resp.Body, nil
}

func (c *AssetCache) download(ctx context.Context, source, target string) error {
	body, err := c.open(ctx, source)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(c.dir, "asset-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err = io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}
