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

// Package api exposes the render workflow over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-video-render/internal/cloud"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

// MaxRequestBytes bounds a request body; scene images arrive inline.
const MaxRequestBytes = 256 << 20

// Renderer runs one render. *workflow.RenderWorkflow implements it.
type Renderer interface {
	Run(ctx context.Context, input interface{}, notify bool) (*model.RenderResult, error)
}

// RenderHandler serves render requests. Background renders started with
// ?async=true keep running after the HTTP response; Wait blocks until they
// are done.
type RenderHandler struct {
	renderer Renderer
	bucket   string
	stats    *Stats
	baseCtx  context.Context
	wg       sync.WaitGroup
}

// NewRenderHandler builds the HTTP front of the render workflow.
//
// Inputs:
//   - baseCtx: The parent of background renders, normally the server's
//     lifetime context.
//   - renderer: Runs renders, normally a *workflow.RenderWorkflow.
//   - bucket: Reported by the health endpoint.
//   - stats: Render counters for the dashboard. nil creates fresh ones.
//
// Outputs:
//   - *RenderHandler: Call Wait during shutdown to let background renders finish.
func NewRenderHandler(baseCtx context.Context, renderer Renderer, bucket string, stats *Stats) *RenderHandler {
	if stats == nil {
		stats = NewStats()
	}
	return &RenderHandler{renderer: renderer, bucket: bucket, stats: stats, baseCtx: baseCtx}
}

// RenderRouter registers POST /render on r.
func (h *RenderHandler) RenderRouter(r gin.IRoutes) {
	r.POST("/render", h.Render)
}

// Wait blocks until every background render has finished.
func (h *RenderHandler) Wait() {
	h.wg.Wait()
}

// StatusFor maps an error kind to the HTTP status returned to callers.
func StatusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch model.KindOf(err) {
	case model.KindInput:
		return http.StatusBadRequest
	case model.KindAssetFetch, model.KindPublish:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(renderID string, err error) gin.H {
	return gin.H{
		"ok":         false,
		"render_id":  renderID,
		"error":      err.Error(),
		"error_kind": model.KindOf(err),
	}
}

func (h *RenderHandler) Render(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBytes))
	if err != nil {
		err = model.InputErrorf("decode-request", "failed to read request body: %v", err)
		c.JSON(StatusFor(err), errorBody("", err))
		return
	}
	req, err := model.DecodeRenderRequest(body)
	if err != nil {
		c.JSON(StatusFor(err), errorBody("", err))
		return
	}

	if cloud.ParseFlag(c.Query("async")) {
		h.renderAsync(c, req)
		return
	}

	h.stats.begin()
	result, err := h.renderer.Run(c.Request.Context(), req, false)
	h.stats.end(err)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "render request failed", "render_id", req.ID, "error", err)
		c.JSON(StatusFor(err), errorBody(req.ID, err))
		return
	}

	if result.LocalPath != "" {
		defer os.Remove(result.LocalPath)
		c.Header("X-Render-Id", result.RenderID)
		c.FileAttachment(result.LocalPath, result.ObjectName)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":               true,
		"render_id":        result.RenderID,
		"subject_id":       result.SubjectID,
		"object_name":      result.ObjectName,
		"asset_address":    result.AssetAddress,
		"url":              result.AssetAddress,
		"scene_count":      result.SceneCount,
		"duration_seconds": result.Duration,
	})
}

func (h *RenderHandler) renderAsync(c *gin.Context, req *model.RenderRequest) {
	if req.ReturnFile {
		err := model.InputErrorf("decode-request", "return_file cannot be combined with async rendering")
		c.JSON(StatusFor(err), errorBody(req.ID, err))
		return
	}

	h.stats.begin()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_, err := h.renderer.Run(h.baseCtx, req, true)
		h.stats.end(err)
		if err != nil {
			slog.ErrorContext(h.baseCtx, "background render failed", "render_id", req.ID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"ok":        true,
		"render_id": req.ID,
		"message":   fmt.Sprintf("Rendering %s in background.", req.SubjectID),
		"bucket":    h.bucket,
	})
}
