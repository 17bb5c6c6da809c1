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

// Package workflow assembles the render commands into the pipelines the
// server runs.
package workflow

import (
	goctx "context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jaycherian/gcp-go-video-render/internal/cloud"
	"github.com/jaycherian/gcp-go-video-render/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/layers"
	"github.com/jaycherian/gcp-go-video-render/internal/core/media"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
	"github.com/jaycherian/gcp-go-video-render/internal/core/narration"
	"github.com/jaycherian/gcp-go-video-render/internal/core/subtitle"
)

const (
	finalizeTimeout = 30 * time.Second
	notifyParam     = "__notify__"
)

var errNoResult = errors.New("render produced no result")

// RenderWorkflow turns a render request into a published video.
//
// The main chain is: read request, create the scratch directory, resolve
// scene images, run the per-scene chain (narrate, subtitles, layers,
// compose) for every scene, concatenate the clips and publish the result.
// After the main chain, whatever its outcome, a best-effort finalize chain
// writes the audit row and the completion notice. Finalize failures are
// logged and never change the outcome of the render.
type RenderWorkflow struct {
	cor.BaseCommand
	config   *cloud.Config
	chain    cor.Chain
	finalize cor.Chain
	timeout  time.Duration
}

// NewRenderWorkflow builds every component of the render pipeline from config.
//
// Inputs:
//   - ctx: Bounds the font and logo fetches.
//   - config: The loaded configuration.
//   - clients: The cloud clients. Missing clients disable the features that
//     need them: storage, notices, audit rows and Gemini narration.
//   - runner: Executes ffmpeg and ffprobe. nil runs them as subprocesses.
//
// Outputs:
//   - *RenderWorkflow: The workflow, used by HTTP, the CLI and Pub/Sub.
//   - error: The font could not be fetched or parsed. A logo that cannot be
//     fetched is skipped with a warning.
func NewRenderWorkflow(ctx goctx.Context, config *cloud.Config, clients *cloud.ServiceClients, runner media.Runner) (*RenderWorkflow, error) {
	if clients == nil {
		clients = &cloud.ServiceClients{}
	}
	if runner == nil {
		runner = &media.ExecRunner{Timeout: config.EncodeTimeout()}
	}

	cache := layers.NewAssetCache(assetCacheDir(config), &http.Client{Timeout: config.FetchTimeout()})
	if clients.StorageClient != nil {
		cache.Objects = cloud.GCSObjectOpener(clients.StorageClient)
	}

	fontData, err := cache.Bytes(ctx, config.Assets.FontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load font %s: %w", config.Assets.FontPath, err)
	}
	renderer, err := layers.NewRenderer(fontData, config.Video.Width, config.Video.Height, StyleFromConfig(config))
	if err != nil {
		return nil, err
	}

	var logo *media.Logo
	if config.Assets.LogoPath != "" {
		if path, err := cache.Path(ctx, config.Assets.LogoPath); err != nil {
			slog.WarnContext(ctx, "logo unavailable, renders will not carry one", "logo", config.Assets.LogoPath, "error", err)
		} else {
			logo = &media.Logo{
				Path:       path,
				WidthRatio: config.Assets.LogoWidthRatio,
				Margin:     config.Assets.LogoMargin,
				Opacity:    config.Assets.LogoOpacity,
			}
		}
	}

	prober := media.NewProber(runner, config.Video.FFprobeBinary)
	composer := media.NewComposer(runner, config.Video.FFmpegBinary, media.DefaultProfile(config.Video.Width, config.Video.Height, config.Video.FPS))
	composer.BlurRadius = config.Video.BlurRadius

	narrator := &narration.Narrator{
		Synthesizer: synthesizer(config, clients),
		Prober:      prober,
		Voice:       config.Narration.Voice,
		Fallback:    config.Narration.FallbackDuration,
		Timeout:     config.NarrationTimeout(),
	}
	slog.InfoContext(ctx, "render workflow ready", "narration", narrator.Synthesizer.Name(),
		"storage", config.Storage.Provider, "logo", logo != nil, "workers", config.Application.SceneWorkers)

	// Per-scene chain, run once per scene by the fan-out with the
	// scene's *model.SceneWork as its input.
	scene := cor.NewBaseChain("render-scene")
	scene.AddCommand(commands.NewSceneNarrator("narrate-scene", narrator))
	scene.AddCommand(commands.NewSubtitleBuilder("build-subtitles", subtitle.NewChunker(config.Subtitles.MaxCharsPerLine, config.Subtitles.MaxLinesPerChunk)))
	scene.AddCommand(commands.NewLayerRenderer("render-layers", renderer, config.InfoPanel.Enabled))
	scene.AddCommand(commands.NewSceneComposer("compose-scene", composer, logo))

	render := cor.NewBaseChain("render-video")
	render.AddCommand(commands.NewRenderRequestReader("read-render-request"))
	render.AddCommand(commands.NewRenderWorkspace("create-workspace", config.Application.ScratchDir))
	render.AddCommand(commands.NewSceneImageResolver("resolve-scene-images", config.Video.Width, config.Video.Height))
	render.AddCommand(commands.NewSceneFanOut("render-scenes", scene, config.Application.SceneWorkers))
	render.AddCommand(commands.NewSceneAssembler("assemble-scenes", media.NewAssembler(runner, config.Video.FFmpegBinary, prober)))
	render.AddCommand(commands.NewAssetPublisher("publish-render", clients.Publisher, config.Application.ScratchDir))

	out := &RenderWorkflow{
		BaseCommand: *cor.NewBaseCommand("render-workflow"),
		config:      config,
		chain:       render,
		timeout:     config.RequestTimeout(),
	}
	out.finalize = finalizeChain(config, clients)
	return out, nil
}

func finalizeChain(config *cloud.Config, clients *cloud.ServiceClients) cor.Chain {
	var steps []cor.Command
	if clients.BiqQueryClient != nil && config.BigQueryDataSource.RenderTable != "" {
		inserter := clients.BiqQueryClient.Dataset(config.BigQueryDataSource.DatasetName).Table(config.BigQueryDataSource.RenderTable).Inserter()
		steps = append(steps, commands.NewRenderPersistToBigQuery("write-to-bigquery", inserter))
	}
	if clients.Notifier != nil {
		steps = append(steps, commands.NewRenderNotifier("notify-completion", clients.Notifier))
	}
	if len(steps) == 0 {
		return nil
	}
	chain := cor.NewBaseChain("finalize-render").ContinueOnFailure(true)
	for _, step := range steps {
		chain.AddCommand(step)
	}
	return chain
}

func synthesizer(config *cloud.Config, clients *cloud.ServiceClients) narration.Synthesizer {
	if config.Narration.Provider == cloud.NarrationGemini && clients.SpeechModel != nil {
		return narration.NewGeminiSynthesizer(clients.SpeechModel, config.Narration.LanguageCode)
	}
	return narration.NewSilenceSynthesizer()
}

func assetCacheDir(config *cloud.Config) string {
	if config.Assets.CacheDir != "" {
		return config.Assets.CacheDir
	}
	return filepath.Join(os.TempDir(), "video-render-assets")
}

// StyleFromConfig maps the subtitle and panel settings onto a layer style.
func StyleFromConfig(config *cloud.Config) layers.Style {
	return layers.Style{
		SubtitleFontSize: config.Subtitles.FontSize,
		SubtitleTop:      config.Subtitles.TopOffset,
		SubtitlePadding:  config.Subtitles.Padding,
		LineSpacing:      config.Subtitles.LineSpacing,
		Outline:          config.Subtitles.Outline,
		BoxAlpha:         alpha(config.Subtitles.BoxOpacity),
		PanelFontSize:    config.InfoPanel.FontSize,
		PanelWidthRatio:  config.InfoPanel.WidthRatio,
		PanelMargin:      config.InfoPanel.BottomMargin,
		PanelPadding:     config.InfoPanel.Padding,
		PanelBorder:      config.InfoPanel.Border,
		PanelAlpha:       alpha(config.InfoPanel.Opacity),
	}
}

func alpha(opacity float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, opacity)) * 255))
}

// Execute runs a queued render. The completion notice is always sent when a
// notification topic is configured. Queued requests must not set
// return_file: the video has to be published.
func (w *RenderWorkflow) Execute(context cor.Context) {
	context.Add(notifyParam, true)
	context.Add(commands.QueuedParam, true)
	w.execute(context)
}

// Run renders input, which may be a *model.RenderRequest or a raw JSON
// body. The scratch directory is removed before Run returns. notify asks
// for a completion notice, which synchronous callers do not need.
func (w *RenderWorkflow) Run(ctx goctx.Context, input interface{}, notify bool) (*model.RenderResult, error) {
	if w.timeout > 0 {
		var cancel goctx.CancelFunc
		ctx, cancel = goctx.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(ctx)
	chainCtx.Add(cor.CtxIn, input)
	chainCtx.Add(notifyParam, notify)
	defer chainCtx.Close()

	w.execute(chainCtx)

	if err := chainCtx.FirstError(); err != nil {
		return nil, err
	}
	return chainCtx.Get(commands.ResultParam).(*model.RenderResult), nil
}

func (w *RenderWorkflow) execute(context cor.Context) {
	start := time.Now()
	w.chain.Execute(context)
	if !context.HasErrors() && context.Get(commands.ResultParam) == nil {
		context.AddError(w.GetName(), model.NewError(model.KindInternal, "render", errNoResult))
	}

	req, _ := context.Get(commands.RequestParam).(*model.RenderRequest)
	result, _ := context.Get(commands.ResultParam).(*model.RenderResult)
	err := context.FirstError()
	record := model.NewRenderRecord(req, result, err)

	if err != nil {
		slog.ErrorContext(context.GetContext(), "render failed", "render_id", record.RenderID,
			"error", err, "error_kind", model.KindOf(err), "diagnostic", model.DiagnosticOf(err))
		if counter := w.GetErrorCounter(); counter != nil {
			counter.Add(context.GetContext(), 1)
		}
	} else {
		slog.InfoContext(context.GetContext(), "render finished", "render_id", record.RenderID,
			"object_name", record.ObjectName, "seconds", record.Duration, "elapsed", time.Since(start).String())
		w.Succeed(context)
	}

	if w.finalize == nil {
		return
	}
	// The finalize steps run even when the render was cancelled or timed out.
	ctx, cancel := goctx.WithTimeout(goctx.WithoutCancel(context.GetContext()), finalizeTimeout)
	defer cancel()

	finalCtx := cor.NewBaseContext()
	finalCtx.SetContext(ctx)
	finalCtx.Add(commands.RecordParam, record)
	if notify, _ := context.Get(notifyParam).(bool); notify {
		finalCtx.Add(commands.NoticeParam, model.NewCompletionNotice(record, err))
	}
	w.finalize.Execute(finalCtx)
	for name, e := range finalCtx.GetErrors() {
		slog.WarnContext(ctx, "render finalize step failed", "command", name, "render_id", record.RenderID, "error", e)
	}
}
