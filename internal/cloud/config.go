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

// Package cloud holds the service configuration and the clients for the
// external services the renderer talks to: object storage, Pub/Sub,
// BigQuery and the speech model.
package cloud

import (
	"fmt"
	"strings"
	"time"
)

// Storage providers.
const (
	StorageGCS  = "gcs"
	StorageS3   = "s3"
	StorageNone = "none"
)

// Narration providers.
const (
	NarrationGemini  = "gemini"
	NarrationSilence = "silence"
)

// BigQueryDataSource names the optional render audit table.
type BigQueryDataSource struct {
	DatasetName string `toml:"dataset"`      // Empty disables the audit row.
	RenderTable string `toml:"render_table"` // Table receiving one row per render.
}

// TopicSubscription describes a Pub/Sub subscription the server listens on.
type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // Upper bound for one render triggered by a message.
}

type Video struct {
	FPS                  int    `toml:"fps"`
	Width                int    `toml:"width"`
	Height               int    `toml:"height"`
	FFmpegBinary         string `toml:"ffmpeg_binary"`
	FFprobeBinary        string `toml:"ffprobe_binary"`
	EncodeTimeoutSeconds int    `toml:"encode_timeout_seconds"`
	BlurRadius           int    `toml:"blur_radius"`
}

type Subtitles struct {
	MaxCharsPerLine  int     `toml:"max_chars_per_line"`
	MaxLinesPerChunk int     `toml:"max_lines_per_chunk"`
	FontSize         float64 `toml:"font_size"`
	TopOffset        int     `toml:"top_offset"`
	Padding          int     `toml:"padding"`
	LineSpacing      float64 `toml:"line_spacing"`
	Outline          int     `toml:"outline"`
	BoxOpacity       float64 `toml:"box_opacity"`
}

type InfoPanel struct {
	Enabled      bool    `toml:"enabled"`
	FontSize     float64 `toml:"font_size"`
	WidthRatio   float64 `toml:"width_ratio"`
	BottomMargin int     `toml:"bottom_margin"`
	Padding      int     `toml:"padding"`
	Border       int     `toml:"border"`
	Opacity      float64 `toml:"opacity"`
}

// Assets locates the font and logo. Either may be a local path or an
// http(s) URL, which is downloaded once into CacheDir.
type Assets struct {
	FontPath            string  `toml:"font_path"`
	LogoPath            string  `toml:"logo_path"`
	CacheDir            string  `toml:"cache_dir"`
	LogoWidthRatio      float64 `toml:"logo_width_ratio"`
	LogoMargin          int     `toml:"logo_margin"`
	LogoOpacity         float64 `toml:"logo_opacity"`
	FetchTimeoutSeconds int     `toml:"fetch_timeout_seconds"`
}

type Narration struct {
	Provider         string  `toml:"provider"`
	Model            string  `toml:"model"`
	Voice            string  `toml:"voice"`
	LanguageCode     string  `toml:"language_code"`
	FallbackDuration float64 `toml:"fallback_duration"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
	RateLimit        int     `toml:"rate_limit"` // Requests per minute.
	MaxRetries       int     `toml:"max_retries"`
}

type Storage struct {
	Provider             string `toml:"provider"`
	Bucket               string `toml:"bucket"`
	Prefix               string `toml:"prefix"`
	Public               bool   `toml:"public"`
	SignedURLTTLSeconds  int    `toml:"signed_url_ttl_seconds"`
	UploadTimeoutSeconds int    `toml:"upload_timeout_seconds"`
	Region               string `toml:"region"`   // S3 only.
	Endpoint             string `toml:"endpoint"` // S3-compatible endpoint override.
}

type Notifications struct {
	Topic string `toml:"topic"` // Empty disables completion notices.
}

// Config is the application configuration, decoded from TOML and then
// overridden by the deployment environment variables.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		SignerServiceAccountEmail string `toml:"signer_service_account_email"` // Signs V4 URLs through IAM when set.
		CredentialsJSON           string `toml:"credentials_json"`             // Service account key; normally from GCP_SA_JSON.
		Port                      int    `toml:"port"`
		LogLevel                  string `toml:"log_level"`
		LogFile                   string `toml:"log_file"`
		TelemetryEnabled          bool   `toml:"telemetry_enabled"`
		SceneWorkers              int    `toml:"scene_workers"`
		ScratchDir                string `toml:"scratch_dir"`
		RequestTimeoutSeconds     int    `toml:"request_timeout_seconds"`
		ScratchMaxAgeMinutes      int    `toml:"scratch_max_age_minutes"` // Leftover scratch entries older than this are swept; 0 disables.

		TraceSampleRatio float64 `toml:"trace_sample_ratio"` // Share of new root traces exported; 0 or >= 1 exports all.
	} `toml:"application"`
	Video              Video                        `toml:"video"`
	Subtitles          Subtitles                    `toml:"subtitles"`
	InfoPanel          InfoPanel                    `toml:"info_panel"`
	Assets             Assets                       `toml:"assets"`
	Narration          Narration                    `toml:"narration"`
	Storage            Storage                      `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	Notifications      Notifications                `toml:"notifications"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Keyed by logical name, e.g. "RenderRequests".
}

// NewConfig returns a Config holding the built-in defaults; files and the
// environment are applied on top.
func NewConfig() *Config {
	c := &Config{TopicSubscriptions: make(map[string]TopicSubscription)}
	c.Application.Name = "video-render"
	c.Application.Port = 8080
	c.Application.LogLevel = "info"
	c.Application.SceneWorkers = 1
	c.Application.RequestTimeoutSeconds = 900
	c.Application.ScratchMaxAgeMinutes = 120
	c.Video = Video{FPS: 30, Width: 1080, Height: 1920, FFmpegBinary: "ffmpeg", FFprobeBinary: "ffprobe", EncodeTimeoutSeconds: 300, BlurRadius: 20}
	c.Subtitles = Subtitles{MaxCharsPerLine: 32, MaxLinesPerChunk: 3, FontSize: 56, TopOffset: 220, Padding: 24, LineSpacing: 1.25, Outline: 3, BoxOpacity: 0.55}
	c.InfoPanel = InfoPanel{Enabled: true, FontSize: 40, WidthRatio: 0.82, BottomMargin: 160, Padding: 28, Border: 3, Opacity: 0.65}
	c.Assets = Assets{LogoWidthRatio: 0.18, LogoMargin: 40, LogoOpacity: 0.8, FetchTimeoutSeconds: 30}
	c.Narration = Narration{Provider: NarrationGemini, Model: "gemini-2.5-flash-preview-tts", Voice: "Kore", LanguageCode: "th-TH", FallbackDuration: 3.0, TimeoutSeconds: 60, RateLimit: 60, MaxRetries: 3}
	c.Storage = Storage{Provider: StorageGCS, Prefix: "renders/", SignedURLTTLSeconds: 3600, UploadTimeoutSeconds: 300}
	return c
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Video.FPS <= 0:
		return fmt.Errorf("video.fps must be positive, got %d", c.Video.FPS)
	case c.Video.Width <= 0 || c.Video.Height <= 0:
		return fmt.Errorf("video size must be positive, got %dx%d", c.Video.Width, c.Video.Height)
	case c.Video.Width%2 != 0 || c.Video.Height%2 != 0:
		return fmt.Errorf("video size must be even for yuv420p, got %dx%d", c.Video.Width, c.Video.Height)
	case c.Subtitles.MaxCharsPerLine < 1 || c.Subtitles.MaxLinesPerChunk < 1:
		return fmt.Errorf("subtitle budgets must be >= 1, got %d chars x %d lines", c.Subtitles.MaxCharsPerLine, c.Subtitles.MaxLinesPerChunk)
	case c.Narration.FallbackDuration <= 0:
		return fmt.Errorf("narration.fallback_duration must be positive")
	case c.Application.SceneWorkers < 1:
		return fmt.Errorf("application.scene_workers must be >= 1")
	case c.Assets.FontPath == "":
		return fmt.Errorf("assets.font_path is required")
	}
	switch c.Storage.Provider {
	case StorageGCS, StorageS3, StorageNone:
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	switch c.Narration.Provider {
	case NarrationGemini, NarrationSilence:
	default:
		return fmt.Errorf("unknown narration.provider %q", c.Narration.Provider)
	}
	return nil
}

// FromBucket reports whether the font or logo lives in Cloud Storage.
func (a Assets) FromBucket() bool {
	return strings.HasPrefix(a.FontPath, "gs://") || strings.HasPrefix(a.LogoPath, "gs://")
}

// ListensForRequests reports whether any named subscription is configured.
func (c *Config) ListensForRequests() bool {
	for _, sub := range c.TopicSubscriptions {
		if sub.Name != "" {
			return true
		}
	}
	return false
}

// StorageConfigured reports whether finished renders can be published.
func (c *Config) StorageConfigured() bool {
	return c.Storage.Provider != StorageNone && c.Storage.Bucket != ""
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c *Config) EncodeTimeout() time.Duration    { return seconds(c.Video.EncodeTimeoutSeconds) }
func (c *Config) NarrationTimeout() time.Duration { return seconds(c.Narration.TimeoutSeconds) }
func (c *Config) UploadTimeout() time.Duration    { return seconds(c.Storage.UploadTimeoutSeconds) }
func (c *Config) SignedURLTTL() time.Duration     { return seconds(c.Storage.SignedURLTTLSeconds) }
func (c *Config) FetchTimeout() time.Duration     { return seconds(c.Assets.FetchTimeoutSeconds) }
func (c *Config) RequestTimeout() time.Duration   { return seconds(c.Application.RequestTimeoutSeconds) }
func (c *Config) ScratchMaxAge() time.Duration    { return time.Duration(c.Application.ScratchMaxAgeMinutes) * time.Minute }
