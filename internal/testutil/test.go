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

// Package test provides configuration, fakes and sample payloads shared by
// the test suites.
package test

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/jaycherian/gcp-go-video-render/internal/cloud"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

// StateManager caches the test configuration so the TOML files are read once.
type StateManager struct {
	once   sync.Once
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is set.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// RepoRoot walks up from the working directory to the directory holding go.mod.
func RepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// SetupOS points the configuration loader at configs/.env.test.toml.
func SetupOS() (err error) {
	root, err := RepoRoot()
	if err != nil {
		return err
	}
	if err = os.Setenv(cloud.EnvConfigFilePrefix, filepath.Join(root, "configs")); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// FontFile writes the Go Regular font to dir and returns its path.
func FontFile(dir string) (string, error) {
	path := filepath.Join(dir, "goregular.ttf")
	return path, os.WriteFile(path, goregular.TTF, 0o644)
}

// GetConfig returns the shared test configuration. Storage is disabled,
// narration is silent and the font is the bundled Go Regular face.
// Callers that change fields should copy the struct first.
func GetConfig() *cloud.Config {
	state.once.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		font, err := FontFile(os.TempDir())
		if err != nil {
			log.Fatalf("failed to write test font: %v\n", err)
		}
		config.Assets.FontPath = font
		if err := config.Validate(); err != nil {
			log.Fatalf("invalid test configuration: %v\n", err)
		}
		state.config = config
	})
	return state.config
}

// CopyConfig returns a shallow copy of the shared test configuration.
func CopyConfig() *cloud.Config {
	c := *GetConfig()
	return &c
}

// GetTestRenderRequest returns a two-scene request body in the legacy
// orchestrator's wire format. Scenes are listed out of order.
func GetTestRenderRequest() string {
	return `{
  "stock_symbol": "PTT",
  "trade_setup": {"trend": "Uptrend", "entry": 34.25, "timeframe": "1D"},
  "data": [
    {
      "scene_number": 2,
      "script": "แนวรับสำคัญอยู่ที่ 33.50 บาท ถ้ายืนได้มีโอกาสไปต่อ",
      "trade_setup": {"stop_loss": 33.5, "take_profit": 36.0}
    },
    {
      "scene_number": 1,
      "script": "Hello world"
    }
  ]
}`
}

// GetTestRenderRequestWithImages is GetTestRenderRequest with generated
// images attached to both scenes.
func GetTestRenderRequestWithImages(width, height int) (string, error) {
	payload := model.RenderRequestPayload{
		SubjectID:     "ACME",
		GlobalMetrics: map[string]interface{}{"trend": "Sideways"},
		Scenes: []model.ScenePayload{
			{Order: 1, Script: "Hello world", Image: base64.StdEncoding.EncodeToString(model.GetExampleImage(width, height))},
			{Order: 2, Script: "Second scene", Image: "data:image/png;base64," + base64.StdEncoding.EncodeToString(model.GetExampleImage(height, width))},
		},
	}
	data, err := json.Marshal(payload)
	return string(data), err
}
