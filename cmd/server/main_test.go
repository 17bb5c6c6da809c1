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

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-render/internal/cloud"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

func TestRenderCommand_Example(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"render", "--example"})
	require.NoError(t, cmd.Execute())

	req, err := model.DecodeRenderRequest(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "ACME", req.SubjectID)
	require.Len(t, req.Scenes, 2)
	assert.Equal(t, 1, req.Scenes[0].Order)
}

func TestRenderCommand_RequiresRequest(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"render"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--request")
}

func TestReadRequest(t *testing.T) {
	payload, err := json.Marshal(model.GetExampleRequestPayload())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	fromFile, err := readRequest(nil, path)
	require.NoError(t, err)
	assert.Len(t, fromFile.Scenes, 2)

	fromStdin, err := readRequest(bytes.NewReader(payload), "-")
	require.NoError(t, err)
	assert.Equal(t, fromFile.SubjectID, fromStdin.SubjectID)

	_, err = readRequest(strings.NewReader(`{"data": []}`), "-")
	assert.Equal(t, model.KindInput, model.KindOf(err))

	_, err = readRequest(nil, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSetupOS_KeepsExistingEnvironment(t *testing.T) {
	t.Setenv(cloud.EnvConfigFilePrefix, "/etc/video-render")
	t.Setenv(cloud.EnvConfigRuntime, "prod")
	require.NoError(t, SetupOS())
	assert.Equal(t, "/etc/video-render", os.Getenv(cloud.EnvConfigFilePrefix))
	assert.Equal(t, "prod", os.Getenv(cloud.EnvConfigRuntime))
}
