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

package model

import "time"

const (
	RenderStatusSucceeded = "succeeded"
	RenderStatusFailed    = "failed"
)

// RenderRecord is the audit row written once per render run.
type RenderRecord struct {
	RenderID     string    `json:"render_id" bigquery:"render_id"`
	SubjectID    string    `json:"subject_id" bigquery:"subject_id"`
	ObjectName   string    `json:"object_name" bigquery:"object_name"`
	AssetAddress string    `json:"asset_address" bigquery:"asset_address"`
	SceneCount   int       `json:"scene_count" bigquery:"scene_count"`
	Duration     float64   `json:"duration_seconds" bigquery:"duration_seconds"`
	Status       string    `json:"status" bigquery:"status"`
	ErrorKind    string    `json:"error_kind" bigquery:"error_kind"`
	CreateDate   time.Time `json:"create_date" bigquery:"create_date"`
}

// NewRenderRecord builds the audit row for a finished run. err may be nil.
func NewRenderRecord(req *RenderRequest, result *RenderResult, err error) *RenderRecord {
	out := &RenderRecord{
		CreateDate: time.Now().UTC(),
		Status:     RenderStatusSucceeded,
	}
	if req != nil {
		out.RenderID = req.ID
		out.SubjectID = req.SubjectID
		out.SceneCount = len(req.Scenes)
	}
	if result != nil {
		out.ObjectName = result.ObjectName
		out.AssetAddress = result.AssetAddress
		out.Duration = result.Duration
	}
	if err != nil {
		out.Status = RenderStatusFailed
		out.ErrorKind = string(KindOf(err))
	}
	return out
}

// CompletionNotice is published when an asynchronous or queued render ends.
type CompletionNotice struct {
	RenderID     string `json:"render_id"`
	SubjectID    string `json:"subject_id"`
	OK           bool   `json:"ok"`
	AssetAddress string `json:"asset_address,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewCompletionNotice summarizes a run for downstream subscribers.
func NewCompletionNotice(record *RenderRecord, err error) *CompletionNotice {
	out := &CompletionNotice{
		RenderID:     record.RenderID,
		SubjectID:    record.SubjectID,
		OK:           err == nil,
		AssetAddress: record.AssetAddress,
		ErrorKind:    record.ErrorKind,
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
