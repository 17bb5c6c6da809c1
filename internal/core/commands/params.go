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

// Package commands holds the render workflow's steps. Each step is a
// cor.Command that reads its inputs from the chain context and writes its
// outputs back under the parameter names below.
package commands

// Context parameter names shared by the render commands.
const (
	RequestParam    = "__render_request__"
	RenderDirParam  = "__render_dir__"
	ScenesParam     = "__scene_work__"
	ClipsParam      = "__scene_clips__"
	FinalVideoParam = "__final_video__"
	DurationParam   = "__final_duration__"
	ResultParam     = "__render_result__"
	RecordParam     = "__render_record__"
	NoticeParam     = "__completion_notice__"

	// QueuedParam marks a render that has no caller waiting for the file.
	QueuedParam = "__queued_render__"
)

// GetRequestParameterName is the key of the decoded *model.RenderRequest.
func GetRequestParameterName() string {
	return RequestParam
}

// GetResultParameterName is the key of the *model.RenderResult.
func GetResultParameterName() string {
	return ResultParam
}
