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

package test

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

// MemoryPublisher keeps published files in memory and returns a fake
// address for each.
type MemoryPublisher struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Err     error
	Calls   int
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{Objects: make(map[string][]byte)}
}

func (p *MemoryPublisher) Publish(_ context.Context, localPath, objectName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	if p.Err != nil {
		return "", p.Err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	p.Objects[objectName] = data
	return "memory://renders/" + objectName, nil
}

// RecordingNotifier collects completion notices.
type RecordingNotifier struct {
	mu      sync.Mutex
	Notices []model.CompletionNotice
	Attrs   []map[string]string
	Err     error
}

func (n *RecordingNotifier) Send(_ context.Context, data []byte, attributes map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	var notice model.CompletionNotice
	if err := json.Unmarshal(data, &notice); err != nil {
		return err
	}
	n.Notices = append(n.Notices, notice)
	n.Attrs = append(n.Attrs, attributes)
	return nil
}

// Sent returns a copy of the notices received so far.
func (n *RecordingNotifier) Sent() []model.CompletionNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.CompletionNotice(nil), n.Notices...)
}

// RecordingInserter collects rows passed to Put.
type RecordingInserter struct {
	mu   sync.Mutex
	Rows []interface{}
	Err  error
}

func (r *RecordingInserter) Put(_ context.Context, src interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Rows = append(r.Rows, src)
	return nil
}
