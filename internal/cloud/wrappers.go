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

package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ContentGenerator is the part of *genai.Models the speech wrapper uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// QuotaAwareSpeechModel wraps a speech-capable model with a client-side rate
// limit and a bounded number of retries. Waiting for quota blocks on the
// limiter and honours ctx.
type QuotaAwareSpeechModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             ContentGenerator
	RateLimit               *rate.Limiter
	MaxRetries              int
	RetryDelay              time.Duration
}

// NewQuotaAwareSpeechModel limits calls to requestsPerMinute; zero or less
// means unlimited.
func NewQuotaAwareSpeechModel(config *genai.GenerateContentConfig, name string, handle ContentGenerator, requestsPerMinute, maxRetries int) *QuotaAwareSpeechModel {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	return &QuotaAwareSpeechModel{
		GenerativeContentConfig: config,
		ModelName:               name,
		ModelHandle:             handle,
		RateLimit:               rate.NewLimiter(limit, 1),
		MaxRetries:              maxRetries,
		RetryDelay:              2 * time.Second,
	}
}

// GenerateContent calls the model, retrying failed attempts with a linear
// backoff. A nil config uses the wrapper's default.
func (q *QuotaAwareSpeechModel) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if config == nil {
		config = q.GenerativeContentConfig
	}
	var lastErr error
	for attempt := 0; attempt <= q.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.WarnContext(ctx, "retrying speech generation", "model", q.ModelName, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(q.RetryDelay * time.Duration(attempt)):
			}
		}
		if err := q.RateLimit.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := q.ModelHandle.GenerateContent(ctx, q.ModelName, contents, config)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed generation after %d attempts: %w", q.MaxRetries+1, lastErr)
}
