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
	"context"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-render/internal/cloud"
	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
)

// SetupListeners attaches the render workflow to every configured
// subscription and starts receiving in the background.
func SetupListeners(ctx context.Context, config *cloud.Config, cloudClients *cloud.ServiceClients, render cor.Command) {
	for name, listener := range cloudClients.PubSubListeners {
		sub := config.TopicSubscriptions[name]
		listener.SetCommand(render)
		listener.SetTimeout(time.Duration(sub.TimeoutInSeconds) * time.Second)
		slog.InfoContext(ctx, "starting listener", "name", name, "subscription", sub.Name, "timeout_seconds", sub.TimeoutInSeconds)
		listener.Listen(ctx)
	}
}
