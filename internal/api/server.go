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

package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewEngine wires the routes. /render is served both at the root, where
// existing orchestrators post, and under /api/v1.
func NewEngine(name string, handler *RenderHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(name))
	r.Use(cors.Default())

	handler.RenderRouter(r)

	apiV1 := r.Group("/api/v1")
	{
		handler.RenderRouter(apiV1)
		Dashboard(apiV1, name, handler.stats)
	}
	return r
}
