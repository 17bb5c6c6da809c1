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
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Stats counts renders handled since the process started.
type Stats struct {
	started   time.Time
	inFlight  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

func NewStats() *Stats {
	return &Stats{started: time.Now()}
}

func (s *Stats) begin() { s.inFlight.Add(1) }

func (s *Stats) end(err error) {
	s.inFlight.Add(-1)
	if err != nil {
		s.failed.Add(1)
	} else {
		s.succeeded.Add(1)
	}
}

// StatsSnapshot is the body of GET /stats.
type StatsSnapshot struct {
	InFlight      int64   `json:"in_flight"`
	Succeeded     int64   `json:"succeeded"`
	Failed        int64   `json:"failed"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		InFlight:      s.inFlight.Load(),
		Succeeded:     s.succeeded.Load(),
		Failed:        s.failed.Load(),
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
}

// Dashboard registers the health and statistics endpoints.
func Dashboard(r *gin.RouterGroup, name string, stats *Stats) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "name": name})
	})
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, stats.Snapshot())
	})
}
