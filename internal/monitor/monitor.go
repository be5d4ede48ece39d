/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package monitor samples editor performance (frame rate, heap, canvas size and
// render time) into a bounded history and gates its overlay behind an explicit enable.
package monitor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	applog "sprayeditor/internal/log"
	"sprayeditor/internal/session"
)

// DefaultHistory is the per-metric history length.
const DefaultHistory = 100

// Source is the live editor. *session.Session satisfies it.
type Source interface {
	MeasureSurface() (session.SurfaceStats, bool)
	Optimize() int
}

// Poster schedules work on the event loop.
type Poster interface {
	Post(fn func()) bool
}

// Metrics is the latest sample.
type Metrics struct {
	FPS           float64   `json:"fps"`
	MemoryMB      float64   `json:"memoryUsage"`
	CanvasObjects int       `json:"canvasObjects"`
	RenderTimeMs  float64   `json:"renderTime"`
	LastUpdate    time.Time `json:"lastUpdate"`
}

// History holds the most recent samples per metric, oldest first.
type History struct {
	FPS        []float64 `json:"fps"`
	Memory     []float64 `json:"memory"`
	RenderTime []float64 `json:"renderTime"`
}

// Averages are means over History.
type Averages struct {
	FPS        float64 `json:"fps"`
	Memory     float64 `json:"memory"`
	RenderTime float64 `json:"renderTime"`
}

// Report is the exported form.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Current   Metrics   `json:"metrics"`
	History   History   `json:"history"`
	Averages  Averages  `json:"averages"`
}

// Monitor collects samples. Sample and Optimize touch the session and must run
// on its event loop; the rest is safe from any goroutine.
type Monitor struct {
	mu      sync.Mutex
	src     Source
	limit   int
	cur     Metrics
	hist    History
	frames  int
	since   time.Time
	enabled bool
	visible bool
	now     func() time.Time
	heapMB  func() float64
	log     *slog.Logger
}

func New(src Source, historyLen int) *Monitor {
	if historyLen <= 0 {
		historyLen = DefaultHistory
	}
	m := &Monitor{
		src:    src,
		limit:  historyLen,
		now:    time.Now,
		heapMB: readHeapMB,
		log:    applog.WithComponent("monitor"),
	}
	m.cur.LastUpdate = m.now()
	m.since = m.now()
	return m
}

func readHeapMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return round2(float64(ms.HeapAlloc) / 1024 / 1024)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Frame counts one presented frame. FPS is recomputed once a second.
func (m *Monitor) Frame() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames++
	now := m.now()
	if el := now.Sub(m.since); el >= time.Second {
		m.cur.FPS = math.Round(float64(m.frames) / el.Seconds())
		m.frames = 0
		m.since = now
	}
}

// Sample takes one measurement. Canvas figures are zero while the editor is closed.
func (m *Monitor) Sample() Metrics {
	var stats session.SurfaceStats
	var ok bool
	if m.src != nil {
		stats, ok = m.src.MeasureSurface()
	}
	heap := m.heapMB()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur.MemoryMB = heap
	m.cur.CanvasObjects = 0
	m.cur.RenderTimeMs = 0
	if ok {
		m.cur.CanvasObjects = stats.Objects
		m.cur.RenderTimeMs = round2(float64(stats.RenderTime.Microseconds()) / 1000)
	}
	m.cur.LastUpdate = m.now()
	m.hist.FPS = push(m.hist.FPS, m.cur.FPS, m.limit)
	m.hist.Memory = push(m.hist.Memory, m.cur.MemoryMB, m.limit)
	m.hist.RenderTime = push(m.hist.RenderTime, m.cur.RenderTimeMs, m.limit)
	return m.cur
}

func push(h []float64, v float64, limit int) []float64 {
	h = append(h, v)
	if len(h) > limit {
		h = append(h[:0:0], h[len(h)-limit:]...)
	}
	return h
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func (m *Monitor) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

func (m *Monitor) Averages() Averages {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Averages{FPS: mean(m.hist.FPS), Memory: mean(m.hist.Memory), RenderTime: mean(m.hist.RenderTime)}
}

// Report returns copies of the current metrics, history and averages.
func (m *Monitor) Report() Report {
	avg := m.Averages()
	m.mu.Lock()
	defer m.mu.Unlock()
	return Report{
		Timestamp: m.now(),
		Current:   m.cur,
		History: History{
			FPS:        append([]float64{}, m.hist.FPS...),
			Memory:     append([]float64{}, m.hist.Memory...),
			RenderTime: append([]float64{}, m.hist.RenderTime...),
		},
		Averages: avg,
	}
}

// Export writes the report as indented JSON.
func (m *Monitor) Export(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m.Report())
}

// Reset drops all history and zeroes the metrics.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hist = History{}
	m.cur = Metrics{LastUpdate: m.now()}
	m.frames = 0
	m.since = m.now()
	m.log.Debug("metrics reset")
}

// EnableToggle allows the overlay to be shown.
func (m *Monitor) EnableToggle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

// DisableToggle blocks the overlay and hides it if shown.
func (m *Monitor) DisableToggle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
	m.visible = false
}

// Toggle flips overlay visibility. It is refused until EnableToggle.
func (m *Monitor) Toggle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		m.log.Debug("overlay toggle blocked")
		return false
	}
	m.visible = !m.visible
	return true
}

func (m *Monitor) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// HandleKey toggles the overlay on Ctrl+P or Cmd+P.
func (m *Monitor) HandleKey(k session.Key) bool {
	if !(k.Ctrl || k.Meta) || (k.Name != "p" && k.Name != "P") {
		return false
	}
	return m.Toggle()
}

// Optimize removes invisible objects from the open canvas.
func (m *Monitor) Optimize() int {
	if m.src == nil {
		return 0
	}
	return m.src.Optimize()
}

// Run samples every interval on loop until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, loop Poster) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			loop.Post(func() { m.Sample() })
		}
	}
}
