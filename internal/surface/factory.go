/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package surface

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gg/text"

	applog "sprayeditor/internal/log"
)

// Containers tracks which host mount points currently exist.
type Containers struct {
	mu      sync.RWMutex
	mounted map[string]bool
}

func NewContainers(names ...string) *Containers {
	c := &Containers{mounted: make(map[string]bool)}
	for _, n := range names {
		c.mounted[n] = true
	}
	return c
}

func (c *Containers) Mount(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mounted[name] = true
}

func (c *Containers) Unmount(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.mounted, name)
}

func (c *Containers) Mounted(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mounted[name]
}

// GGFactory creates Canvas surfaces inside mounted containers.
type GGFactory struct {
	Containers *Containers
	// Font is optional; without it text objects are kept but not rasterised.
	Font *text.FontSource

	unavailable atomic.Bool
	seq         atomic.Int64
	live        atomic.Int64
}

func NewGGFactory(containers *Containers, font *text.FontSource) *GGFactory {
	return &GGFactory{Containers: containers, Font: font}
}

// SetAvailable toggles the whole backend, simulating a host without a drawing library.
func (f *GGFactory) SetAvailable(ok bool) { f.unavailable.Store(!ok) }

// Live returns the number of surfaces created and not yet disposed.
func (f *GGFactory) Live() int { return int(f.live.Load()) }

func (f *GGFactory) Create(container string, width, height int, background string) (Surface, error) {
	if f.unavailable.Load() {
		return nil, fmt.Errorf("%w: drawing backend not loaded", ErrSurfaceUnavailable)
	}
	if f.Containers == nil || !f.Containers.Mounted(container) {
		return nil, fmt.Errorf("%w: container %q not mounted", ErrSurfaceUnavailable, container)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", ErrSurfaceUnavailable, width, height)
	}
	if background != "" && !ValidColor(background) {
		return nil, fmt.Errorf("%w: invalid background %q", ErrSurfaceUnavailable, background)
	}
	id := container + "-" + strconv.FormatInt(f.seq.Add(1), 10)
	c := NewCanvas(id, width, height, background, f.Font)
	f.live.Add(1)
	c.onDispose = func() { f.live.Add(-1) }
	if err := c.Render(); err != nil {
		c.Dispose()
		return nil, fmt.Errorf("%w: %v", ErrSurfaceUnavailable, err)
	}
	applog.WithComponent("surface").Debug("surface created",
		slog.String("surface", id), slog.Int("width", width), slog.Int("height", height))
	return c, nil
}
