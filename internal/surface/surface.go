/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package surface wraps a vector drawing canvas behind the small contract the editor
// session needs: create/dispose, add/remove objects, full-state serialize/load,
// render, image export and structural-mutation notifications.
package surface

import "errors"

// ErrSurfaceUnavailable is returned when the target container is not mounted
// or the rendering backend is not loaded.
var ErrSurfaceUnavailable = errors.New("surface unavailable")

// ErrDisposed is returned by operations on a disposed surface.
var ErrDisposed = errors.New("surface disposed")

// MutationKind classifies structural changes observed on a surface.
type MutationKind int

const (
	ObjectAdded MutationKind = iota + 1
	ObjectRemoved
	ObjectModified
	StrokeCompleted
	Cleared
)

func (k MutationKind) String() string {
	switch k {
	case ObjectAdded:
		return "object_added"
	case ObjectRemoved:
		return "object_removed"
	case ObjectModified:
		return "object_modified"
	case StrokeCompleted:
		return "stroke_completed"
	case Cleared:
		return "cleared"
	}
	return "unknown"
}

// Mutation is delivered to listeners after every structural change.
type Mutation struct {
	Kind     MutationKind
	ObjectID string
}

// Surface is one live drawing canvas.
type Surface interface {
	ID() string
	Size() (width, height int)
	Add(o Object) (string, error)
	Update(o Object) error
	Remove(id string) bool
	Objects() []Object
	Clear() error
	Serialize() ([]byte, error)
	// LoadSnapshot replaces the whole state and re-renders. It does not notify listeners.
	LoadSnapshot(blob []byte) error
	Render() error
	ExportImage(format Format, quality float64) ([]byte, error)
	OnMutation(fn func(Mutation))
	Dispose()
	Disposed() bool
}

// Factory creates surfaces inside a mounted container.
type Factory interface {
	Create(container string, width, height int, background string) (Surface, error)
}

// Dispose releases s; nil and already-disposed surfaces are a no-op.
func Dispose(s Surface) {
	if s == nil {
		return
	}
	s.Dispose()
}
