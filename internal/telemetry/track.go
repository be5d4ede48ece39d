/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import "sprayeditor/internal/session"

// Observable is anything that reports editor state changes. *session.Session
// satisfies it.
type Observable interface {
	OnChange(fn func(session.State))
}

// Track turns editor state transitions into usage events. Only counts and
// flags are reported, never gang names or colors.
func Track(c *Client, src Observable) {
	if !c.Enabled() || src == nil {
		return
	}
	var prev session.State
	src.OnChange(func(st session.State) {
		for _, ev := range transitions(prev, st) {
			c.Event(ev.name, ev.props)
		}
		prev = st
	})
}

type usage struct {
	name  string
	props map[string]any
}

func transitions(prev, next session.State) []usage {
	var out []usage
	wasOpen := prev.Phase == session.Open && prev.AllowedToOpen
	isOpen := next.Phase == session.Open && next.AllowedToOpen
	switch {
	case isOpen && !wasOpen:
		out = append(out, usage{EventEditorOpened, map[string]any{"colors": len(next.Colors)}})
	case wasOpen && !isOpen:
		out = append(out, usage{name: EventEditorClosed})
	}
	if next.GalleryOpen && !prev.GalleryOpen {
		out = append(out, usage{name: EventGalleryOpened})
	}
	if next.ImporterOpen && !prev.ImporterOpen {
		out = append(out, usage{name: EventImporterOpened})
	}
	if next.Failure != nil && prev.Failure == nil {
		out = append(out, usage{EventEditorError, map[string]any{"editor_open": isOpen}})
	}
	return out
}
