/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package ui presents editor state. The presenter is headless and always
// built; the Fyne window behind the "fyne" build tag draws what it produces.
package ui

import (
	"fmt"
	"sync"

	"sprayeditor/internal/session"
)

// Frame is everything a window needs to draw one state.
type Frame struct {
	Show       session.Visibility
	Title      string
	Status     string
	Brush      string
	Palette    []string
	CanUndo    bool
	CanRedo    bool
	Notice     string
	NoticeKind session.NoticeKind
	Error      string
}

// Present projects a session state onto a Frame. It has no side effects.
func Present(st session.State) Frame {
	f := Frame{
		Show:    session.Render(st),
		Title:   "Spray Editor",
		Palette: append([]string(nil), st.Colors...),
		CanUndo: st.CanUndo,
		CanRedo: st.CanRedo,
	}
	if st.Gang != "" {
		f.Title = "Spray Editor - " + st.Gang
	}
	switch {
	case f.Show.Loading:
		f.Status = "Saving..."
	case f.Show.Editor:
		f.Status = fmt.Sprintf("%s tool", st.Tool)
	case st.Phase == session.Transitioning:
		f.Status = "Opening..."
	default:
		f.Status = "Closed"
	}
	if f.Show.Editor {
		f.Brush = fmt.Sprintf("%s %gpx", st.BrushColor, st.BrushSize)
	}
	if st.Notice != nil {
		f.Notice = st.Notice.Message
		f.NoticeKind = st.Notice.Kind
	}
	if st.Failure != nil {
		f.Error = st.Failure.Message
		if st.Failure.Detail != "" {
			f.Error += ": " + st.Failure.Detail
		}
	}
	return f
}

// Observable reports state changes. *session.Session satisfies it.
type Observable interface {
	OnChange(fn func(session.State))
	State() session.State
}

// Presenter keeps the latest Frame and hands each new one to its sink.
type Presenter struct {
	mu   sync.Mutex
	last Frame
	sink func(Frame)
}

// NewPresenter subscribes to src. Call it on the session's loop; sink may be nil
// and runs there too.
func NewPresenter(src Observable, sink func(Frame)) *Presenter {
	p := &Presenter{sink: sink}
	p.update(src.State())
	src.OnChange(p.update)
	return p
}

func (p *Presenter) update(st session.State) {
	f := Present(st)
	p.mu.Lock()
	p.last = f
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		sink(f)
	}
}

// Last returns the most recent Frame.
func (p *Presenter) Last() Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
