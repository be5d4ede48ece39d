/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package session

import (
	"log/slog"
	"time"
)

// NoticeKind styles a transient notification.
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
)

// Notice is a short toast message.
type Notice struct {
	Kind    NoticeKind
	Message string
	At      time.Time
}

// Failure is shown in the error dialog.
type Failure struct {
	Message string
	Detail  string
}

// State is an immutable copy of everything the presenter needs.
type State struct {
	Phase         Phase
	AllowedToOpen bool
	Gang          string
	Colors        []string
	BrushColor    string
	BrushSize     float64
	Tool          Tool
	CanUndo       bool
	CanRedo       bool
	GalleryOpen   bool
	ImporterOpen  bool
	Loading       bool
	Notice        *Notice
	Failure       *Failure
}

// Visibility is the set of panels a presenter should show.
type Visibility struct {
	Editor       bool
	Gallery      bool
	Importer     bool
	Loading      bool
	Notification bool
	Error        bool
}

// Render projects st onto panel visibility. It has no side effects.
func Render(st State) Visibility {
	editor := st.Phase == Open && st.AllowedToOpen
	return Visibility{
		Editor:       editor,
		Gallery:      st.GalleryOpen,
		Importer:     st.ImporterOpen,
		Loading:      st.Loading && editor,
		Notification: st.Notice != nil,
		Error:        st.Failure != nil,
	}
}

// State captures the current session state.
func (s *Session) State() State {
	st := State{
		Phase:         s.phase,
		AllowedToOpen: s.allowedToOpen,
		Gang:          s.gang,
		Colors:        s.Colors(),
		BrushColor:    s.brushColor,
		BrushSize:     s.brushSize,
		Tool:          s.tool,
		GalleryOpen:   s.gallery.open,
		ImporterOpen:  s.importer.open,
		Loading:       s.loading,
	}
	if s.allowedToOpen && s.ledger != nil {
		st.CanUndo, st.CanRedo = s.ledger.CanUndo(), s.ledger.CanRedo()
	}
	if s.notice != nil {
		n := *s.notice
		st.Notice = &n
	}
	if s.failure != nil {
		f := *s.failure
		st.Failure = &f
	}
	return st
}

// OnChange registers fn to receive the state after every change.
func (s *Session) OnChange(fn func(State)) {
	if fn != nil {
		s.listeners = append(s.listeners, fn)
	}
}

func (s *Session) changed() {
	if len(s.listeners) == 0 {
		return
	}
	st := s.State()
	for _, fn := range s.listeners {
		fn(st)
	}
}

func (s *Session) notifyUser(kind NoticeKind, msg string) {
	s.notice = &Notice{Kind: kind, Message: msg, At: time.Now()}
	s.changed()
}

// fail shows msg in the error dialog and logs err.
func (s *Session) fail(msg string, err error) {
	f := &Failure{Message: msg}
	if err != nil {
		f.Detail = err.Error()
	}
	s.failure = f
	s.notice = &Notice{Kind: NoticeError, Message: msg, At: time.Now()}
	s.log.Error(msg, slog.Any("err", err))
	s.changed()
}

func (s *Session) DismissNotice() {
	if s.notice != nil {
		s.notice = nil
		s.changed()
	}
}

func (s *Session) DismissError() {
	if s.failure != nil {
		s.failure = nil
		s.changed()
	}
}
