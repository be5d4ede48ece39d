/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"testing"

	"sprayeditor/internal/session"
)

func TestPresentClosed(t *testing.T) {
	f := Present(session.State{Phase: session.Idle})
	if f.Show.Editor || f.Status != "Closed" || f.Brush != "" || f.Title != "Spray Editor" {
		t.Fatalf("closed frame = %+v", f)
	}
}

func TestPresentOpenEditor(t *testing.T) {
	f := Present(session.State{
		Phase:         session.Open,
		AllowedToOpen: true,
		Gang:          "families",
		Colors:        []string{"#00FF00"},
		BrushColor:    "#00FF00",
		BrushSize:     12,
		Tool:          session.ToolEraser,
		CanUndo:       true,
	})
	if !f.Show.Editor || f.Title != "Spray Editor - families" {
		t.Fatalf("frame = %+v", f)
	}
	if f.Status != "eraser tool" || f.Brush != "#00FF00 12px" || !f.CanUndo || f.CanRedo {
		t.Fatalf("frame = %+v", f)
	}
}

func TestPresentLoadingNeedsEditor(t *testing.T) {
	f := Present(session.State{Phase: session.Idle, Loading: true})
	if f.Show.Loading || f.Status == "Saving..." {
		t.Fatalf("loading shown without editor: %+v", f)
	}
	f = Present(session.State{Phase: session.Open, AllowedToOpen: true, Loading: true})
	if !f.Show.Loading || f.Status != "Saving..." {
		t.Fatalf("frame = %+v", f)
	}
}

func TestPresentNoticeAndError(t *testing.T) {
	f := Present(session.State{
		Notice:  &session.Notice{Kind: session.NoticeWarning, Message: "locked"},
		Failure: &session.Failure{Message: "save failed", Detail: "timeout"},
	})
	if !f.Show.Notification || f.Notice != "locked" || f.NoticeKind != session.NoticeWarning {
		t.Fatalf("notice = %+v", f)
	}
	if !f.Show.Error || f.Error != "save failed: timeout" {
		t.Fatalf("error = %q", f.Error)
	}
}

type fakeSource struct {
	st  session.State
	fns []func(session.State)
}

func (f *fakeSource) OnChange(fn func(session.State)) { f.fns = append(f.fns, fn) }
func (f *fakeSource) State() session.State           { return f.st }

func TestPresenterFollowsChanges(t *testing.T) {
	src := &fakeSource{}
	var frames []Frame
	p := NewPresenter(src, func(f Frame) { frames = append(frames, f) })
	if len(frames) != 1 || p.Last().Show.Editor {
		t.Fatalf("initial frames = %+v", frames)
	}
	src.fns[0](session.State{Phase: session.Open, AllowedToOpen: true})
	if len(frames) != 2 || !p.Last().Show.Editor {
		t.Fatalf("frames = %+v", frames)
	}
}
