/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package session owns the editor's lifecycle: the Idle/Transitioning/Open
// state machine, the single live drawing surface and its undo history, and the
// template gallery and URL importer panels.
//
// A Session is not safe for concurrent use. All methods must run on the event
// loop passed in Deps; background work hands results back through it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sprayeditor/internal/gallery"
	"sprayeditor/internal/history"
	"sprayeditor/internal/hostcb"
	applog "sprayeditor/internal/log"
	"sprayeditor/internal/surface"
)

var (
	// ErrNotOpen is returned by editor actions while the editor is not open.
	ErrNotOpen = errors.New("editor not open")
	// ErrTransitioning is returned when a request arrives mid-transition and is dropped.
	ErrTransitioning = errors.New("session transitioning")
	// ErrNoLoop is returned by New when Deps carries no event loop.
	ErrNoLoop = errors.New("session needs an event loop")
)

// Phase is the editor lifecycle state.
type Phase int

const (
	Idle Phase = iota
	Transitioning
	Open
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Transitioning:
		return "transitioning"
	case Open:
		return "open"
	}
	return "unknown"
}

// Reason tells who asked for a close; it picks the host callback.
type Reason int

const (
	// ReasonHost is a close requested by the host message stream.
	ReasonHost Reason = iota
	// ReasonUser is a close requested from inside the editor (button, Escape, save).
	ReasonUser
)

func (r Reason) action() string {
	if r == ReasonUser {
		return hostcb.ActionCloseEditor
	}
	return hostcb.ActionCloseNUI
}

// BootState is the tri-state init flag behind Bootstrap.
type BootState int

const (
	BootNotStarted BootState = iota
	BootInProgress
	BootDone
)

// Hook identifies a passive page lifecycle event.
type Hook int

const (
	HookScriptLoaded Hook = iota
	HookDOMReady
	HookWindowLoaded
)

func (h Hook) String() string {
	switch h {
	case HookScriptLoaded:
		return "script_loaded"
	case HookDOMReady:
		return "dom_ready"
	case HookWindowLoaded:
		return "window_loaded"
	}
	return "unknown"
}

// Callbacks delivers outbound host notifications. *hostcb.Client satisfies it.
type Callbacks interface {
	Send(ctx context.Context, action string, body any) <-chan hostcb.Result
}

// Poster schedules work on the event loop. *eventloop.Loop satisfies it.
type Poster interface {
	Post(fn func()) bool
}

// Config holds editor defaults.
type Config struct {
	Container       string
	Width           int
	Height          int
	Background      string
	HistoryCapacity int
	BrushSize       float64
	BrushColor      string
	ExportQuality   float64
}

// DefaultConfig matches the stock 800x600 transparent canvas.
func DefaultConfig() Config {
	return Config{
		Container:       "spray-canvas",
		Width:           800,
		Height:          600,
		Background:      "transparent",
		HistoryCapacity: history.DefaultCapacity,
		BrushSize:       10,
		BrushColor:      "#FF0000",
		ExportQuality:   0.8,
	}
}

// Deps are the collaborators a Session is built from.
type Deps struct {
	Factory   surface.Factory
	Callbacks Callbacks
	Loop      Poster
	Importer  *gallery.Importer
	Log       *slog.Logger
	// Context bounds outbound callbacks; defaults to context.Background.
	Context context.Context
}

// OpenRequest carries the host's gang context for a new editing session.
type OpenRequest struct {
	Gang   string
	Colors []string
}

// Session is the single active editing context.
type Session struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	phase         Phase
	allowedToOpen bool
	boot          BootState
	gen           uint64

	gang   string
	colors []string
	surf   surface.Surface
	ledger *history.Ledger

	brushColor string
	brushSize  float64
	tool       Tool
	saving     bool

	gallery  galleryPanel
	importer importerPanel

	loading bool
	notice  *Notice
	failure *Failure

	listeners []func(State)
}

// New builds an idle session. Nothing is shown until an explicit Open.
// Async completions are handed back through deps.Loop, so it is required.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Loop == nil {
		return nil, ErrNoLoop
	}
	def := DefaultConfig()
	if cfg.Container == "" {
		cfg.Container = def.Container
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.Background == "" {
		cfg.Background = def.Background
	}
	if cfg.BrushSize <= 0 {
		cfg.BrushSize = def.BrushSize
	}
	if !surface.ValidColor(cfg.BrushColor) {
		cfg.BrushColor = def.BrushColor
	}
	if cfg.ExportQuality <= 0 || cfg.ExportQuality > 1 {
		cfg.ExportQuality = def.ExportQuality
	}
	if deps.Log == nil {
		deps.Log = applog.WithComponent("session")
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	if deps.Importer == nil {
		deps.Importer = gallery.NewImporter(0, 0, nil)
	}
	return &Session{
		cfg:        cfg,
		deps:       deps,
		log:        deps.Log,
		ledger:     history.New(cfg.HistoryCapacity),
		brushColor: cfg.BrushColor,
		brushSize:  cfg.BrushSize,
		tool:       ToolBrush,
		gallery:    galleryPanel{catalog: gallery.NewCatalog()},
	}, nil
}

func (s *Session) Phase() Phase { return s.phase }

// AllowedToOpen is the guard every surface mutation and panel reveal checks.
func (s *Session) AllowedToOpen() bool { return s.allowedToOpen }

func (s *Session) Ledger() *history.Ledger { return s.ledger }

// Surface returns the live surface, or nil while the editor is closed.
func (s *Session) Surface() surface.Surface { return s.surf }

func (s *Session) Gang() string { return s.gang }

func (s *Session) Colors() []string { return append([]string(nil), s.colors...) }

// Bootstrap runs one-time initialisation. Duplicate calls are no-ops.
func (s *Session) Bootstrap() {
	if s.boot != BootNotStarted {
		return
	}
	s.boot = BootInProgress
	s.ForceClose()
	s.boot = BootDone
	s.log.Debug("bootstrap done")
}

func (s *Session) BootState() BootState { return s.boot }

// OnHook handles a passive page lifecycle event. Hooks never open anything.
func (s *Session) OnHook(h Hook) {
	s.log.Debug("lifecycle hook", slog.String("hook", h.String()))
	s.Bootstrap()
}

// Open starts an editing session. A stale editor is torn down first, so at
// most one surface is ever live. The gallery and importer panels are left
// alone. Any failure rolls back to Idle and is reported to the user.
func (s *Session) Open(req OpenRequest) error {
	l := applog.WithOperation(s.log, "open")
	if s.phase == Transitioning {
		l.Warn("open dropped while transitioning")
		return ErrTransitioning
	}
	s.phase = Transitioning
	// an explicit open stands in for bootstrap; listeners hear nothing until
	// the transition ends
	s.boot = BootDone
	s.teardownEditor()

	surf, err := s.deps.Factory.Create(s.cfg.Container, s.cfg.Width, s.cfg.Height, s.cfg.Background)
	if err != nil {
		return s.abortOpen(l, err)
	}
	if s.surf != nil {
		surface.Dispose(s.surf)
	}
	s.surf = surf
	s.ledger.Reset()
	blob, err := surf.Serialize()
	if err != nil {
		return s.abortOpen(l, fmt.Errorf("initial snapshot: %w", err))
	}
	s.ledger.PushBlob(blob)

	s.gang = req.Gang
	s.colors = validColors(req.Colors)
	s.brushColor, s.brushSize, s.tool = s.cfg.BrushColor, s.cfg.BrushSize, ToolBrush
	if len(s.colors) > 0 && surface.ValidColor(s.colors[0]) {
		s.brushColor = s.colors[0]
	}

	s.gen++
	gen := s.gen
	surf.OnMutation(func(m surface.Mutation) { s.onMutation(gen, surf, m) })

	s.allowedToOpen = true
	s.phase = Open
	l.Info("editor opened", slog.String("gang", s.gang), slog.Int("colors", len(s.colors)), slog.String("surface", surf.ID()))
	s.changed()
	return nil
}

func (s *Session) abortOpen(l *slog.Logger, err error) error {
	l.Error("open failed", slog.Any("err", err))
	s.ForceClose()
	s.fail("The editor could not be opened.", err)
	return err
}

// onMutation records a snapshot after each structural change of the live surface.
func (s *Session) onMutation(gen uint64, src surface.Surface, m surface.Mutation) {
	if !s.allowedToOpen || gen != s.gen || src != s.surf {
		return
	}
	blob, err := src.Serialize()
	if err != nil {
		s.log.Warn("snapshot failed", slog.String("mutation", m.Kind.String()), slog.Any("err", err))
		return
	}
	s.ledger.PushBlob(blob)
	s.changed()
}

// Close ends the editing session and tells the host. It is a no-op when nothing is open.
func (s *Session) Close(reason Reason) {
	if s.phase == Transitioning {
		s.log.Warn("close dropped while transitioning")
		return
	}
	if s.phase != Open && !s.allowedToOpen && s.surf == nil {
		return
	}
	s.phase = Transitioning
	s.teardownEditor()
	s.phase = Idle
	s.notify(reason.action())
	applog.WithOperation(s.log, "close").Info("editor closed", slog.Bool("user", reason == ReasonUser))
	s.changed()
}

// CloseAll closes the editor and both side panels, sending one close callback
// if anything was open.
func (s *Session) CloseAll(reason Reason) {
	if s.phase == Transitioning {
		s.log.Warn("closeAll dropped while transitioning")
		return
	}
	active := s.phase == Open || s.allowedToOpen || s.surf != nil || s.gallery.open || s.importer.open
	if !active {
		return
	}
	s.phase = Transitioning
	s.teardownEditor()
	s.resetGallery()
	s.resetImporter()
	s.phase = Idle
	s.notify(reason.action())
	applog.WithOperation(s.log, "closeAll").Info("all panels closed")
	s.changed()
}

// ForceClose tears everything down without telling the host. Every step is
// guarded on its own so it always ends Idle.
func (s *Session) ForceClose() {
	s.step("teardown editor", s.teardownEditor)
	s.step("reset gallery", s.resetGallery)
	s.step("reset importer", s.resetImporter)
	s.step("clear overlays", func() {
		s.loading = false
		s.saving = false
	})
	s.phase = Idle
	s.changed()
}

// teardownEditor releases the surface and all editor context.
func (s *Session) teardownEditor() {
	s.allowedToOpen = false
	s.gen++
	s.step("dispose surface", func() {
		surf := s.surf
		s.surf = nil
		surface.Dispose(surf)
	})
	s.step("reset history", func() {
		if s.ledger != nil {
			s.ledger.Reset()
		}
	})
	s.gang = ""
	s.colors = nil
	s.saving = false
	s.loading = false
}

// step runs fn and swallows a panic so later teardown steps still run.
func (s *Session) step(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("teardown step failed", slog.String("step", name), slog.Any("panic", r))
		}
	}()
	fn()
}

func (s *Session) notify(action string) {
	if s.deps.Callbacks == nil {
		return
	}
	// fire and forget; the channel is buffered so the sender never blocks
	_ = s.deps.Callbacks.Send(s.deps.Context, action, map[string]any{})
}

// post hands fn back to the loop. It reports false if the loop refused the work.
func (s *Session) post(fn func()) bool {
	if !s.deps.Loop.Post(fn) {
		s.log.Warn("event loop rejected completion")
		return false
	}
	return true
}
