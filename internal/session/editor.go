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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sprayeditor/internal/hostcb"
	"sprayeditor/internal/surface"
)

// Tool is the active drawing tool.
type Tool string

const (
	ToolBrush     Tool = "brush"
	ToolEraser    Tool = "eraser"
	ToolText      Tool = "text"
	ToolRectangle Tool = "rectangle"
	ToolCircle    Tool = "circle"
)

// Brush size bounds.
const (
	MinBrushSize = 1
	MaxBrushSize = 100
)

const defaultText = "Gang Text"

// Key is a keyboard event forwarded by the presenter.
type Key struct {
	Name  string
	Ctrl  bool
	Shift bool
	Meta  bool
}

// editable is the guard every surface mutation passes through.
func (s *Session) editable() error {
	if !s.allowedToOpen || s.phase != Open || s.surf == nil || s.surf.Disposed() {
		return ErrNotOpen
	}
	return nil
}

func (s *Session) Tool() Tool { return s.tool }

func (s *Session) Brush() (color string, size float64) { return s.brushColor, s.brushSize }

// Draw adds o to the surface. Paths without a color pick up the current brush.
func (s *Session) Draw(o surface.Object) (string, error) {
	if err := s.editable(); err != nil {
		return "", err
	}
	if o.Kind == surface.KindPath {
		if o.Stroke == "" {
			o.Stroke = s.brushColor
		}
		if o.StrokeWidth <= 0 {
			o.StrokeWidth = s.brushSize
		}
	}
	return s.surf.Add(o)
}

// Stroke draws a freehand path with the current tool.
func (s *Session) Stroke(points []surface.Pt) (string, error) {
	if len(points) == 0 {
		return "", errors.New("empty stroke")
	}
	return s.Draw(surface.Object{
		Kind:   surface.KindPath,
		Points: append([]surface.Pt(nil), points...),
		Erase:  s.tool == ToolEraser,
	})
}

func (s *Session) AddText(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		text = defaultText
	}
	return s.Draw(surface.Object{Kind: surface.KindText, X: 100, Y: 120, Text: text, FontSize: 20, Fill: s.brushColor})
}

func (s *Session) AddRectangle() (string, error) {
	return s.Draw(surface.Object{Kind: surface.KindRect, X: 100, Y: 100, W: 100, H: 100, Fill: "transparent", Stroke: s.brushColor, StrokeWidth: 3})
}

func (s *Session) AddCircle() (string, error) {
	return s.Draw(surface.Object{Kind: surface.KindCircle, X: 150, Y: 150, Radius: 50, Fill: "transparent", Stroke: s.brushColor, StrokeWidth: 3})
}

// Remove deletes one object by id.
func (s *Session) Remove(id string) error {
	if err := s.editable(); err != nil {
		return err
	}
	if !s.surf.Remove(id) {
		return fmt.Errorf("no object %q", id)
	}
	return nil
}

// Clear empties the canvas; it records one history entry.
func (s *Session) Clear() error {
	if err := s.editable(); err != nil {
		return err
	}
	return s.surf.Clear()
}

// Undo reloads the previous snapshot. It reports whether anything changed.
func (s *Session) Undo() bool {
	if s.editable() != nil {
		return false
	}
	snap, ok := s.ledger.Undo()
	if !ok {
		return false
	}
	if err := s.surf.LoadSnapshot(snap.Blob); err != nil {
		s.log.Error("undo reload failed", slog.Any("err", err))
		s.ledger.Redo()
		return false
	}
	s.changed()
	return true
}

// Redo reloads the next snapshot. It reports whether anything changed.
func (s *Session) Redo() bool {
	if s.editable() != nil {
		return false
	}
	snap, ok := s.ledger.Redo()
	if !ok {
		return false
	}
	if err := s.surf.LoadSnapshot(snap.Blob); err != nil {
		s.log.Error("redo reload failed", slog.Any("err", err))
		s.ledger.Undo()
		return false
	}
	s.changed()
	return true
}

func (s *Session) SelectColor(c string) error {
	if err := s.editable(); err != nil {
		return err
	}
	if !surface.ValidColor(c) {
		return fmt.Errorf("invalid color %q", c)
	}
	s.brushColor = c
	if s.tool == ToolEraser {
		s.tool = ToolBrush
	}
	s.changed()
	return nil
}

// SetBrushSize clamps n to [MinBrushSize, MaxBrushSize].
func (s *Session) SetBrushSize(n float64) error {
	if err := s.editable(); err != nil {
		return err
	}
	s.brushSize = min(max(n, MinBrushSize), MaxBrushSize)
	s.changed()
	return nil
}

// SelectTool switches tools. Text, rectangle and circle insert their default
// object right away and leave the brush active.
func (s *Session) SelectTool(t Tool) error {
	if err := s.editable(); err != nil {
		return err
	}
	var err error
	switch t {
	case ToolBrush, ToolEraser:
		s.tool = t
	case ToolText:
		_, err = s.AddText("")
	case ToolRectangle:
		_, err = s.AddRectangle()
	case ToolCircle:
		_, err = s.AddCircle()
	default:
		return fmt.Errorf("unknown tool %q", t)
	}
	s.changed()
	return err
}

// UpdateContext replaces the gang palette of the open editor.
func (s *Session) UpdateContext(gang string, colors []string) error {
	if err := s.editable(); err != nil {
		return err
	}
	if gang != "" {
		s.gang = gang
	}
	if colors != nil {
		s.colors = validColors(colors)
	}
	s.changed()
	return nil
}

// HandleKey applies the editor shortcuts and reports whether k was consumed.
func (s *Session) HandleKey(k Key) bool {
	if s.editable() != nil {
		return false
	}
	accel := k.Ctrl || k.Meta
	switch name := strings.ToLower(k.Name); {
	case name == "escape" || name == "esc":
		s.Close(ReasonUser)
		return true
	case accel && name == "z" && !k.Shift:
		s.Undo()
		return true
	case accel && (name == "y" || (name == "z" && k.Shift)):
		s.Redo()
		return true
	}
	return false
}

// Optimize drops objects that cannot contribute pixels and returns how many went.
func (s *Session) Optimize() int {
	if s.editable() != nil {
		return 0
	}
	n := 0
	for _, o := range s.surf.Objects() {
		if o.Invisible() && s.surf.Remove(o.ID) {
			n++
		}
	}
	if n > 0 {
		s.log.Info("canvas optimized", slog.Int("removed", n))
	}
	return n
}

// SurfaceStats is a point-in-time measurement of the live surface.
type SurfaceStats struct {
	Objects    int
	RenderTime time.Duration
}

// MeasureSurface re-renders the canvas and times it. ok is false while closed.
func (s *Session) MeasureSurface() (SurfaceStats, bool) {
	if s.editable() != nil {
		return SurfaceStats{}, false
	}
	start := time.Now()
	if err := s.surf.Render(); err != nil {
		return SurfaceStats{}, false
	}
	return SurfaceStats{Objects: len(s.surf.Objects()), RenderTime: time.Since(start)}, true
}

// Save exports the canvas and sends it to the host. The returned channel
// yields the host result once the session has applied it: success closes the
// editor, failure keeps it open with an error shown.
func (s *Session) Save(ctx context.Context) <-chan hostcb.Result {
	out := make(chan hostcb.Result, 1)
	done := func(r hostcb.Result) {
		out <- r
		close(out)
	}
	if err := s.editable(); err != nil {
		done(hostcb.Result{Error: err.Error(), Err: err})
		return out
	}
	if s.saving {
		done(hostcb.Result{Error: "save already in progress"})
		return out
	}
	body, err := s.designBody()
	if err != nil {
		s.fail("The spray could not be exported.", err)
		done(hostcb.Result{Error: err.Error(), Err: err})
		return out
	}
	if s.deps.Callbacks == nil {
		err := fmt.Errorf("%w: no host channel", hostcb.ErrCallbackDelivery)
		s.fail("Saving the spray failed.", err)
		done(hostcb.Result{Error: err.Error(), Err: err})
		return out
	}
	s.saving, s.loading = true, true
	s.changed()
	gen := s.gen
	ch := s.deps.Callbacks.Send(ctx, hostcb.ActionSaveDesign, body)
	go func() {
		res := <-ch
		if !s.post(func() {
			s.finishSave(gen, res)
			done(res)
		}) {
			done(res)
		}
	}()
	return out
}

func (s *Session) finishSave(gen uint64, res hostcb.Result) {
	if gen != s.gen {
		// the editor was closed while the request was in flight
		return
	}
	s.saving, s.loading = false, false
	if res.Success {
		s.notifyUser(NoticeSuccess, "Spray saved!")
		s.Close(ReasonUser)
		return
	}
	msg := res.Error
	if msg == "" {
		msg = "host rejected the design"
	}
	s.fail("Saving the spray failed.", errors.New(msg))
}

func (s *Session) designBody() (hostcb.SaveDesign, error) {
	png, err := s.surf.ExportImage(surface.FormatPNG, s.cfg.ExportQuality)
	if err != nil {
		return hostcb.SaveDesign{}, fmt.Errorf("export png: %w", err)
	}
	state, err := s.surf.Serialize()
	if err != nil {
		return hostcb.SaveDesign{}, fmt.Errorf("serialize canvas: %w", err)
	}
	w, h := s.surf.Size()
	colors := s.colors
	if colors == nil {
		colors = []string{}
	}
	return hostcb.SaveDesign{
		ImageData: hostcb.EncodePNGDataURL(png),
		Metadata: hostcb.DesignMetadata{
			Gang:       s.gang,
			Colors:     colors,
			CanvasData: state,
			Timestamp:  time.Now().UnixMilli(),
			Resolution: hostcb.Resolution{Width: w, Height: h},
		},
	}, nil
}

// validColors keeps the entries the surface can paint with, in order.
func validColors(colors []string) []string {
	valid := make([]string, 0, len(colors))
	for _, c := range colors {
		if surface.ValidColor(c) {
			valid = append(valid, c)
		}
	}
	return valid
}
