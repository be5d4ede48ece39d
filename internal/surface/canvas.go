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
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"

	applog "sprayeditor/internal/log"
)

// stateVersion is written into every serialized snapshot.
const stateVersion = 1

// State is the serialized form of a whole canvas.
type State struct {
	Version    int      `json:"version"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Background string   `json:"background"`
	Objects    []Object `json:"objects"`
}

var _ Surface = (*Canvas)(nil)

// Canvas is a Surface that keeps a vector object list and rasterises it with gg.
type Canvas struct {
	mu         sync.Mutex
	id         string
	width      int
	height     int
	background string
	objects    []Object
	nextID     int
	listeners  []func(Mutation)
	font       *text.FontSource
	raster     *image.RGBA
	disposed   bool
	onDispose  func()
	log        *slog.Logger
}

// NewCanvas returns a standalone canvas. Factories use it and track liveness.
func NewCanvas(id string, width, height int, background string, font *text.FontSource) *Canvas {
	return &Canvas{
		id:         id,
		width:      width,
		height:     height,
		background: background,
		font:       font,
		log:        applog.WithComponent("surface").With(slog.String("surface", id)),
	}
}

func (c *Canvas) ID() string { return c.id }

func (c *Canvas) Size() (int, int) { return c.width, c.height }

// Add appends o and notifies listeners. A zero Opacity is treated as fully opaque.
// Freehand paths are reported as StrokeCompleted.
func (c *Canvas) Add(o Object) (string, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return "", ErrDisposed
	}
	if err := validate(o); err != nil {
		c.mu.Unlock()
		return "", err
	}
	if o.Opacity == 0 {
		o.Opacity = 1
	}
	c.nextID++
	if o.ID == "" || c.indexLocked(o.ID) >= 0 {
		o.ID = "obj-" + strconv.Itoa(c.nextID)
	}
	c.objects = append(c.objects, o)
	c.mu.Unlock()

	kind := ObjectAdded
	if o.Kind == KindPath {
		kind = StrokeCompleted
	}
	c.notify(Mutation{Kind: kind, ObjectID: o.ID})
	return o.ID, nil
}

// Update replaces the object with the same ID.
func (c *Canvas) Update(o Object) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	i := c.indexLocked(o.ID)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("update %q: no such object", o.ID)
	}
	if err := validate(o); err != nil {
		c.mu.Unlock()
		return err
	}
	c.objects[i] = o
	c.mu.Unlock()
	c.notify(Mutation{Kind: ObjectModified, ObjectID: o.ID})
	return nil
}

// Remove deletes the object with id; it reports whether anything was removed.
func (c *Canvas) Remove(id string) bool {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return false
	}
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.objects = append(c.objects[:i], c.objects[i+1:]...)
	c.mu.Unlock()
	c.notify(Mutation{Kind: ObjectRemoved, ObjectID: id})
	return true
}

// Objects returns a copy of the object list in paint order.
func (c *Canvas) Objects() []Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Object(nil), c.objects...)
}

// Clear removes every object and emits a single Cleared mutation.
func (c *Canvas) Clear() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.objects = nil
	c.mu.Unlock()
	c.notify(Mutation{Kind: Cleared})
	return nil
}

func (c *Canvas) Serialize() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, ErrDisposed
	}
	objs := c.objects
	if objs == nil {
		objs = []Object{}
	}
	return json.Marshal(State{
		Version:    stateVersion,
		Width:      c.width,
		Height:     c.height,
		Background: c.background,
		Objects:    objs,
	})
}

func (c *Canvas) LoadSnapshot(blob []byte) error {
	var st State
	if err := json.Unmarshal(blob, &st); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if st.Version != stateVersion {
		return fmt.Errorf("decode snapshot: unsupported version %d", st.Version)
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.objects = st.Objects
	if st.Background != "" {
		c.background = st.Background
	}
	// keep generated IDs unique after reload
	for _, o := range st.Objects {
		if n, ok := strings.CutPrefix(o.ID, "obj-"); ok {
			if v, err := strconv.Atoi(n); err == nil && v > c.nextID {
				c.nextID = v
			}
		}
	}
	c.mu.Unlock()
	return c.Render()
}

// OnMutation registers fn; listeners run synchronously after the change is applied.
func (c *Canvas) OnMutation(fn func(Mutation)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Render rasterises the current object list and keeps the result for Raster.
func (c *Canvas) Render() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	img, err := c.rasterLocked()
	if err != nil {
		return err
	}
	c.raster = img
	return nil
}

// Raster returns the last rendered frame, or nil before the first Render.
func (c *Canvas) Raster() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raster
}

// Dispose drops objects, listeners and the raster. Safe to call repeatedly and on nil.
func (c *Canvas) Dispose() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.objects = nil
	c.listeners = nil
	c.raster = nil
	hook := c.onDispose
	c.onDispose = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	c.log.Debug("surface disposed")
}

func (c *Canvas) Disposed() bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

func (c *Canvas) notify(m Mutation) {
	c.mu.Lock()
	ls := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, fn := range ls {
		fn(m)
	}
}

func (c *Canvas) indexLocked(id string) int {
	for i := range c.objects {
		if c.objects[i].ID == id {
			return i
		}
	}
	return -1
}

func validate(o Object) error {
	switch o.Kind {
	case KindPath, KindRect, KindCircle, KindText:
	case KindImage:
		if _, _, err := image.DecodeConfig(bytes.NewReader(o.Image)); err != nil {
			return fmt.Errorf("image object: %w", err)
		}
	default:
		return fmt.Errorf("unknown object type %q", o.Kind)
	}
	return nil
}

// rasterLocked paints every object in order onto a fresh gg context.
func (c *Canvas) rasterLocked() (*image.RGBA, error) {
	dc := gg.NewContext(c.width, c.height)
	defer func() { _ = dc.Close() }()
	bg, bgOK := parseColor(c.background)
	if bgOK && bg.A > 0 {
		dc.ClearWithColor(bg)
	}
	for _, o := range c.objects {
		if o.Erase {
			// no destination-out blending in gg; punch the stroke out of the frame so far
			frame := snapshot(dc)
			punch(frame, c.strokeMask(o), bg)
			_ = dc.Close()
			dc = gg.NewContextForImage(frame)
			continue
		}
		if err := c.paint(dc, o); err != nil {
			c.log.Debug("skip object", slog.String("id", o.ID), slog.Any("err", err))
		}
	}
	return snapshot(dc), nil
}

func (c *Canvas) paint(dc *gg.Context, o Object) error {
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	switch o.Kind {
	case KindPath:
		if len(o.Points) == 0 {
			return nil
		}
		dc.MoveTo(o.Points[0].X, o.Points[0].Y)
		if len(o.Points) == 1 {
			// a click without drag still leaves a dot
			dc.LineTo(o.Points[0].X+0.01, o.Points[0].Y)
		}
		for _, p := range o.Points[1:] {
			dc.LineTo(p.X, p.Y)
		}
		return c.strokeWith(dc, o)
	case KindRect:
		dc.DrawRectangle(o.X, o.Y, o.W, o.H)
		return c.fillAndStroke(dc, o)
	case KindCircle:
		dc.DrawCircle(o.X, o.Y, o.Radius)
		return c.fillAndStroke(dc, o)
	case KindText:
		if c.font == nil {
			return fmt.Errorf("no font loaded for text object")
		}
		size := o.FontSize
		if size <= 0 {
			size = 20
		}
		col, ok := parseColor(o.Fill)
		if !ok || col.A == 0 {
			return nil
		}
		dc.SetFont(c.font.Face(size))
		dc.SetRGBA(col.R, col.G, col.B, col.A*o.Opacity)
		dc.DrawString(o.Text, o.X, o.Y)
		return nil
	case KindImage:
		src, _, err := image.Decode(bytes.NewReader(o.Image))
		if err != nil {
			return err
		}
		dc.DrawImageEx(gg.ImageBufFromImage(src), gg.DrawImageOptions{
			X:         o.X,
			Y:         o.Y,
			DstWidth:  o.W,
			DstHeight: o.H,
			Opacity:   o.Opacity,
		})
		return nil
	}
	return fmt.Errorf("unknown object type %q", o.Kind)
}

func (c *Canvas) fillAndStroke(dc *gg.Context, o Object) error {
	if col, ok := parseColor(o.Fill); ok && col.A > 0 {
		dc.SetRGBA(col.R, col.G, col.B, col.A*o.Opacity)
		if o.StrokeWidth > 0 {
			if err := dc.FillPreserve(); err != nil {
				return err
			}
		} else {
			return dc.Fill()
		}
	}
	return c.strokeWith(dc, o)
}

func (c *Canvas) strokeWith(dc *gg.Context, o Object) error {
	col, ok := parseColor(o.Stroke)
	if !ok || col.A == 0 || o.StrokeWidth <= 0 {
		dc.ClearPath()
		return nil
	}
	dc.SetLineWidth(o.StrokeWidth)
	dc.SetRGBA(col.R, col.G, col.B, col.A*o.Opacity)
	return dc.Stroke()
}

// strokeMask renders an eraser stroke in opaque white on a scratch context.
func (c *Canvas) strokeMask(o Object) *image.RGBA {
	mc := gg.NewContext(c.width, c.height)
	defer func() { _ = mc.Close() }()
	_ = c.paint(mc, Object{Kind: KindPath, Points: o.Points, Stroke: "#FFFFFF", StrokeWidth: o.StrokeWidth, Opacity: 1})
	return snapshot(mc)
}

// punch replaces every pixel covered by mask with the background color.
func punch(dst, mask *image.RGBA, bg gg.RGBA) {
	fill := color.RGBA{}
	if bg.A > 0 {
		r, g, b, a := bg.Color().RGBA()
		fill = color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
	}
	bounds := dst.Bounds().Intersect(mask.Bounds())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if mask.RGBAAt(x, y).A > 0 {
				dst.SetRGBA(x, y, fill)
			}
		}
	}
}

func snapshot(dc *gg.Context) *image.RGBA {
	_ = dc.FlushGPU()
	return toRGBA(dc.Image())
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}

// parseColor accepts "#RGB", "#RGBA", "#RRGGBB", "#RRGGBBAA" and "transparent".
func parseColor(s string) (gg.RGBA, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return gg.Transparent, false
	}
	if strings.EqualFold(s, "transparent") {
		return gg.Transparent, true
	}
	h := strings.TrimPrefix(s, "#")
	switch len(h) {
	case 3, 4, 6, 8:
	default:
		return gg.Transparent, false
	}
	if _, err := strconv.ParseUint(h, 16, 32); err != nil {
		return gg.Transparent, false
	}
	return gg.Hex(h), true
}

// ValidColor reports whether s is a color the canvas understands.
func ValidColor(s string) bool {
	_, ok := parseColor(s)
	return ok
}

// encodePNG is shared by the export paths.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
