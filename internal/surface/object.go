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

import "math"

// Kind discriminates drawable objects in the serialized state.
type Kind string

const (
	KindPath   Kind = "path"
	KindRect   Kind = "rect"
	KindCircle Kind = "circle"
	KindText   Kind = "text"
	KindImage  Kind = "image"
)

// Pt is a 2D point in canvas pixels.
type Pt struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle defined by min corner and size.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

func (r Rect) Contains(p Pt) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X <= r.X+r.W && p.Y <= r.Y+r.H
}

// Union returns the minimal rect containing both.
func (r Rect) Union(o Rect) Rect {
	minX, minY := math.Min(r.X, o.X), math.Min(r.Y, o.Y)
	maxX, maxY := math.Max(r.X+r.W, o.X+o.W), math.Max(r.Y+r.H, o.Y+o.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Object is one drawable item. Which fields matter depends on Kind:
// paths use Points, rects use X/Y/W/H, circles use X/Y (center) and Radius,
// text uses X/Y (baseline start), Text and FontSize, images use X/Y/W/H and Image.
// Colors are "#RRGGBB[AA]" or "transparent".
type Object struct {
	ID          string  `json:"id"`
	Kind        Kind    `json:"type"`
	Points      []Pt    `json:"points,omitempty"`
	X           float64 `json:"left,omitempty"`
	Y           float64 `json:"top,omitempty"`
	W           float64 `json:"width,omitempty"`
	H           float64 `json:"height,omitempty"`
	Radius      float64 `json:"radius,omitempty"`
	Text        string  `json:"text,omitempty"`
	FontSize    float64 `json:"fontSize,omitempty"`
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Fill        string  `json:"fill,omitempty"`
	Opacity     float64 `json:"opacity"`
	// Erase marks a freehand eraser stroke that clears pixels beneath it.
	Erase bool   `json:"erase,omitempty"`
	Image []byte `json:"image,omitempty"`
}

// Bounds approximates the object's extent, including half the stroke width.
func (o Object) Bounds() Rect {
	pad := o.StrokeWidth / 2
	switch o.Kind {
	case KindPath:
		if len(o.Points) == 0 {
			return Rect{}
		}
		minX, minY := o.Points[0].X, o.Points[0].Y
		maxX, maxY := minX, minY
		for _, p := range o.Points[1:] {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
		return Rect{X: minX - pad, Y: minY - pad, W: maxX - minX + 2*pad, H: maxY - minY + 2*pad}
	case KindCircle:
		r := o.Radius + pad
		return Rect{X: o.X - r, Y: o.Y - r, W: 2 * r, H: 2 * r}
	case KindText:
		size := o.FontSize
		if size <= 0 {
			size = 20
		}
		// rough advance estimate; no font metrics needed for hit-testing
		return Rect{X: o.X, Y: o.Y - size, W: 0.6 * size * float64(len([]rune(o.Text))), H: size * 1.2}
	default:
		return Rect{X: o.X - pad, Y: o.Y - pad, W: o.W + 2*pad, H: o.H + 2*pad}
	}
}

// Invisible reports objects that cannot contribute pixels: zero-size or fully transparent.
func (o Object) Invisible() bool {
	if o.Opacity <= 0 {
		return true
	}
	switch o.Kind {
	case KindPath:
		return len(o.Points) == 0 || o.StrokeWidth <= 0
	case KindText:
		return o.Text == ""
	case KindImage:
		return len(o.Image) == 0 || o.W <= 0 || o.H <= 0
	case KindCircle:
		return o.Radius <= 0
	default:
		return o.W <= 0 || o.H <= 0
	}
}

// Hit reports whether p falls within the object's bounds.
func (o Object) Hit(p Pt) bool { return o.Bounds().Contains(p) }
