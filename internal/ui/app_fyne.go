//go:build fyne && cgo

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
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/gogpu/gg"

	"sprayeditor/internal/gallery"
	applog "sprayeditor/internal/log"
	"sprayeditor/internal/session"
	"sprayeditor/internal/surface"
)

type rasterSource interface {
	Raster() *image.RGBA
}

// Run opens the editor window and blocks until it is closed.
func Run(opts Options) error {
	if opts.Session == nil || opts.Loop == nil {
		return errors.New("ui: session and loop are required")
	}
	l := applog.WithComponent("ui")
	l.Info("starting UI")
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	s := opts.Session
	// on posts fn to the session's loop.
	on := func(fn func()) { opts.Loop.Post(fn) }

	fyneApp := app.NewWithID("sprayeditor")
	w := fyneApp.NewWindow("Spray Editor")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1100)
	winH := prefs.IntWithFallback("window.height", 760)
	w.Resize(fyne.NewSize(float32(max(winW, 800)), float32(max(winH, 600))))

	status := widget.NewLabel("Closed")
	brushLabel := widget.NewLabel("")
	noticeLabel := widget.NewLabel("")
	loading := widget.NewProgressBarInfinite()
	loading.Hide()

	pad := newDrawPad(func(pts []surface.Pt) {
		on(func() {
			if _, err := s.Stroke(pts); err != nil {
				l.Debug("stroke rejected", slog.Any("err", err))
			}
		})
	})

	// Palette swatches are rebuilt whenever the color set changes.
	palette := container.NewHBox()
	var lastPalette []string
	rebuildPalette := func(colors []string) {
		if equalStrings(colors, lastPalette) {
			return
		}
		lastPalette = append([]string(nil), colors...)
		palette.Objects = nil
		for _, c := range colors {
			c := c
			sw := canvas.NewRectangle(hexColor(c))
			sw.SetMinSize(fyne.NewSize(24, 24))
			btn := widget.NewButton("", func() { on(func() { _ = s.SelectColor(c) }) })
			palette.Add(container.NewStack(btn, sw))
		}
		palette.Refresh()
	}

	toolButton := func(label string, t session.Tool) *widget.Button {
		return widget.NewButton(label, func() { on(func() { _ = s.SelectTool(t) }) })
	}
	undoBtn := widget.NewButton("Undo", func() { on(func() { s.Undo() }) })
	redoBtn := widget.NewButton("Redo", func() { on(func() { s.Redo() }) })
	sizeSlider := widget.NewSlider(session.MinBrushSize, session.MaxBrushSize)
	sizeSlider.Step = 1
	sizeSlider.OnChangeEnded = func(v float64) { on(func() { _ = s.SetBrushSize(v) }) }
	saveBtn := widget.NewButton("Save", func() { on(func() { s.Save(ctx) }) })
	clearBtn := widget.NewButton("Clear", func() { on(func() { _ = s.Clear() }) })
	closeBtn := widget.NewButton("Close", func() { on(func() { s.Close(session.ReasonUser) }) })
	importBtn := widget.NewButton("Import URL", func() { on(func() { _ = s.SwitchToImporter() }) })

	toolbar := container.NewHBox(
		toolButton("Brush", session.ToolBrush),
		toolButton("Eraser", session.ToolEraser),
		toolButton("Text", session.ToolText),
		toolButton("Rect", session.ToolRectangle),
		toolButton("Circle", session.ToolCircle),
		widget.NewSeparator(), undoBtn, redoBtn, clearBtn,
		widget.NewSeparator(), importBtn, saveBtn, closeBtn,
	)
	side := container.NewVBox(widget.NewLabel("Colors"), palette, widget.NewLabel("Brush size"), sizeSlider, brushLabel)
	editor := container.NewBorder(toolbar, nil, nil, side, container.NewStack(pad, container.NewCenter(loading)))
	editor.Hide()

	// Gallery panel.
	var templates []gallery.Template
	galleryList := widget.NewList(
		func() int { return len(templates) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			t := templates[i]
			label := fmt.Sprintf("%s  [%s]", t.Name, gallery.CategoryLabel(t.Category))
			if !t.Available {
				label += fmt.Sprintf("  (rank %d)", t.RequiredGrade)
			}
			o.(*widget.Label).SetText(label)
		},
	)
	galleryList.OnSelected = func(id widget.ListItemID) {
		if id < 0 || int(id) >= len(templates) {
			return
		}
		tid := templates[id].ID
		on(func() { _, _ = s.SelectTemplate(tid) })
	}
	galleryFilter := widget.NewSelect([]string{"all", gallery.CategoryGang, gallery.CategoryCommon, gallery.CategoryPremium, gallery.CategoryCustom}, nil)
	gallerySearch := widget.NewEntry()
	gallerySearch.SetPlaceHolder("Search templates")
	refreshTemplates := func() {
		cat, query := galleryFilter.Selected, gallerySearch.Text
		on(func() {
			c := s.Catalog()
			if c == nil {
				return
			}
			var list []gallery.Template
			if query != "" {
				list = c.Search(query)
			} else {
				list = c.Filter(cat)
			}
			fyne.Do(func() {
				templates = list
				galleryList.UnselectAll()
				galleryList.Refresh()
			})
		})
	}
	galleryFilter.OnChanged = func(string) { refreshTemplates() }
	gallerySearch.OnChanged = func(string) { refreshTemplates() }
	galleryPanel := container.NewBorder(
		container.NewVBox(widget.NewLabel("Templates"), container.NewGridWithColumns(2, galleryFilter, gallerySearch)),
		container.NewHBox(
			widget.NewButton("Use", func() { on(func() { s.UseSelectedTemplate(ctx) }) }),
			widget.NewButton("Import URL", func() { on(func() { _ = s.SwitchToImporter() }) }),
			widget.NewButton("Close", func() { on(func() { s.CloseGallery(session.ReasonUser) }) }),
		),
		nil, nil, galleryList,
	)
	galleryPanel.Hide()

	// Importer panel.
	urlEntry := widget.NewEntry()
	urlEntry.SetPlaceHolder("https://i.imgur.com/...png")
	preview := canvas.NewImageFromImage(nil)
	preview.FillMode = canvas.ImageFillContain
	preview.SetMinSize(fyne.NewSize(128, 128))
	importStatus := widget.NewLabel("")
	importerPanel := container.NewVBox(
		widget.NewLabel("Import image from URL"),
		urlEntry,
		container.NewHBox(
			widget.NewButton("Preview", func() {
				raw := urlEntry.Text
				on(func() { s.PreviewURL(ctx, raw) })
			}),
			widget.NewButton("Use", func() { on(func() { s.UseURLImage(ctx) }) }),
			widget.NewButton("Close", func() { on(func() { s.CloseImporter(session.ReasonUser) }) }),
		),
		preview,
		importStatus,
	)
	importerPanel.Hide()

	content := container.NewBorder(nil, container.NewHBox(status, noticeLabel), nil, nil,
		container.NewStack(editor, galleryPanel, importerPanel))
	w.SetContent(content)

	setVisible := func(o fyne.CanvasObject, v bool) {
		if v {
			o.Show()
		} else {
			o.Hide()
		}
	}
	lastError := ""
	apply := func(f Frame, raster *image.RGBA, imp session.ImporterStatus, list []gallery.Template, galleryOpened bool) {
		w.SetTitle(f.Title)
		status.SetText(f.Status)
		brushLabel.SetText(f.Brush)
		noticeLabel.SetText(f.Notice)
		setVisible(editor, f.Show.Editor)
		setVisible(galleryPanel, f.Show.Gallery && !f.Show.Editor)
		setVisible(importerPanel, f.Show.Importer && !f.Show.Editor)
		setVisible(loading, f.Show.Loading)
		if f.CanUndo {
			undoBtn.Enable()
		} else {
			undoBtn.Disable()
		}
		if f.CanRedo {
			redoBtn.Enable()
		} else {
			redoBtn.Disable()
		}
		rebuildPalette(f.Palette)
		if raster != nil {
			pad.setImage(raster)
		}
		if galleryOpened {
			templates = list
			galleryList.Refresh()
		}
		switch {
		case imp.Fetching:
			importStatus.SetText("Loading preview...")
		case imp.Error != "":
			importStatus.SetText(imp.Error)
		case imp.Preview != nil:
			importStatus.SetText(fmt.Sprintf("%s %dx%d", imp.Preview.Format, imp.Preview.Width, imp.Preview.Height))
		default:
			importStatus.SetText("")
		}
		if imp.Preview != nil && imp.Preview.Thumbnail != nil {
			preview.Image = imp.Preview.Thumbnail
		} else {
			preview.Image = nil
		}
		preview.Refresh()
		if f.Show.Error && f.Error != lastError {
			dialog.ShowError(errors.New(f.Error), w)
		}
		if !f.Show.Error {
			lastError = ""
		} else {
			lastError = f.Error
		}
	}

	// The presenter sink runs on the loop; it snapshots what the window needs
	// there and hands it to the UI thread.
	galleryWasOpen := false
	start := make(chan struct{})
	on(func() {
		NewPresenter(s, func(f Frame) {
			var raster *image.RGBA
			if f.Show.Editor && s.Surface() != nil {
				if err := s.Surface().Render(); err == nil {
					if rs, ok := s.Surface().(rasterSource); ok {
						raster = cloneRGBA(rs.Raster())
					}
				}
			}
			var list []gallery.Template
			opened := f.Show.Gallery && !galleryWasOpen
			galleryWasOpen = f.Show.Gallery
			if opened && s.Catalog() != nil {
				list = s.Catalog().All()
			}
			imp := s.Importer()
			fyne.Do(func() { apply(f, raster, imp, list, opened) })
		})
		close(start)
	})
	<-start

	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if ev.Name == fyne.KeyEscape {
			on(func() { s.HandleKey(session.Key{Name: "Escape"}) })
		}
	})
	shortcut := func(key fyne.KeyName, mod fyne.KeyModifier, k session.Key) {
		w.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: key, Modifier: mod}, func(fyne.Shortcut) {
			on(func() { s.HandleKey(k) })
		})
	}
	shortcut(fyne.KeyZ, fyne.KeyModifierShortcutDefault, session.Key{Name: "z", Ctrl: true})
	shortcut(fyne.KeyY, fyne.KeyModifierShortcutDefault, session.Key{Name: "y", Ctrl: true})
	shortcut(fyne.KeyZ, fyne.KeyModifierShortcutDefault|fyne.KeyModifierShift, session.Key{Name: "z", Ctrl: true, Shift: true})
	if opts.Monitor != nil {
		w.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyP, Modifier: fyne.KeyModifierShortcutDefault}, func(fyne.Shortcut) {
			opts.Monitor.HandleKey(session.Key{Name: "p", Ctrl: true})
			l.Debug("monitor overlay", slog.Bool("visible", opts.Monitor.Visible()))
		})
	}

	w.SetOnClosed(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		done := make(chan struct{})
		if !opts.Loop.Post(func() { s.ForceClose(); close(done) }) {
			close(done)
		}
		<-done
		l.Info("UI closed")
	})
	w.ShowAndRun()
	return nil
}

// drawPad shows the rendered canvas and turns drags into strokes.
type drawPad struct {
	widget.BaseWidget
	img      *canvas.Image
	bounds   image.Rectangle
	points   []surface.Pt
	onStroke func([]surface.Pt)
}

func newDrawPad(onStroke func([]surface.Pt)) *drawPad {
	d := &drawPad{onStroke: onStroke}
	d.img = canvas.NewImageFromImage(nil)
	d.img.FillMode = canvas.ImageFillStretch
	d.img.SetMinSize(fyne.NewSize(400, 300))
	d.ExtendBaseWidget(d)
	return d
}

func (d *drawPad) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.NRGBA{R: 40, G: 40, B: 44, A: 255})
	return widget.NewSimpleRenderer(container.NewStack(bg, d.img))
}

func (d *drawPad) setImage(img *image.RGBA) {
	d.bounds = img.Bounds()
	d.img.Image = img
	d.img.Refresh()
}

// toCanvas maps a widget position to canvas pixels.
func (d *drawPad) toCanvas(p fyne.Position) surface.Pt {
	sz := d.Size()
	if sz.Width <= 0 || sz.Height <= 0 || d.bounds.Empty() {
		return surface.Pt{X: float64(p.X), Y: float64(p.Y)}
	}
	return surface.Pt{
		X: float64(p.X) * float64(d.bounds.Dx()) / float64(sz.Width),
		Y: float64(p.Y) * float64(d.bounds.Dy()) / float64(sz.Height),
	}
}

func (d *drawPad) Tapped(e *fyne.PointEvent) {
	d.onStroke([]surface.Pt{d.toCanvas(e.Position)})
}

func (d *drawPad) Dragged(e *fyne.DragEvent) {
	d.points = append(d.points, d.toCanvas(e.Position))
}

func (d *drawPad) DragEnd() {
	pts := d.points
	d.points = nil
	if len(pts) > 0 {
		d.onStroke(pts)
	}
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	if src == nil {
		return nil
	}
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

func hexColor(s string) color.Color {
	if !surface.ValidColor(s) {
		return color.Transparent
	}
	return gg.Hex(s).Color()
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
