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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sprayeditor/internal/gallery"
	"sprayeditor/internal/hostcb"
	"sprayeditor/internal/surface"
)

func TestSaveSuccessClosesEditor(t *testing.T) {
	h := newHarness(t)
	h.open("families", "#ff0000", "#00ff00")
	var ch <-chan hostcb.Result
	h.do(func() {
		_, _ = h.s.Stroke([]surface.Pt{{X: 2, Y: 2}, {X: 50, Y: 40}})
		ch = h.s.Save(context.Background())
	})
	res := <-ch
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	h.assertIdle()
	st := h.state()
	if st.Notice == nil || st.Notice.Kind != NoticeSuccess {
		t.Fatalf("expected a success notice, got %+v", st.Notice)
	}
	got := h.cb.actions()
	if len(got) != 2 || got[0] != hostcb.ActionSaveDesign || got[1] != hostcb.ActionCloseEditor {
		t.Fatalf("expected save then closeEditor, got %v", got)
	}

	h.cb.mu.Lock()
	body, ok := h.cb.calls[0].body.(hostcb.SaveDesign)
	h.cb.mu.Unlock()
	if !ok {
		t.Fatalf("unexpected body type %T", h.cb.calls[0].body)
	}
	if !strings.HasPrefix(body.ImageData, hostcb.PNGDataURLPrefix) {
		t.Fatalf("image data should be a PNG data url")
	}
	md := body.Metadata
	if md.Gang != "families" || len(md.Colors) != 2 || md.Resolution != (hostcb.Resolution{Width: 80, Height: 60}) {
		t.Fatalf("unexpected metadata %+v", md)
	}
	var canvas surface.State
	if err := json.Unmarshal(md.CanvasData, &canvas); err != nil || len(canvas.Objects) != 1 {
		t.Fatalf("canvas data should carry the stroke: %v %+v", err, canvas)
	}
	if md.Timestamp == 0 {
		t.Fatalf("timestamp missing")
	}
}

func TestSaveFailureKeepsEditorOpen(t *testing.T) {
	h := newHarness(t)
	h.cb.reply = func(string) hostcb.Result { return hostcb.Result{Success: false, Error: "disk full"} }
	h.open("families")
	var ch <-chan hostcb.Result
	h.do(func() { ch = h.s.Save(context.Background()) })
	res := <-ch
	if res.Success {
		t.Fatalf("expected failure")
	}
	st := h.state()
	if st.Phase != Open || !st.AllowedToOpen {
		t.Fatalf("editor must stay open after a failed save, got %s", st.Phase)
	}
	if st.Failure == nil || !strings.Contains(st.Failure.Detail, "disk full") {
		t.Fatalf("expected failure detail, got %+v", st.Failure)
	}
	if st.Loading {
		t.Fatalf("loading overlay should be gone")
	}
	if h.cb.count(hostcb.ActionCloseEditor) != 0 {
		t.Fatalf("no close callback on failure")
	}
}

func TestSaveResultAfterCloseIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.cb.hold = make(chan struct{})
	h.open("families")
	var ch <-chan hostcb.Result
	h.do(func() {
		ch = h.s.Save(context.Background())
		second := <-h.s.Save(context.Background())
		if second.Success {
			t.Errorf("a second save while one is pending must be refused")
		}
		h.s.Close(ReasonHost)
		if h.s.loading || h.s.saving {
			t.Errorf("closing mid-save must clear the save overlay")
		}
	})
	close(h.cb.hold)
	<-ch
	h.assertIdle()
	if n := h.cb.count(hostcb.ActionCloseEditor); n != 0 {
		t.Fatalf("late success must not close again, got %d closeEditor", n)
	}
	if n := h.cb.count(hostcb.ActionCloseNUI); n != 1 {
		t.Fatalf("expected the host close only, got %v", h.cb.actions())
	}
}

func sampleTemplates() []gallery.Template {
	return []gallery.Template{
		{ID: "crown", Name: "Crown", Category: gallery.CategoryCommon},
		{ID: "gold", Name: "Gold", Category: gallery.CategoryPremium, RequiredGrade: 4},
	}
}

func TestGalleryFlow(t *testing.T) {
	h := newHarness(t)
	h.do(func() {
		if err := h.s.OpenGallery(GalleryRequest{Templates: sampleTemplates(), Gang: "families", Grade: 1}); err != nil {
			t.Errorf("open gallery: %v", err)
		}
	})
	if v := Render(h.state()); !v.Gallery || v.Editor {
		t.Fatalf("only the gallery should show, got %+v", v)
	}

	var ch <-chan hostcb.Result
	h.do(func() {
		if _, err := h.s.SelectTemplate("gold"); err == nil {
			t.Errorf("locked template must be refused")
		}
		if res := <-h.s.UseSelectedTemplate(context.Background()); res.Success {
			t.Errorf("nothing selected yet")
		}
		if _, err := h.s.SelectTemplate("crown"); err != nil {
			t.Errorf("select crown: %v", err)
		}
		ch = h.s.UseSelectedTemplate(context.Background())
	})
	if res := <-ch; !res.Success {
		t.Fatalf("use template: %+v", res)
	}
	if Render(h.state()).Gallery {
		t.Fatalf("gallery should close after a successful use")
	}
	h.cb.mu.Lock()
	body := h.cb.calls[0].body.(hostcb.UseTemplate)
	h.cb.mu.Unlock()
	if body.TemplateID != "crown" || body.Gang != "families" {
		t.Fatalf("unexpected useTemplate body %+v", body)
	}
}

func TestGalleryUserCloseReleasesFocus(t *testing.T) {
	h := newHarness(t)
	h.do(func() {
		_ = h.s.OpenGallery(GalleryRequest{Templates: sampleTemplates(), Gang: "families"})
		h.s.CloseGallery(ReasonUser)
		h.s.CloseGallery(ReasonUser)
		_ = h.s.OpenGallery(GalleryRequest{Gang: "families"})
		h.s.CloseGallery(ReasonHost)
	})
	if got := h.cb.actions(); len(got) != 1 || got[0] != hostcb.ActionCloseNUI {
		t.Fatalf("expected one closeNUI for the user close, got %v", got)
	}
}

func TestImporterFlow(t *testing.T) {
	img := pngFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tag.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	h := newHarness(t)
	h.s.deps.Importer = gallery.NewImporter(time.Second, 0, srv.Client())
	var errCh <-chan error
	h.do(func() {
		_ = h.s.OpenGallery(GalleryRequest{Templates: sampleTemplates(), Gang: "ballas"})
		if err := h.s.SwitchToImporter(); err != nil {
			t.Errorf("switch: %v", err)
		}
		errCh = h.s.PreviewURL(context.Background(), srv.URL+"/missing.png")
	})
	if err := <-errCh; err == nil {
		t.Fatalf("expected fetch failure")
	}
	var status ImporterStatus
	h.do(func() { status = h.s.Importer() })
	if status.Error == "" || status.Preview != nil {
		t.Fatalf("failure should stay in the importer, got %+v", status)
	}
	if st := h.state(); st.Phase != Idle || st.Failure != nil || !st.ImporterOpen || st.GalleryOpen {
		t.Fatalf("session must be untouched by a bad image, got %+v", st)
	}

	h.do(func() { errCh = h.s.PreviewURL(context.Background(), "ftp://nope/a.png") })
	if err := <-errCh; err == nil {
		t.Fatalf("expected invalid url")
	}

	h.do(func() { errCh = h.s.PreviewURL(context.Background(), srv.URL+"/tag.png") })
	if err := <-errCh; err != nil {
		t.Fatalf("preview: %v", err)
	}
	var ch <-chan hostcb.Result
	h.do(func() {
		status = h.s.Importer()
		ch = h.s.UseURLImage(context.Background())
	})
	if status.Preview == nil || status.Preview.Width != 4 || status.Error != "" {
		t.Fatalf("unexpected preview status %+v", status)
	}
	if res := <-ch; !res.Success {
		t.Fatalf("use url image: %+v", res)
	}
	if Render(h.state()).Importer {
		t.Fatalf("importer should close after success")
	}
	h.cb.mu.Lock()
	body := h.cb.calls[len(h.cb.calls)-1].body.(hostcb.UseURLImage)
	h.cb.mu.Unlock()
	if body.Gang != "ballas" || body.ImageURL != srv.URL+"/tag.png" || !strings.HasPrefix(body.ImageData, hostcb.PNGDataURLPrefix) {
		t.Fatalf("unexpected useUrlImage body %+v", body)
	}
}

func pngFixture(t *testing.T) []byte {
	t.Helper()
	c := surface.NewCanvas("fixture", 4, 4, "#FF0000", nil)
	defer c.Dispose()
	data, err := c.ExportImage(surface.FormatPNG, 0)
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return data
}
