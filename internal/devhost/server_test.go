/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package devhost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sprayeditor/internal/archive"
	"sprayeditor/internal/hostcb"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newHost(t *testing.T, token string) (*Server, *httptest.Server, *archive.Store) {
	t.Helper()
	store, err := archive.Open(context.Background(), archive.DriverSQLite, archive.SQLiteDSN(t.TempDir()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	s := New(Options{Store: store, Token: token, Keep: 10})
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv, store
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func TestSaveDesignThroughCallbackClient(t *testing.T) {
	s, srv, _ := newHost(t, "secret")
	cb := hostcb.New(hostcb.Options{BaseURL: srv.URL, Token: "secret", Timeout: 5 * time.Second})

	body := hostcb.SaveDesign{
		ImageData: hostcb.EncodePNGDataURL(pngBytes(t, 40, 30)),
		Metadata: hostcb.DesignMetadata{
			Gang:       "families",
			Colors:     []string{"#00FF00"},
			CanvasData: json.RawMessage(`{"version":1}`),
			Timestamp:  time.Now().UnixMilli(),
			Resolution: hostcb.Resolution{Width: 40, Height: 30},
		},
	}
	res := cb.Post(context.Background(), hostcb.ActionSaveDesign, body)
	if !res.Success || res.Err != nil {
		t.Fatalf("save result = %+v", res)
	}
	id, _ := res.Data["id"].(string)
	if id == "" {
		t.Fatalf("no id in reply: %+v", res.Data)
	}

	resp, list := get(t, srv.URL+"/designs?gang=families")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status %d", resp.StatusCode)
	}
	var sums []archive.Summary
	if err := json.Unmarshal(list, &sums); err != nil || len(sums) != 1 || sums[0].ID != id {
		t.Fatalf("list = %s (%v)", list, err)
	}
	if sums[0].Width != 40 || sums[0].Height != 30 {
		t.Fatalf("size = %dx%d", sums[0].Width, sums[0].Height)
	}

	resp, img := get(t, srv.URL+"/designs/"+id+".png")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("png status %d type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if cfg, err := png.DecodeConfig(bytes.NewReader(img)); err != nil || cfg.Width != 40 {
		t.Fatalf("png = %+v, %v", cfg, err)
	}

	resp, pdf := get(t, srv.URL+"/designs/"+id+".pdf")
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("pdf status %d prefix %q", resp.StatusCode, pdf[:min(8, len(pdf))])
	}

	cbs := s.Callbacks()
	if len(cbs) != 1 || cbs[0].Action != hostcb.ActionSaveDesign || cbs[0].Body != nil {
		t.Fatalf("callbacks = %+v", cbs)
	}
}

func TestSaveRejectsNonPNG(t *testing.T) {
	_, srv, store := newHost(t, "")
	cb := hostcb.New(hostcb.Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	res := cb.Post(context.Background(), hostcb.ActionSaveDesign, hostcb.SaveDesign{
		ImageData: hostcb.EncodePNGDataURL([]byte("not an image")),
	})
	if res.Success || res.Error == "" {
		t.Fatalf("expected host-reported failure, got %+v", res)
	}
	if errors.Is(res.Err, hostcb.ErrCallbackDelivery) {
		t.Fatal("validation failure should not look like a delivery failure")
	}
	if list, _ := store.List(context.Background(), archive.ListOptions{}); len(list) != 0 {
		t.Fatalf("bad design stored: %+v", list)
	}
}

func TestCloseAndUseCallbacks(t *testing.T) {
	s, srv, _ := newHost(t, "")
	cb := hostcb.New(hostcb.Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	ctx := context.Background()

	for _, a := range []string{hostcb.ActionCloseEditor, hostcb.ActionCloseNUI} {
		if res := cb.Post(ctx, a, map[string]any{}); !res.Success {
			t.Fatalf("%s: %+v", a, res)
		}
	}
	if res := cb.Post(ctx, hostcb.ActionUseTemplate, hostcb.UseTemplate{TemplateID: "tag-1", Gang: "ballas"}); !res.Success {
		t.Fatalf("useTemplate: %+v", res)
	}
	if res := cb.Post(ctx, hostcb.ActionUseTemplate, hostcb.UseTemplate{}); res.Success {
		t.Fatal("useTemplate without id accepted")
	}
	if res := cb.Post(ctx, hostcb.ActionUseURLImage, hostcb.UseURLImage{ImageURL: "https://i.imgur.com/a.png"}); !res.Success {
		t.Fatalf("useUrlImage: %+v", res)
	}
	if res := cb.Post(ctx, hostcb.ActionUseURLImage, hostcb.UseURLImage{ImageURL: "https://x/y.png", ImageData: "%%%"}); res.Success {
		t.Fatal("bad imageData accepted")
	}

	got := s.Callbacks()
	want := []string{
		hostcb.ActionCloseEditor, hostcb.ActionCloseNUI,
		hostcb.ActionUseTemplate, hostcb.ActionUseTemplate,
		hostcb.ActionUseURLImage, hostcb.ActionUseURLImage,
	}
	if len(got) != len(want) {
		t.Fatalf("callbacks = %+v", got)
	}
	for i := range want {
		if got[i].Action != want[i] {
			t.Fatalf("callback %d = %s, want %s", i, got[i].Action, want[i])
		}
	}

	resp, b := get(t, srv.URL+"/callbacks")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(b), "tag-1") {
		t.Fatalf("callbacks endpoint: %d %s", resp.StatusCode, b)
	}
}

func TestAuthRequired(t *testing.T) {
	_, srv, _ := newHost(t, "secret")
	for _, tok := range []string{"", "wrong"} {
		cb := hostcb.New(hostcb.Options{BaseURL: srv.URL, Token: tok, Timeout: 5 * time.Second})
		res := cb.Post(context.Background(), hostcb.ActionCloseEditor, map[string]any{})
		if res.Success || !errors.Is(res.Err, hostcb.ErrCallbackDelivery) {
			t.Fatalf("token %q: %+v", tok, res)
		}
	}
}

func TestDesignLookupErrors(t *testing.T) {
	_, srv, _ := newHost(t, "")
	for _, p := range []string{"/designs/nope.png", "/designs/00000000-0000-0000-0000-000000000000.pdf"} {
		if resp, _ := get(t, srv.URL+p); resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s status %d", p, resp.StatusCode)
		}
	}
	if resp, _ := get(t, srv.URL+"/designs?limit=x"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status %d", resp.StatusCode)
	}
	resp, err := http.Get(srv.URL + "/" + hostcb.ActionCloseNUI)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET callback status %d", resp.StatusCode)
	}
}

type brokenStore struct{ Store }

func (brokenStore) Ping(context.Context) error { return errors.New("down") }

func TestHealthAndReadiness(t *testing.T) {
	_, srv, _ := newHost(t, "")
	for _, p := range []string{"/healthz", "/readyz"} {
		if resp, _ := get(t, srv.URL+p); resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d", p, resp.StatusCode)
		}
	}

	down := httptest.NewServer(New(Options{Store: brokenStore{}}))
	defer down.Close()
	if resp, _ := get(t, down.URL+"/readyz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz with broken store = %d", resp.StatusCode)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("shutdown err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
