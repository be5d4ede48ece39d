/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package gallery

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestValidateURL(t *testing.T) {
	good := []string{
		"https://example.com/a.png",
		"http://example.com/x/Y.JPEG",
		"https://cdn.example.com/images/123",
		"https://i.imgur.com/abc",
		"https://media.discordapp.net/attachments/1/2/file",
	}
	for _, u := range good {
		if _, err := ValidateURL(u); err != nil {
			t.Fatalf("ValidateURL(%q): %v", u, err)
		}
	}
	bad := []string{"", "ftp://example.com/a.png", "https://example.com/page.html", "not a url", "https:///a.png"}
	for _, u := range bad {
		if _, err := ValidateURL(u); !errors.Is(err, ErrInvalidRemoteImage) {
			t.Fatalf("ValidateURL(%q) expected ErrInvalidRemoteImage, got %v", u, err)
		}
	}
}

func TestImporter_FetchDecodesAndThumbnails(t *testing.T) {
	data := pngBytes(t, 400, 200)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	im := NewImporter(time.Second, 0, srv.Client())
	p, err := im.Fetch(context.Background(), srv.URL+"/tag.png")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if p.Width != 400 || p.Height != 200 || p.Format != "png" {
		t.Fatalf("unexpected preview %dx%d %s", p.Width, p.Height, p.Format)
	}
	if got := p.Thumbnail.Bounds(); got.Dx() != 128 || got.Dy() != 64 {
		t.Fatalf("unexpected thumbnail size %v", got)
	}
	if !strings.HasPrefix(p.DataURL(), "data:image/png;base64,") {
		t.Fatalf("bad data url prefix")
	}
}

func TestImporter_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.png":
			http.NotFound(w, r)
		case "/big.png":
			_, _ = w.Write(make([]byte, 2048))
		case "/slow.png":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		default:
			_, _ = w.Write([]byte("definitely not an image"))
		}
	}))
	defer srv.Close()

	im := NewImporter(100*time.Millisecond, 1024, srv.Client())
	for _, p := range []string{"/missing.png", "/big.png", "/slow.png", "/garbage.png"} {
		_, err := im.Fetch(context.Background(), srv.URL+p)
		if !errors.Is(err, ErrInvalidRemoteImage) {
			t.Fatalf("%s: expected ErrInvalidRemoteImage, got %v", p, err)
		}
	}
}

func TestThumbnail_SmallImageKeepsSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 30))
	th := Thumbnail(img, 128)
	if th.Bounds().Dx() != 10 || th.Bounds().Dy() != 30 {
		t.Fatalf("small images are not upscaled, got %v", th.Bounds())
	}
	th = Thumbnail(image.NewRGBA(image.Rect(0, 0, 100, 400)), 40)
	if th.Bounds().Dx() != 10 || th.Bounds().Dy() != 40 {
		t.Fatalf("portrait scale wrong, got %v", th.Bounds())
	}
}
