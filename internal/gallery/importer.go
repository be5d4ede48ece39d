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
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	applog "sprayeditor/internal/log"
)

// ErrInvalidRemoteImage covers every way a pasted URL can fail: bad syntax,
// unreachable host, oversize body or undecodable content.
var ErrInvalidRemoteImage = errors.New("invalid remote image")

var imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// ValidateURL applies the cheap syntactic checks done before any fetch.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty url", ErrInvalidRemoteImage)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRemoteImage, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q not allowed", ErrInvalidRemoteImage, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidRemoteImage)
	}
	p := strings.ToLower(u.Path)
	for _, ext := range imageExts {
		if strings.HasSuffix(p, ext) {
			return u, nil
		}
	}
	host := strings.ToLower(u.Hostname())
	if strings.Contains(p, "image") || strings.Contains(host, "imgur") || strings.Contains(host, "discord") {
		return u, nil
	}
	return nil, fmt.Errorf("%w: %s does not look like an image", ErrInvalidRemoteImage, raw)
}

// Preview is a fetched and decoded remote image.
type Preview struct {
	URL       string
	Format    string
	Width     int
	Height    int
	Bytes     int
	Thumbnail *image.RGBA
	PNG       []byte
}

// DataURL returns the image re-encoded as a base64 PNG data URL.
func (p Preview) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(p.PNG)
}

// Importer downloads remote images for preview.
type Importer struct {
	Timeout   time.Duration
	MaxBytes  int64
	ThumbSize int
	client    *http.Client
	log       *slog.Logger
}

// NewImporter returns an importer; zero values fall back to 10s, 8 MiB and 128px.
func NewImporter(timeout time.Duration, maxBytes int64, hc *http.Client) *Importer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Importer{
		Timeout:   timeout,
		MaxBytes:  maxBytes,
		ThumbSize: 128,
		client:    hc,
		log:       applog.WithComponent("gallery"),
	}
}

// Fetch validates raw, downloads it within Timeout and decodes it. All failures
// wrap ErrInvalidRemoteImage.
func (im *Importer) Fetch(ctx context.Context, raw string) (Preview, error) {
	u, err := ValidateURL(raw)
	if err != nil {
		return Preview{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, im.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Preview{}, fmt.Errorf("%w: %v", ErrInvalidRemoteImage, err)
	}
	req.Header.Set("Accept", "image/*")
	resp, err := im.client.Do(req)
	if err != nil {
		return Preview{}, fmt.Errorf("%w: %v", ErrInvalidRemoteImage, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Preview{}, fmt.Errorf("%w: %s", ErrInvalidRemoteImage, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, im.MaxBytes+1))
	if err != nil {
		return Preview{}, fmt.Errorf("%w: read: %v", ErrInvalidRemoteImage, err)
	}
	if int64(len(body)) > im.MaxBytes {
		return Preview{}, fmt.Errorf("%w: larger than %d bytes", ErrInvalidRemoteImage, im.MaxBytes)
	}
	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return Preview{}, fmt.Errorf("%w: decode: %v", ErrInvalidRemoteImage, err)
	}
	var enc bytes.Buffer
	if err := png.Encode(&enc, img); err != nil {
		return Preview{}, fmt.Errorf("%w: re-encode: %v", ErrInvalidRemoteImage, err)
	}
	b := img.Bounds()
	im.log.Debug("remote image fetched",
		slog.String("url", u.Redacted()), slog.String("format", format), slog.Int("bytes", len(body)))
	return Preview{
		URL:       u.String(),
		Format:    format,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Bytes:     len(body),
		Thumbnail: Thumbnail(img, im.ThumbSize),
		PNG:       enc.Bytes(),
	}, nil
}

// Thumbnail scales img to fit in a size x size box, keeping the aspect ratio.
func Thumbnail(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if size <= 0 || w == 0 || h == 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	if w > size || h > size {
		if w >= h {
			h = h * size / w
			w = size
		} else {
			w = w * size / h
			h = size
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
