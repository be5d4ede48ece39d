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
	"fmt"
	"math"
	"strings"

	"github.com/gogpu/gg"
	"github.com/jung-kurt/gofpdf"
)

// Format selects the encoding of an exported image.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts the usual spellings and file extensions.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType is the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPDF:
		return "application/pdf"
	}
	return "image/png"
}

// ExportImage renders the canvas and encodes it. quality is in [0,1] and only
// affects JPEG; out-of-range values are clamped.
func (c *Canvas) ExportImage(format Format, quality float64) ([]byte, error) {
	if err := c.Render(); err != nil {
		return nil, err
	}
	img := c.Raster()
	switch format {
	case FormatPNG, "":
		return encodePNG(img)
	case FormatJPEG:
		// JPEG has no alpha; flatten onto white first
		dc := gg.NewContext(c.width, c.height)
		defer func() { _ = dc.Close() }()
		dc.ClearWithColor(gg.White)
		dc.DrawImage(gg.ImageBufFromImage(img), 0, 0)
		var buf bytes.Buffer
		if err := dc.EncodeJPEG(&buf, jpegQuality(quality)); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return buf.Bytes(), nil
	case FormatPDF:
		pngData, err := encodePNG(img)
		if err != nil {
			return nil, err
		}
		return PDFPage(pngData, float64(c.width), float64(c.height), c.id)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

func jpegQuality(q float64) int {
	if q <= 0 || math.IsNaN(q) {
		q = 0.8
	}
	if q > 1 {
		q = 1
	}
	return int(math.Round(q * 100))
}

// PDFPage wraps a PNG in a single page PDF sized w x h points.
func PDFPage(pngData []byte, w, h float64, title string) ([]byte, error) {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetTitle(title, false)
	pdf.SetAuthor("Spray Editor", false)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPageFormat("", gofpdf.SizeType{Wd: w, Ht: h})
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("design", opts, bytes.NewReader(pngData))
	pdf.ImageOptions("design", 0, 0, w, h, false, opts, 0, "")
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("build pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
