/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package hostcb

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// PNGDataURLPrefix starts every image payload.
const PNGDataURLPrefix = "data:image/png;base64,"

// Resolution is the canvas size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DesignMetadata describes a saved design.
type DesignMetadata struct {
	Gang       string          `json:"gang"`
	Colors     []string        `json:"colors"`
	CanvasData json.RawMessage `json:"canvasData"`
	Timestamp  int64           `json:"timestamp"`
	Resolution Resolution      `json:"resolution"`
}

// SaveDesign is the saveSprayDesign body.
type SaveDesign struct {
	ImageData string         `json:"imageData"`
	Metadata  DesignMetadata `json:"metadata"`
}

// UseTemplate is the useTemplate body.
type UseTemplate struct {
	TemplateID   string `json:"templateId"`
	TemplateData any    `json:"templateData"`
	Gang         string `json:"gang"`
}

// UseURLImage is the useUrlImage body.
type UseURLImage struct {
	ImageURL  string `json:"imageUrl"`
	ImageData string `json:"imageData"`
	Gang      string `json:"gang"`
}

// EncodePNGDataURL wraps raw PNG bytes as a data URL.
func EncodePNGDataURL(png []byte) string {
	return PNGDataURLPrefix + base64.StdEncoding.EncodeToString(png)
}

// DecodeImageData accepts a PNG data URL or bare base64 and returns the bytes.
func DecodeImageData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+len(";base64,"):]
	}
	if s == "" {
		return nil, errors.New("empty image data")
	}
	return base64.StdEncoding.DecodeString(s)
}
