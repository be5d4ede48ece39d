/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package gallery holds the template catalog and the remote image importer used
// by the editor's side panels.
package gallery

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTemplateLocked is returned when selecting a template the player may not use.
	ErrTemplateLocked = errors.New("template locked")
	// ErrTemplateNotFound is returned for unknown template IDs.
	ErrTemplateNotFound = errors.New("template not found")
)

// Template categories.
const (
	CategoryGang    = "gang"
	CategoryCommon  = "common"
	CategoryPremium = "premium"
	CategoryCustom  = "custom"
)

// Template is one preset design offered by the host.
type Template struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	RequiredGrade int    `json:"requiredGrade,omitempty"`
	Gang          string `json:"gang,omitempty"`
	FilePath      string `json:"filePath,omitempty"`
	Available     bool   `json:"available"`
}

// Catalog filters and selects templates for one gang member. It is not safe for
// concurrent use; the session drives it from the event loop.
type Catalog struct {
	templates []Template
	gang      string
	grade     int
	selected  int
}

func NewCatalog() *Catalog { return &Catalog{selected: -1} }

// Load replaces the catalog contents and clears the selection.
func (c *Catalog) Load(templates []Template, gang string, grade int) {
	c.gang, c.grade = gang, grade
	c.templates = make([]Template, len(templates))
	for i, t := range templates {
		t.Available = c.allowed(t)
		c.templates[i] = t
	}
	c.selected = -1
}

// Reset drops every template and the selection.
func (c *Catalog) Reset() { c.Load(nil, "", 0) }

func (c *Catalog) allowed(t Template) bool {
	if t.Gang != "" && t.Gang != c.gang {
		return false
	}
	return t.RequiredGrade <= c.grade
}

func (c *Catalog) Gang() string { return c.gang }

func (c *Catalog) Len() int { return len(c.templates) }

// All returns every template in load order.
func (c *Catalog) All() []Template { return append([]Template(nil), c.templates...) }

// Filter returns templates of category; "" and "all" return everything.
func (c *Catalog) Filter(category string) []Template {
	if category == "" || category == "all" {
		return c.All()
	}
	var out []Template
	for _, t := range c.templates {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// Search matches query case-insensitively against name and category.
func (c *Catalog) Search(query string) []Template {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return c.All()
	}
	var out []Template
	for _, t := range c.templates {
		if strings.Contains(strings.ToLower(t.Name), q) || strings.Contains(strings.ToLower(t.Category), q) {
			out = append(out, t)
		}
	}
	return out
}

// Select marks id as the current choice. Locked templates are refused and leave
// the previous selection untouched.
func (c *Catalog) Select(id string) (Template, error) {
	for i, t := range c.templates {
		if t.ID != id {
			continue
		}
		if !t.Available {
			return Template{}, fmt.Errorf("%w: %s requires grade %d", ErrTemplateLocked, t.ID, t.RequiredGrade)
		}
		c.selected = i
		return t, nil
	}
	return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
}

func (c *Catalog) Selected() (Template, bool) {
	if c.selected < 0 || c.selected >= len(c.templates) {
		return Template{}, false
	}
	return c.templates[c.selected], true
}

func (c *Catalog) ClearSelection() { c.selected = -1 }

// CategoryLabel is the display name for a category.
func CategoryLabel(category string) string {
	switch category {
	case CategoryGang:
		return "Gang"
	case CategoryCommon:
		return "Common"
	case CategoryPremium:
		return "Premium"
	case CategoryCustom:
		return "Custom"
	}
	return category
}
