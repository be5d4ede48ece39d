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
	"errors"
	"testing"
)

func sampleTemplates() []Template {
	return []Template{
		{ID: "crown", Name: "Crown", Category: CategoryCommon},
		{ID: "fam-tag", Name: "Families Tag", Category: CategoryGang, Gang: "families"},
		{ID: "ballas-tag", Name: "Ballas Tag", Category: CategoryGang, Gang: "ballas"},
		{ID: "gold", Name: "Gold Skull", Category: CategoryPremium, RequiredGrade: 3},
	}
}

func TestCatalog_Availability(t *testing.T) {
	c := NewCatalog()
	c.Load(sampleTemplates(), "families", 2)
	want := map[string]bool{"crown": true, "fam-tag": true, "ballas-tag": false, "gold": false}
	for _, tpl := range c.All() {
		if tpl.Available != want[tpl.ID] {
			t.Fatalf("%s: available=%v, want %v", tpl.ID, tpl.Available, want[tpl.ID])
		}
	}
	c.Load(sampleTemplates(), "families", 3)
	if _, err := c.Select("gold"); err != nil {
		t.Fatalf("grade 3 should unlock gold: %v", err)
	}
}

func TestCatalog_FilterAndSearch(t *testing.T) {
	c := NewCatalog()
	c.Load(sampleTemplates(), "families", 0)
	if n := len(c.Filter(CategoryGang)); n != 2 {
		t.Fatalf("expected 2 gang templates, got %d", n)
	}
	if n := len(c.Filter("all")); n != 4 {
		t.Fatalf("expected all templates, got %d", n)
	}
	if n := len(c.Search("  TAG ")); n != 2 {
		t.Fatalf("expected 2 tag matches, got %d", n)
	}
	if n := len(c.Search("premium")); n != 1 {
		t.Fatalf("category should be searchable, got %d", n)
	}
	if n := len(c.Search("")); n != 4 {
		t.Fatalf("blank query returns everything, got %d", n)
	}
}

func TestCatalog_SelectLockedKeepsPrevious(t *testing.T) {
	c := NewCatalog()
	c.Load(sampleTemplates(), "families", 0)
	if _, ok := c.Selected(); ok {
		t.Fatalf("fresh catalog has no selection")
	}
	if _, err := c.Select("crown"); err != nil {
		t.Fatalf("select crown: %v", err)
	}
	if _, err := c.Select("ballas-tag"); !errors.Is(err, ErrTemplateLocked) {
		t.Fatalf("expected ErrTemplateLocked, got %v", err)
	}
	if _, err := c.Select("missing"); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
	sel, ok := c.Selected()
	if !ok || sel.ID != "crown" {
		t.Fatalf("selection should stay on crown, got %+v ok=%v", sel, ok)
	}
	c.Load(sampleTemplates(), "families", 0)
	if _, ok := c.Selected(); ok {
		t.Fatalf("reload must clear the selection")
	}
}

func TestCategoryLabel(t *testing.T) {
	if CategoryLabel(CategoryCommon) != "Common" || CategoryLabel("weird") != "weird" {
		t.Fatalf("unexpected labels")
	}
}
