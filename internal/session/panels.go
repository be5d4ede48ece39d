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
	"errors"
	"fmt"
	"log/slog"

	"sprayeditor/internal/gallery"
	"sprayeditor/internal/hostcb"
)

// GalleryRequest is the host's openTemplateSelector payload.
type GalleryRequest struct {
	Templates []gallery.Template
	Gang      string
	Grade     int
}

type galleryPanel struct {
	open    bool
	gen     uint64
	catalog *gallery.Catalog
	using   bool
}

type importerPanel struct {
	open     bool
	gen      uint64
	gang     string
	url      string
	preview  *gallery.Preview
	err      string
	fetching bool
	using    bool
}

// OpenGallery shows the template selector. Only the host may call it.
func (s *Session) OpenGallery(req GalleryRequest) error {
	if s.phase == Transitioning {
		return ErrTransitioning
	}
	s.gallery.gen++
	s.gallery.catalog.Load(req.Templates, req.Gang, req.Grade)
	s.gallery.open = true
	s.gallery.using = false
	s.log.Info("gallery opened", slog.String("gang", req.Gang), slog.Int("templates", s.gallery.catalog.Len()))
	s.changed()
	return nil
}

// CloseGallery hides the selector. A user close tells the host to release focus.
func (s *Session) CloseGallery(reason Reason) {
	if !s.gallery.open {
		return
	}
	s.resetGallery()
	if reason == ReasonUser && s.phase != Open {
		s.notify(hostcb.ActionCloseNUI)
	}
	s.changed()
}

func (s *Session) resetGallery() {
	s.gallery.open = false
	s.gallery.using = false
	s.gallery.gen++
	if s.gallery.catalog != nil {
		s.gallery.catalog.Reset()
	}
}

// Catalog exposes the gallery contents for filtering and search.
func (s *Session) Catalog() *gallery.Catalog { return s.gallery.catalog }

// SelectTemplate picks a template in the open gallery.
func (s *Session) SelectTemplate(id string) (gallery.Template, error) {
	if !s.gallery.open {
		return gallery.Template{}, errors.New("gallery not open")
	}
	t, err := s.gallery.catalog.Select(id)
	if errors.Is(err, gallery.ErrTemplateLocked) {
		for _, c := range s.gallery.catalog.All() {
			if c.ID == id {
				s.notifyUser(NoticeWarning, fmt.Sprintf("Requires gang rank %d or higher", c.RequiredGrade))
			}
		}
	}
	s.changed()
	return t, err
}

// UseSelectedTemplate sends the selection to the host; success closes the gallery.
func (s *Session) UseSelectedTemplate(ctx context.Context) <-chan hostcb.Result {
	out := make(chan hostcb.Result, 1)
	done := func(r hostcb.Result) {
		out <- r
		close(out)
	}
	if !s.gallery.open {
		done(hostcb.Result{Error: "gallery not open"})
		return out
	}
	t, ok := s.gallery.catalog.Selected()
	if !ok {
		s.notifyUser(NoticeWarning, "No template selected")
		done(hostcb.Result{Error: "no template selected"})
		return out
	}
	if s.gallery.using || s.deps.Callbacks == nil {
		done(hostcb.Result{Error: "template request unavailable"})
		return out
	}
	s.gallery.using = true
	gen := s.gallery.gen
	ch := s.deps.Callbacks.Send(ctx, hostcb.ActionUseTemplate, hostcb.UseTemplate{
		TemplateID:   t.ID,
		TemplateData: t,
		Gang:         s.gallery.catalog.Gang(),
	})
	go func() {
		res := <-ch
		if !s.post(func() {
			s.finishUseTemplate(gen, t, res)
			done(res)
		}) {
			done(res)
		}
	}()
	return out
}

func (s *Session) finishUseTemplate(gen uint64, t gallery.Template, res hostcb.Result) {
	if gen != s.gallery.gen || !s.gallery.open {
		return
	}
	s.gallery.using = false
	if !res.Success {
		s.fail("Using the template failed.", errors.New(orDefault(res.Error, "host rejected the template")))
		return
	}
	s.notifyUser(NoticeSuccess, fmt.Sprintf("Using template %q", t.Name))
	s.resetGallery()
	s.changed()
}

// OpenImporter shows the URL importer. Only the host may call it.
func (s *Session) OpenImporter(gang string) error {
	if s.phase == Transitioning {
		return ErrTransitioning
	}
	s.resetImporter()
	s.importer.open = true
	s.importer.gang = gang
	s.log.Info("url importer opened", slog.String("gang", gang))
	s.changed()
	return nil
}

// SwitchToImporter replaces the open gallery with the URL importer for the same gang.
func (s *Session) SwitchToImporter() error {
	if !s.gallery.open {
		return errors.New("gallery not open")
	}
	gang := s.gallery.catalog.Gang()
	s.resetGallery()
	return s.OpenImporter(gang)
}

// CloseImporter hides the importer and forgets the preview.
func (s *Session) CloseImporter(reason Reason) {
	if !s.importer.open {
		return
	}
	s.resetImporter()
	if reason == ReasonUser && s.phase != Open {
		s.notify(hostcb.ActionCloseNUI)
	}
	s.changed()
}

func (s *Session) resetImporter() {
	gen := s.importer.gen + 1
	s.importer = importerPanel{gen: gen}
}

// ImporterStatus is what the importer panel shows.
type ImporterStatus struct {
	URL      string
	Preview  *gallery.Preview
	Error    string
	Fetching bool
}

func (s *Session) Importer() ImporterStatus {
	return ImporterStatus{URL: s.importer.url, Preview: s.importer.preview, Error: s.importer.err, Fetching: s.importer.fetching}
}

// PreviewURL validates and fetches raw off the loop. Failures stay inside the
// importer panel as a retryable error; the returned channel yields the outcome
// after it has been applied.
func (s *Session) PreviewURL(ctx context.Context, raw string) <-chan error {
	out := make(chan error, 1)
	done := func(err error) {
		out <- err
		close(out)
	}
	if !s.importer.open {
		done(errors.New("importer not open"))
		return out
	}
	s.importer.url = raw
	s.importer.preview = nil
	if _, err := gallery.ValidateURL(raw); err != nil {
		s.importer.err = "Invalid image URL"
		s.changed()
		done(err)
		return out
	}
	s.importer.err = ""
	s.importer.fetching = true
	s.changed()
	gen := s.importer.gen
	im := s.deps.Importer
	go func() {
		p, err := im.Fetch(ctx, raw)
		if !s.post(func() {
			s.finishPreview(gen, raw, p, err)
			done(err)
		}) {
			done(err)
		}
	}()
	return out
}

func (s *Session) finishPreview(gen uint64, raw string, p gallery.Preview, err error) {
	if gen != s.importer.gen || s.importer.url != raw {
		return
	}
	s.importer.fetching = false
	if err != nil {
		s.log.Debug("preview failed", slog.Any("err", err))
		s.importer.err = "The image could not be loaded"
		s.changed()
		return
	}
	s.importer.preview = &p
	s.notifyUser(NoticeSuccess, "Image preview loaded")
	s.changed()
}

// UseURLImage sends the previewed image to the host; success closes the importer.
func (s *Session) UseURLImage(ctx context.Context) <-chan hostcb.Result {
	out := make(chan hostcb.Result, 1)
	done := func(r hostcb.Result) {
		out <- r
		close(out)
	}
	if !s.importer.open || s.importer.preview == nil {
		s.notifyUser(NoticeWarning, "No image URL previewed")
		done(hostcb.Result{Error: "no image previewed"})
		return out
	}
	if s.importer.using || s.deps.Callbacks == nil {
		done(hostcb.Result{Error: "image request unavailable"})
		return out
	}
	s.importer.using = true
	gen := s.importer.gen
	p := s.importer.preview
	ch := s.deps.Callbacks.Send(ctx, hostcb.ActionUseURLImage, hostcb.UseURLImage{
		ImageURL:  p.URL,
		ImageData: p.DataURL(),
		Gang:      s.importer.gang,
	})
	go func() {
		res := <-ch
		if !s.post(func() {
			s.finishUseURL(gen, res)
			done(res)
		}) {
			done(res)
		}
	}()
	return out
}

func (s *Session) finishUseURL(gen uint64, res hostcb.Result) {
	if gen != s.importer.gen || !s.importer.open {
		return
	}
	s.importer.using = false
	if !res.Success {
		s.importer.err = orDefault(res.Error, "host rejected the image")
		s.changed()
		return
	}
	s.notifyUser(NoticeSuccess, "Using URL image")
	s.resetImporter()
	s.changed()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
