/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package devhost is an HTTP stand-in for the game client. It answers the
// editor's callbacks and archives saved designs so they can be inspected.
package devhost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"sprayeditor/internal/archive"
	"sprayeditor/internal/hostcb"
	applog "sprayeditor/internal/log"
	"sprayeditor/internal/surface"
)

const (
	maxBody      = 16 << 20
	maxCallbacks = 100
)

// Store is the subset of the archive the server needs. *archive.Store satisfies it.
type Store interface {
	Save(ctx context.Context, d *archive.Design) error
	Get(ctx context.Context, id string) (*archive.Design, error)
	List(ctx context.Context, opts archive.ListOptions) ([]archive.Summary, error)
	Prune(ctx context.Context, keep int) (int64, error)
	Ping(ctx context.Context) error
}

// Callback is one request the server received.
type Callback struct {
	Action string          `json:"action"`
	At     time.Time       `json:"at"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Options configures a Server. An empty Token disables auth.
type Options struct {
	Store Store
	Token string
	Keep  int
}

// Server serves the callback endpoints and the design gallery.
type Server struct {
	store Store
	token string
	keep  int
	log   *slog.Logger
	mux   *http.ServeMux

	mu        sync.Mutex
	callbacks []Callback
}

func New(opts Options) *Server {
	s := &Server{
		store: opts.Store,
		token: opts.Token,
		keep:  opts.Keep,
		log:   applog.WithComponent("devhost"),
		mux:   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /"+hostcb.ActionSaveDesign, s.withAuth(s.handleSave))
	s.mux.HandleFunc("POST /"+hostcb.ActionCloseEditor, s.withAuth(s.handleClose))
	s.mux.HandleFunc("POST /"+hostcb.ActionCloseNUI, s.withAuth(s.handleClose))
	s.mux.HandleFunc("POST /"+hostcb.ActionUseTemplate, s.withAuth(s.handleUseTemplate))
	s.mux.HandleFunc("POST /"+hostcb.ActionUseURLImage, s.withAuth(s.handleUseURL))
	s.mux.HandleFunc("GET /designs", s.handleList)
	s.mux.HandleFunc("GET /designs/{file}", s.handleDesign)
	s.mux.HandleFunc("GET /callbacks", s.handleCallbacks)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.HandleFunc("GET /readyz", s.handleReady)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Callbacks returns the most recent callbacks, oldest first.
func (s *Server) Callbacks() []Callback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Callback(nil), s.callbacks...)
}

func (s *Server) record(action string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, Callback{Action: action, At: time.Now(), Body: json.RawMessage(body)})
	if len(s.callbacks) > maxCallbacks {
		s.callbacks = append([]Callback(nil), s.callbacks[len(s.callbacks)-maxCallbacks:]...)
	}
}

// readCallback reads and records the body. Image payloads are not kept in
// the callback log.
func (s *Server) readCallback(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	action := strings.TrimPrefix(r.URL.Path, "/")
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	_ = r.Body.Close()
	if err != nil || len(b) > maxBody {
		reply(w, false, "request body too large or unreadable")
		return action, nil, false
	}
	if len(bytes.TrimSpace(b)) == 0 {
		b = []byte("{}")
	}
	if !json.Valid(b) {
		reply(w, false, "body is not JSON")
		return action, nil, false
	}
	logged := b
	if action == hostcb.ActionSaveDesign || action == hostcb.ActionUseURLImage {
		logged = nil
	}
	s.record(action, logged)
	s.log.Debug("callback received", slog.String("action", action), slog.Int("bytes", len(b)))
	return action, b, true
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.readCallback(w, r); ok {
		reply(w, true, "")
	}
}

func (s *Server) handleUseTemplate(w http.ResponseWriter, r *http.Request) {
	_, b, ok := s.readCallback(w, r)
	if !ok {
		return
	}
	var body hostcb.UseTemplate
	if err := json.Unmarshal(b, &body); err != nil || body.TemplateID == "" {
		reply(w, false, "templateId is required")
		return
	}
	s.log.Info("template applied", slog.String("template", body.TemplateID), slog.String("gang", body.Gang))
	reply(w, true, "")
}

func (s *Server) handleUseURL(w http.ResponseWriter, r *http.Request) {
	_, b, ok := s.readCallback(w, r)
	if !ok {
		return
	}
	var body hostcb.UseURLImage
	if err := json.Unmarshal(b, &body); err != nil || body.ImageURL == "" {
		reply(w, false, "imageUrl is required")
		return
	}
	if body.ImageData != "" {
		if _, err := hostcb.DecodeImageData(body.ImageData); err != nil {
			reply(w, false, "imageData is not valid base64")
			return
		}
	}
	s.log.Info("url image applied", slog.String("url", body.ImageURL), slog.String("gang", body.Gang))
	reply(w, true, "")
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	_, b, ok := s.readCallback(w, r)
	if !ok {
		return
	}
	var body hostcb.SaveDesign
	if err := json.Unmarshal(b, &body); err != nil {
		reply(w, false, "malformed design")
		return
	}
	png, err := hostcb.DecodeImageData(body.ImageData)
	if err != nil {
		reply(w, false, "imageData: "+err.Error())
		return
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(png))
	if err != nil || format != "png" {
		reply(w, false, "imageData is not a PNG")
		return
	}
	if s.store == nil {
		reply(w, true, "")
		return
	}
	d := &archive.Design{
		Gang:       body.Metadata.Gang,
		Colors:     body.Metadata.Colors,
		CanvasData: body.Metadata.CanvasData,
		ImagePNG:   png,
		Width:      cfg.Width,
		Height:     cfg.Height,
	}
	if body.Metadata.Timestamp > 0 {
		d.CreatedAt = time.UnixMilli(body.Metadata.Timestamp)
	}
	if err := s.store.Save(r.Context(), d); err != nil {
		s.log.Error("archive design failed", slog.Any("err", err))
		reply(w, false, "could not store design")
		return
	}
	if s.keep > 0 {
		if _, err := s.store.Prune(r.Context(), s.keep); err != nil {
			s.log.Warn("prune failed", slog.Any("err", err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": d.ID})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []archive.Summary{})
		return
	}
	opts := archive.ListOptions{Gang: r.URL.Query().Get("gang")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		opts.Limit = n
	}
	list, err := s.store.List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleDesign serves /designs/{id}.png, /designs/{id}.pdf and /designs/{id} (JSON).
func (s *Server) handleDesign(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	ext := path.Ext(file)
	id := strings.TrimSuffix(file, ext)
	if s.store == nil {
		writeError(w, http.StatusNotFound, archive.ErrNotFound)
		return
	}
	d, err := s.store.Get(r.Context(), id)
	if errors.Is(err, archive.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	switch strings.ToLower(ext) {
	case "", ".json":
		writeJSON(w, http.StatusOK, d)
	case ".png":
		w.Header().Set("Content-Type", surface.FormatPNG.ContentType())
		_, _ = w.Write(d.ImagePNG)
	case ".pdf":
		title := fmt.Sprintf("%s design %s", orDefault(d.Gang, "spray"), d.CreatedAt.Format("2006-01-02 15:04"))
		pdf, err := surface.PDFPage(d.ImagePNG, float64(d.Width), float64(d.Height), title)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", surface.FormatPDF.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", d.ID+".pdf"))
		_, _ = w.Write(pdf)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unsupported format %q", ext))
	}
}

func (s *Server) handleCallbacks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Callbacks())
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("archive not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next(w, r)
			return
		}
		const prefix = "bearer "
		auth := r.Header.Get("Authorization")
		if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) ||
			strings.TrimSpace(auth[len(prefix):]) != s.token {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("invalid bearer token"))
			return
		}
		next(w, r)
	}
}

// ListenAndServe runs the server on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("dev host listening", slog.String("addr", addr))
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shut)
	}
}

func reply(w http.ResponseWriter, ok bool, msg string) {
	body := map[string]any{"success": ok}
	if msg != "" {
		body["error"] = msg
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
