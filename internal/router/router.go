/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package router is the boundary between the untrusted host message stream and
// the session: it validates each message and maps it to exactly one transition.
package router

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"sprayeditor/internal/gallery"
	applog "sprayeditor/internal/log"
	"sprayeditor/internal/session"
)

// ErrMalformedHostMessage covers unparsable input, a missing or unknown type and
// payloads that fail schema validation.
var ErrMalformedHostMessage = errors.New("malformed host message")

// Canonical message types.
const (
	TypeOpen             = "open"
	TypeClose            = "close"
	TypeCloseAll         = "closeAll"
	TypeUpdateContext    = "updateContext"
	TypeOpenGallery      = "openGallery"
	TypeOpenURLImporter  = "openUrlImporter"
	TypeCloseGallery     = "closeGallery"
	TypeCloseURLImporter = "closeUrlImporter"
)

// aliases maps the game client's wire names onto canonical types.
var aliases = map[string]string{
	"openSprayEditor":       TypeOpen,
	"closeSprayEditor":      TypeClose,
	"updateGangColors":      TypeUpdateContext,
	"openTemplateSelector":  TypeOpenGallery,
	"openUrlInput":          TypeOpenURLImporter,
	"closeTemplateSelector": TypeCloseGallery,
	"closeUrlInput":         TypeCloseURLImporter,
}

var schemaFiles = map[string]string{
	TypeOpen:             "schema/open.json",
	TypeClose:            "schema/empty.json",
	TypeCloseAll:         "schema/empty.json",
	TypeUpdateContext:    "schema/update_context.json",
	TypeOpenGallery:      "schema/open_gallery.json",
	TypeOpenURLImporter:  "schema/open_importer.json",
	TypeCloseGallery:     "schema/empty.json",
	TypeCloseURLImporter: "schema/empty.json",
}

//go:embed schema/*.json
var schemaFS embed.FS

// Target receives routed transitions. *session.Session satisfies it.
type Target interface {
	Open(req session.OpenRequest) error
	Close(reason session.Reason)
	CloseAll(reason session.Reason)
	UpdateContext(gang string, colors []string) error
	OpenGallery(req session.GalleryRequest) error
	OpenImporter(gang string) error
	CloseGallery(reason session.Reason)
	CloseImporter(reason session.Reason)
}

// message is the union of every payload field the host sends.
type message struct {
	Type       string             `json:"type"`
	Gang       string             `json:"gang"`
	GangColors []string           `json:"gangColors"`
	Colors     []string           `json:"colors"`
	Templates  []gallery.Template `json:"templates"`
	Grade      int                `json:"grade"`
}

// Router validates and dispatches host messages. Dispatch must run on the
// session's event loop.
type Router struct {
	target  Target
	schemas map[string]*gojsonschema.Schema
	log     *slog.Logger
}

// New compiles the embedded payload schemas.
func New(target Target) (*Router, error) {
	r := &Router{
		target:  target,
		schemas: make(map[string]*gojsonschema.Schema, len(schemaFiles)),
		log:     applog.WithComponent("router"),
	}
	compiled := map[string]*gojsonschema.Schema{}
	for typ, file := range schemaFiles {
		if s, ok := compiled[file]; ok {
			r.schemas[typ] = s
			continue
		}
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", file, err)
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", file, err)
		}
		compiled[file] = s
		r.schemas[typ] = s
	}
	return r, nil
}

// Canonical resolves a wire type to its canonical name; ok is false for unknown types.
func Canonical(typ string) (string, bool) {
	if c, ok := aliases[typ]; ok {
		return c, true
	}
	if _, ok := schemaFiles[typ]; ok {
		return typ, true
	}
	return "", false
}

// Dispatch handles one raw host message. Malformed and unknown messages are
// logged at debug and reported as ErrMalformedHostMessage; callers drop them.
// Errors from the transition itself are returned unchanged.
func (r *Router) Dispatch(raw []byte) error {
	msg, typ, err := r.decode(raw)
	if err != nil {
		r.log.Debug("host message ignored", slog.Any("err", err))
		return err
	}
	r.log.Debug("host message", slog.String("type", typ))
	switch typ {
	case TypeOpen:
		return r.target.Open(session.OpenRequest{Gang: msg.Gang, Colors: msg.GangColors})
	case TypeClose:
		r.target.Close(session.ReasonHost)
	case TypeCloseAll:
		r.target.CloseAll(session.ReasonHost)
	case TypeUpdateContext:
		colors := msg.GangColors
		if colors == nil {
			colors = msg.Colors
		}
		return r.target.UpdateContext(msg.Gang, colors)
	case TypeOpenGallery:
		return r.target.OpenGallery(session.GalleryRequest{Templates: msg.Templates, Gang: msg.Gang, Grade: msg.Grade})
	case TypeOpenURLImporter:
		return r.target.OpenImporter(msg.Gang)
	case TypeCloseGallery:
		r.target.CloseGallery(session.ReasonHost)
	case TypeCloseURLImporter:
		r.target.CloseImporter(session.ReasonHost)
	}
	return nil
}

func (r *Router) decode(raw []byte) (message, string, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return message{}, "", fmt.Errorf("%w: %v", ErrMalformedHostMessage, err)
	}
	if head.Type == nil || strings.TrimSpace(*head.Type) == "" {
		return message{}, "", fmt.Errorf("%w: missing type", ErrMalformedHostMessage)
	}
	typ, ok := Canonical(*head.Type)
	if !ok {
		return message{}, "", fmt.Errorf("%w: unknown type %q", ErrMalformedHostMessage, *head.Type)
	}
	res, err := r.schemas[typ].Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return message{}, "", fmt.Errorf("%w: %v", ErrMalformedHostMessage, err)
	}
	if !res.Valid() {
		parts := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			parts = append(parts, e.String())
		}
		return message{}, "", fmt.Errorf("%w: %s: %s", ErrMalformedHostMessage, typ, strings.Join(parts, "; "))
	}
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return message{}, "", fmt.Errorf("%w: %v", ErrMalformedHostMessage, err)
	}
	return msg, typ, nil
}
