/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gogpu/gg/text"

	"sprayeditor/internal/config"
	"sprayeditor/internal/eventloop"
	"sprayeditor/internal/gallery"
	"sprayeditor/internal/hostcb"
	applog "sprayeditor/internal/log"
	"sprayeditor/internal/monitor"
	"sprayeditor/internal/router"
	"sprayeditor/internal/session"
	"sprayeditor/internal/surface"
	"sprayeditor/internal/telemetry"
)

// editorApp is one wired editor: a loop, the session living on it and the
// router feeding it.
type editorApp struct {
	cfg     config.AppConfig
	loop    *eventloop.Loop
	sess    *session.Session
	router  *router.Router
	monitor *monitor.Monitor
	tel     *telemetry.Client
	factory *surface.GGFactory
	log     *slog.Logger
}

func newEditorApp(ctx context.Context, cfg config.AppConfig, token string) (*editorApp, error) {
	l := applog.WithComponent("cli")

	var font *text.FontSource
	if cfg.Editor.Font != "" {
		f, err := text.NewFontSourceFromFile(cfg.Editor.Font)
		if err != nil {
			l.Warn("font not loaded; text objects will not render", slog.String("path", cfg.Editor.Font), slog.Any("err", err))
		} else {
			font = f
		}
	}
	factory := surface.NewGGFactory(surface.NewContainers(cfg.Editor.Container), font)

	cb := hostcb.New(hostcb.Options{
		BaseURL:     cfg.CallbackBaseURL(),
		Token:       token,
		Timeout:     cfg.Host.Timeout(),
		TLSInsecure: cfg.Host.TLSInsecure,
	})
	loop := eventloop.New(eventloop.DefaultQueue)
	sess, err := session.New(session.Config{
		Container:       cfg.Editor.Container,
		Width:           cfg.Editor.Width,
		Height:          cfg.Editor.Height,
		Background:      cfg.Editor.Background,
		HistoryCapacity: cfg.Editor.HistoryCapacity,
		BrushSize:       cfg.Editor.BrushSize,
		BrushColor:      cfg.Editor.BrushColor,
		ExportQuality:   cfg.Editor.ExportQuality,
	}, session.Deps{
		Factory:   factory,
		Callbacks: cb,
		Loop:      loop,
		Importer:  gallery.NewImporter(cfg.Importer.Timeout(), cfg.Importer.MaxBytes, nil),
		Context:   ctx,
	})
	if err != nil {
		loop.Close()
		return nil, fmt.Errorf("session: %w", err)
	}
	r, err := router.New(sess)
	if err != nil {
		loop.Close()
		return nil, fmt.Errorf("router: %w", err)
	}

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	tel := telemetry.New(tcfg)
	telemetry.SetDefault(tel)

	a := &editorApp{
		cfg:     cfg,
		loop:    loop,
		sess:    sess,
		router:  r,
		monitor: monitor.New(sess, cfg.Monitor.HistoryLength),
		tel:     tel,
		factory: factory,
		log:     l,
	}
	if err := loop.Do(func() { telemetry.Track(tel, sess) }); err != nil {
		a.Close()
		return nil, err
	}
	tel.Event(telemetry.EventStarted, nil)
	return a, nil
}

// boot replays the page lifecycle hooks. They only initialise; nothing opens.
func (a *editorApp) boot() error {
	return a.loop.Do(func() {
		for _, h := range []session.Hook{session.HookScriptLoaded, session.HookDOMReady, session.HookWindowLoaded} {
			a.sess.OnHook(h)
		}
	})
}

// dispatch routes one raw host message on the loop.
func (a *editorApp) dispatch(raw []byte) error {
	var err error
	if doErr := a.loop.Do(func() { err = a.router.Dispatch(raw) }); doErr != nil {
		return doErr
	}
	return err
}

// ForceClose tears the session down from outside the loop; crash recovery uses it.
func (a *editorApp) ForceClose() {
	if err := a.loop.Do(a.sess.ForceClose); err != nil {
		a.sess.ForceClose()
	}
}

func (a *editorApp) Close() {
	a.ForceClose()
	a.loop.Close()
	a.tel.Flush(context.Background())
	a.tel.Close()
}
