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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"sprayeditor/internal/router"
	"sprayeditor/internal/session"
	"sprayeditor/internal/ui"
)

const maxLine = 4 << 20

// frameLine is the NDJSON record written for every visible state change.
type frameLine struct {
	Event   string             `json:"event"`
	Phase   string             `json:"phase"`
	Show    session.Visibility `json:"show"`
	Status  string             `json:"status"`
	Notice  string             `json:"notice,omitempty"`
	Error   string             `json:"error,omitempty"`
	CanUndo bool               `json:"canUndo"`
	CanRedo bool               `json:"canRedo"`
}

// serve reads newline-delimited host messages from in until EOF or ctx ends,
// and writes one JSON line to out whenever the visible state changes.
// Malformed messages are reported and skipped.
func serve(ctx context.Context, a *editorApp, in io.Reader, out io.Writer) error {
	var (
		mu   sync.Mutex
		last *frameLine
	)
	enc := json.NewEncoder(out)
	emit := func(st session.State) {
		f := ui.Present(st)
		line := frameLine{
			Event: "state", Phase: st.Phase.String(), Show: f.Show, Status: f.Status,
			Notice: f.Notice, Error: f.Error, CanUndo: f.CanUndo, CanRedo: f.CanRedo,
		}
		mu.Lock()
		defer mu.Unlock()
		if last != nil && *last == line {
			return
		}
		last = &line
		if err := enc.Encode(line); err != nil {
			a.log.Warn("state not written", slog.Any("err", err))
		}
	}
	if err := a.loop.Do(func() { a.sess.OnChange(emit) }); err != nil {
		return err
	}
	if err := a.boot(); err != nil {
		return err
	}

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), maxLine)
		for sc.Scan() {
			b := bytes.TrimSpace(sc.Bytes())
			if len(b) == 0 {
				continue
			}
			select {
			case lines <- append([]byte(nil), b...):
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case raw := <-lines:
			err := a.dispatch(raw)
			switch {
			case errors.Is(err, router.ErrMalformedHostMessage):
				a.log.Warn("host message dropped", slog.Any("err", err))
			case err != nil:
				a.log.Warn("host message failed", slog.Any("err", err))
			}
		}
	}
}
