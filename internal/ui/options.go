/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"

	"sprayeditor/internal/eventloop"
	"sprayeditor/internal/monitor"
	"sprayeditor/internal/session"
)

// Options wires the window to a running editor. All session calls are made
// on Loop.
type Options struct {
	Session *session.Session
	Loop    *eventloop.Loop
	Monitor *monitor.Monitor
	// Dispatch feeds a raw host message to the router, for the "simulate host" menu.
	Dispatch func(raw []byte) error
	Context  context.Context
}
