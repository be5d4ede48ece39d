/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a top-level panic into a rolled-back editor, a report
// file and a non-zero exit.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "sprayeditor/internal/log"
	"sprayeditor/internal/telemetry"
	"sprayeditor/internal/version"
)

// exitFn is swapped out by tests.
var exitFn = os.Exit

// Rollback tears the editor down without notifying the host.
// *session.Session satisfies it.
type Rollback interface {
	ForceClose()
}

// Target describes what to clean up and where the report goes.
// A nil Target or an empty Dir writes the report to the temp dir.
type Target struct {
	Session Rollback
	Dir     string
}

// Recover captures a panic, force-closes the session, writes a report and
// exits with code 2.
//
// Usage: defer crash.Recover(target)
func Recover(t *Target) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	rolledBack := rollback(t, l)
	reportPath, err := writeReport(t, r, stack, rolledBack)
	if err != nil {
		l.Error("crash report not written", slog.Any("err", err))
	}

	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

// rollback reports whether the session was closed cleanly.
func rollback(t *Target, l *slog.Logger) (ok bool) {
	if t == nil || t.Session == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			l.Error("force close panicked", slog.Any("panic", r))
			ok = false
		}
	}()
	t.Session.ForceClose()
	l.Info("editor force-closed after panic")
	return true
}

func writeReport(t *Target, panicVal any, stack []byte, rolledBack bool) (string, error) {
	dir := os.TempDir()
	if t != nil && t.Dir != "" {
		dir = t.Dir
		if err := os.MkdirAll(dir, 0o755); err != nil {
			dir = os.TempDir()
		}
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("spray-crash-%s.log", now.Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Spray Editor Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&buf, "Goroutines: %d\n", runtime.NumGoroutine())
	_, _ = fmt.Fprintf(&buf, "Session rolled back: %t\n", rolledBack)
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	telemetry.Default().UploadCrash(buf.Bytes())
	return path, nil
}
