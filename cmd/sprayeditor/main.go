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
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"sprayeditor/internal/archive"
	"sprayeditor/internal/config"
	"sprayeditor/internal/crash"
	"sprayeditor/internal/devhost"
	applog "sprayeditor/internal/log"
	"sprayeditor/internal/ui"
	"sprayeditor/internal/version"
)

var (
	title = color.New(color.FgCyan, color.Bold)
	fail  = color.New(color.FgRed)
)

func usage() {
	_, _ = title.Println("Spray Editor")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sprayeditor version|-v|--version          Show version")
	fmt.Println("  sprayeditor run [--metrics <file>]         Read host messages (NDJSON) from stdin, print state changes")
	fmt.Println("  sprayeditor host [--addr <addr>]           Run the development host (callbacks + design archive)")
	fmt.Println("  sprayeditor ui [--gang <name> --colors a,b] Launch the desktop editor (build with -tags fyne)")
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, token, cfgErr := config.Load()
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l := applog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config file ignored", slog.Any("err", cfgErr))
	}

	target := &crash.Target{Dir: crashDir()}
	defer crash.Recover(target)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	var err error
	switch args[1] {
	case "version", "--version", "-v":
		_, _ = title.Println("Spray Editor")
		fmt.Println(version.String())
		return
	case "run":
		err = cmdRun(ctx, cfg, token, target, args[2:])
	case "host":
		err = cmdHost(ctx, cfg, token, args[2:])
	case "ui":
		err = cmdUI(ctx, cfg, token, target, args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		l.Error("command failed", slog.String("cmd", args[1]), slog.Any("err", err))
		_, _ = fail.Fprintln(os.Stderr, "Error:", err)
		stop()
		_ = applog.Close()
		os.Exit(1)
	}
	_ = applog.Close()
}

func crashDir() string {
	p, err := config.ConfigPath()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(p), "crashes")
}

func cmdRun(ctx context.Context, cfg config.AppConfig, token string, target *crash.Target, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	metrics := fs.String("metrics", "", "write performance metrics JSON to this file on exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := newEditorApp(ctx, cfg, token)
	if err != nil {
		return err
	}
	defer a.Close()
	target.Session = a

	mctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.monitor.Run(mctx, cfg.Monitor.Interval(), a.loop)

	if err := serve(ctx, a, os.Stdin, os.Stdout); err != nil {
		return err
	}
	if *metrics != "" {
		return writeMetrics(*metrics, a)
	}
	return nil
}

func writeMetrics(path string, a *editorApp) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := a.monitor.Export(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func cmdHost(ctx context.Context, cfg config.AppConfig, token string, args []string) error {
	fs := flag.NewFlagSet("host", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Archive.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dsn := cfg.Archive.DSN
	if cfg.Archive.Driver == archive.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(strings.TrimPrefix(dsn, "file:")), 0o755); err != nil {
			return err
		}
	}
	store, err := archive.Open(ctx, cfg.Archive.Driver, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	srv := devhost.New(devhost.Options{Store: store, Token: token, Keep: cfg.Archive.Keep})
	_, _ = title.Printf("Dev host listening on http://%s\n", *addr)
	err = srv.ListenAndServe(ctx, *addr)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func cmdUI(ctx context.Context, cfg config.AppConfig, token string, target *crash.Target, args []string) error {
	fs := flag.NewFlagSet("ui", flag.ContinueOnError)
	gang := fs.String("gang", "", "open the editor for this gang right away")
	colors := fs.String("colors", "", "comma separated gang colors")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := newEditorApp(ctx, cfg, token)
	if err != nil {
		return err
	}
	defer a.Close()
	target.Session = a
	if err := a.boot(); err != nil {
		return err
	}
	if *gang != "" {
		msg := openMessage(*gang, *colors)
		if err := a.dispatch(msg); err != nil {
			return err
		}
	}
	if cfg.General.Shortcuts {
		a.monitor.EnableToggle()
	}
	return ui.Run(ui.Options{
		Session:  a.sess,
		Loop:     a.loop,
		Monitor:  a.monitor,
		Dispatch: a.dispatch,
		Context:  ctx,
	})
}

// openMessage builds the host's open message for a local session.
func openMessage(gang, colors string) []byte {
	list := []string{}
	for _, c := range strings.Split(colors, ",") {
		if c = strings.TrimSpace(c); c != "" {
			list = append(list, c)
		}
	}
	b, _ := json.Marshal(map[string]any{"type": "openSprayEditor", "gang": gang, "gangColors": list})
	return b
}
