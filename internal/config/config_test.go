/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

type memTokens map[string]string

func (m memTokens) Get(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}
func (m memTokens) Set(service, key, value string) error { m[service+"/"+key] = value; return nil }
func (m memTokens) Delete(service, key string) error {
	if _, ok := m[service+"/"+key]; !ok {
		return keyring.ErrNotFound
	}
	delete(m, service+"/"+key)
	return nil
}

// isolate points the config at a temp file and the keyring at memory.
func isolate(t *testing.T) (string, memTokens) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigFile, path)
	mem := memTokens{}
	prev := SetTokenStore(mem)
	t.Cleanup(func() { SetTokenStore(prev) })
	return path, mem
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	path, _ := isolate(t)
	cfg, tok, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tok != "" {
		t.Fatalf("expected no token, got %q", tok)
	}
	if cfg.Editor.HistoryCapacity != 50 || cfg.Editor.Width != 800 || cfg.Editor.Height != 600 {
		t.Fatalf("unexpected editor defaults: %+v", cfg.Editor)
	}
	if got, want := cfg.CallbackBaseURL(), "https://spray-system"; got != want {
		t.Fatalf("CallbackBaseURL = %q, want %q", got, want)
	}
	if got, want := cfg.Archive.DSN, filepath.Join(filepath.Dir(path), "designs.sqlite"); got != want {
		t.Fatalf("Archive.DSN = %q, want %q", got, want)
	}
}

func TestSaveAndLoadRoundTripWithToken(t *testing.T) {
	_, mem := isolate(t)
	cfg := Defaults()
	cfg.General.ResourceName = "graffiti"
	cfg.Editor.HistoryCapacity = 20
	cfg.Host.BaseURL = "http://127.0.0.1:30121/"
	if err := Save(cfg, "s3cret"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if len(mem) != 1 {
		t.Fatalf("token not stored in keyring: %v", mem)
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tok != "s3cret" {
		t.Fatalf("token = %q", tok)
	}
	if got.General.ResourceName != "graffiti" || got.Editor.HistoryCapacity != 20 {
		t.Fatalf("file values not merged: %+v", got)
	}
	if got.CallbackBaseURL() != "http://127.0.0.1:30121" {
		t.Fatalf("CallbackBaseURL should trim trailing slash, got %q", got.CallbackBaseURL())
	}
	if err := DeleteToken(); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if err := DeleteToken(); err != nil {
		t.Fatalf("second DeleteToken should be a no-op: %v", err)
	}
}

func TestMalformedFileKeepsDefaults(t *testing.T) {
	path, _ := isolate(t)
	if err := os.WriteFile(path, []byte("editor: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load()
	if err == nil {
		t.Fatalf("expected parse error to be reported")
	}
	if cfg.Editor.HistoryCapacity != 50 {
		t.Fatalf("defaults lost on malformed file: %+v", cfg.Editor)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvHostURL, "http://host.test:8443")
	t.Setenv(EnvHistoryCapacity, "25")
	t.Setenv(EnvTelemetryOptIn, "yes")
	t.Setenv(EnvArchiveDriver, "PGX")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvImporterTimeout, "2500")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host.BaseURL != "http://host.test:8443" || cfg.Editor.HistoryCapacity != 25 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if !cfg.General.TelemetryOptIn || cfg.Archive.Driver != "pgx" || cfg.Logging.Level != "debug" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Importer.Timeout().Milliseconds() != 2500 {
		t.Fatalf("importer timeout = %v", cfg.Importer.Timeout())
	}
	if cfg.Archive.DSN != "" {
		t.Fatalf("pgx driver must not get a sqlite default DSN, got %q", cfg.Archive.DSN)
	}
	if env, ok := EnvOverrideFor("host.base_url"); !ok || env != EnvHostURL {
		t.Fatalf("EnvOverrideFor(host.base_url) = %q, %v", env, ok)
	}
	if _, ok := EnvOverrideFor("host.timeout_ms"); ok {
		t.Fatalf("host.timeout_ms is not overridden")
	}
}

func TestMergeIgnoresZeroValues(t *testing.T) {
	dst := Defaults()
	src := AppConfig{Editor: EditorConfig{ExportQuality: 3}, Logging: LoggingConfig{Level: " WARN "}}
	mergeInto(&dst, &src)
	if dst.Editor.ExportQuality != 0.8 {
		t.Fatalf("out-of-range quality should be ignored, got %v", dst.Editor.ExportQuality)
	}
	if dst.Editor.Width != 800 || dst.Logging.Level != "warn" {
		t.Fatalf("merge mismatch: %+v", dst)
	}
}
