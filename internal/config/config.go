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
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are read-only overrides applied on Load.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Editor        EditorConfig   `yaml:"editor"`
	Host          HostConfig     `yaml:"host"`
	Importer      ImporterConfig `yaml:"importer"`
	Archive       ArchiveConfig  `yaml:"archive"`
	Monitor       MonitorConfig  `yaml:"monitor"`
	Logging       LoggingConfig  `yaml:"logging"`
}

type GeneralConfig struct {
	// ResourceName is the host resource the callbacks are addressed to.
	ResourceName   string `yaml:"resource_name"`
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Shortcuts      bool   `yaml:"shortcuts"`
}

type EditorConfig struct {
	Container       string  `yaml:"container"`
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	Background      string  `yaml:"background"`
	HistoryCapacity int     `yaml:"history_capacity"`
	BrushSize       float64 `yaml:"brush_size"`
	BrushColor      string  `yaml:"brush_color"`
	ExportQuality   float64 `yaml:"export_quality"`
	// Font is a TTF/OTF file used for text objects; without one text is skipped when rendering.
	Font string `yaml:"font"`
}

// HostConfig addresses the outbound callback channel.
// An empty BaseURL means https://<resource_name>.
// The bearer token is not stored on disk; it lives in the OS keychain.
type HostConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
}

type ImporterConfig struct {
	TimeoutMs int   `yaml:"timeout_ms"`
	MaxBytes  int64 `yaml:"max_bytes"`
}

// ArchiveConfig selects where the dev host keeps saved designs.
// Driver is "sqlite" or "pgx"; an empty sqlite DSN resolves to a file next to the config.
type ArchiveConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Addr   string `yaml:"addr"`
	Keep   int    `yaml:"keep"`
}

type MonitorConfig struct {
	IntervalMs    int `yaml:"interval_ms"`
	HistoryLength int `yaml:"history_length"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{ResourceName: "spray-system", TelemetryOptIn: false, Shortcuts: true},
		Editor: EditorConfig{
			Container:       "spray-canvas",
			Width:           800,
			Height:          600,
			Background:      "transparent",
			HistoryCapacity: 50,
			BrushSize:       10,
			BrushColor:      "#FF0000",
			ExportQuality:   0.8,
		},
		Host:     HostConfig{BaseURL: "", TimeoutMs: 5000},
		Importer: ImporterConfig{TimeoutMs: 10000, MaxBytes: 8 << 20},
		Archive:  ArchiveConfig{Driver: "sqlite", Addr: "127.0.0.1:30121", Keep: 200},
		Monitor:  MonitorConfig{IntervalMs: 1000, HistoryLength: 100},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile      = "SPRAY_CONFIG"
	EnvResourceName    = "SPRAY_RESOURCE_NAME"
	EnvTelemetryOptIn  = "SPRAY_TELEMETRY_OPT_IN"
	EnvHistoryCapacity = "SPRAY_HISTORY_CAPACITY"
	EnvFont            = "SPRAY_FONT"
	EnvHostURL         = "SPRAY_HOST_URL"
	EnvHostTimeoutMs   = "SPRAY_HOST_TIMEOUT_MS"
	EnvHostTLSInsecure = "SPRAY_HOST_TLS_INSECURE"
	EnvImporterTimeout = "SPRAY_IMPORTER_TIMEOUT_MS"
	EnvArchiveDriver   = "SPRAY_ARCHIVE_DRIVER"
	EnvArchiveDSN      = "SPRAY_ARCHIVE_DSN"
	EnvArchiveAddr     = "SPRAY_ARCHIVE_ADDR"
	EnvLogLevel        = "SPRAY_LOG_LEVEL"
	EnvLogFormat       = "SPRAY_LOG_FORMAT"
	EnvLogSource       = "SPRAY_LOG_SOURCE"
	EnvLogFile         = "SPRAY_LOG_FILE"
)

// ConfigPath returns the per-user config file path. SPRAY_CONFIG wins when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "SprayEditor")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "SprayEditor")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "sprayeditor")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "sprayeditor")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment
// overrides. The host token is read from the keyring and returned separately.
// A malformed file is reported but the defaults-plus-env config is still returned.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	var fileErr error
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			fileErr = err
		} else {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	if cfg.Archive.Driver == "sqlite" && cfg.Archive.DSN == "" {
		cfg.Archive.DSN = filepath.Join(filepath.Dir(path), "designs.sqlite")
	}
	tok, _ := LoadToken()
	return cfg, tok, fileErr
}

// Save writes the user config YAML and persists the token into the OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		return SaveToken(token)
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if s := strings.TrimSpace(src.General.ResourceName); s != "" {
		dst.General.ResourceName = s
	}
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.General.Shortcuts = src.General.Shortcuts

	e := src.Editor
	if e.Container != "" {
		dst.Editor.Container = e.Container
	}
	if e.Width > 0 {
		dst.Editor.Width = e.Width
	}
	if e.Height > 0 {
		dst.Editor.Height = e.Height
	}
	if e.Background != "" {
		dst.Editor.Background = e.Background
	}
	if e.HistoryCapacity > 0 {
		dst.Editor.HistoryCapacity = e.HistoryCapacity
	}
	if e.BrushSize > 0 {
		dst.Editor.BrushSize = e.BrushSize
	}
	if e.BrushColor != "" {
		dst.Editor.BrushColor = e.BrushColor
	}
	if e.ExportQuality > 0 && e.ExportQuality <= 1 {
		dst.Editor.ExportQuality = e.ExportQuality
	}
	if e.Font != "" {
		dst.Editor.Font = e.Font
	}

	if src.Host.BaseURL != "" {
		dst.Host.BaseURL = strings.TrimSpace(src.Host.BaseURL)
	}
	if src.Host.TimeoutMs != 0 {
		dst.Host.TimeoutMs = src.Host.TimeoutMs
	}
	dst.Host.TLSInsecure = src.Host.TLSInsecure

	if src.Importer.TimeoutMs > 0 {
		dst.Importer.TimeoutMs = src.Importer.TimeoutMs
	}
	if src.Importer.MaxBytes > 0 {
		dst.Importer.MaxBytes = src.Importer.MaxBytes
	}

	if src.Archive.Driver != "" {
		dst.Archive.Driver = strings.ToLower(strings.TrimSpace(src.Archive.Driver))
	}
	if src.Archive.DSN != "" {
		dst.Archive.DSN = src.Archive.DSN
	}
	if src.Archive.Addr != "" {
		dst.Archive.Addr = src.Archive.Addr
	}
	if src.Archive.Keep > 0 {
		dst.Archive.Keep = src.Archive.Keep
	}

	if src.Monitor.IntervalMs > 0 {
		dst.Monitor.IntervalMs = src.Monitor.IntervalMs
	}
	if src.Monitor.HistoryLength > 0 {
		dst.Monitor.HistoryLength = src.Monitor.HistoryLength
	}

	if s := strings.TrimSpace(src.Logging.Level); s != "" {
		dst.Logging.Level = strings.ToLower(s)
	}
	if s := strings.TrimSpace(src.Logging.Format); s != "" {
		dst.Logging.Format = strings.ToLower(s)
	}
	dst.Logging.Source = src.Logging.Source
	if s := strings.TrimSpace(src.Logging.File); s != "" {
		dst.Logging.File = s
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v, ok := envString(EnvResourceName); ok {
		cfg.General.ResourceName = v
	}
	if v, ok := envString(EnvTelemetryOptIn); ok {
		cfg.General.TelemetryOptIn = truthy(v)
	}
	if n, ok := envInt(EnvHistoryCapacity); ok && n > 0 {
		cfg.Editor.HistoryCapacity = n
	}
	if v, ok := envString(EnvFont); ok {
		cfg.Editor.Font = v
	}
	if v, ok := envString(EnvHostURL); ok {
		cfg.Host.BaseURL = v
	}
	if n, ok := envInt(EnvHostTimeoutMs); ok {
		cfg.Host.TimeoutMs = n
	}
	if v, ok := envString(EnvHostTLSInsecure); ok {
		cfg.Host.TLSInsecure = truthy(v)
	}
	if n, ok := envInt(EnvImporterTimeout); ok && n > 0 {
		cfg.Importer.TimeoutMs = n
	}
	if v, ok := envString(EnvArchiveDriver); ok {
		cfg.Archive.Driver = strings.ToLower(v)
	}
	if v, ok := envString(EnvArchiveDSN); ok {
		cfg.Archive.DSN = v
	}
	if v, ok := envString(EnvArchiveAddr); ok {
		cfg.Archive.Addr = v
	}
	if v, ok := envString(EnvLogLevel); ok {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := envString(EnvLogFormat); ok {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v, ok := envString(EnvLogSource); ok {
		cfg.Logging.Source = truthy(v)
	}
	if v, ok := envString(EnvLogFile); ok {
		cfg.Logging.File = v
	}
}

func envString(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func envInt(key string) (int, bool) {
	v, ok := envString(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// EnvOverrideFor returns the env var name if the dotted key is overridden by the environment.
func EnvOverrideFor(key string) (string, bool) {
	names := map[string]string{
		"general.resource_name":    EnvResourceName,
		"general.telemetry_opt_in": EnvTelemetryOptIn,
		"editor.history_capacity":  EnvHistoryCapacity,
		"editor.font":              EnvFont,
		"host.base_url":            EnvHostURL,
		"host.timeout_ms":          EnvHostTimeoutMs,
		"host.tls_insecure":        EnvHostTLSInsecure,
		"importer.timeout_ms":      EnvImporterTimeout,
		"archive.driver":           EnvArchiveDriver,
		"archive.dsn":              EnvArchiveDSN,
		"archive.addr":             EnvArchiveAddr,
		"logging.level":            EnvLogLevel,
		"logging.format":           EnvLogFormat,
		"logging.source":           EnvLogSource,
		"logging.file":             EnvLogFile,
	}
	env, ok := names[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// CallbackBaseURL resolves where host callbacks are posted.
func (c AppConfig) CallbackBaseURL() string {
	if b := strings.TrimRight(strings.TrimSpace(c.Host.BaseURL), "/"); b != "" {
		return b
	}
	return "https://" + c.General.ResourceName
}

// Timeout returns the callback request timeout, falling back to the default.
func (h HostConfig) Timeout() time.Duration {
	if h.TimeoutMs <= 0 {
		return time.Duration(Defaults().Host.TimeoutMs) * time.Millisecond
	}
	return time.Duration(h.TimeoutMs) * time.Millisecond
}

// Timeout returns the remote image fetch bound.
func (i ImporterConfig) Timeout() time.Duration {
	if i.TimeoutMs <= 0 {
		return time.Duration(Defaults().Importer.TimeoutMs) * time.Millisecond
	}
	return time.Duration(i.TimeoutMs) * time.Millisecond
}

// Interval returns the monitor sampling period.
func (m MonitorConfig) Interval() time.Duration {
	if m.IntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(m.IntervalMs) * time.Millisecond
}
