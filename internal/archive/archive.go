/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package archive persists saved spray designs for the dev host. It runs on
// an embedded SQLite file by default and on PostgreSQL through pgx.
package archive

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	applog "sprayeditor/internal/log"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned for unknown or malformed design ids.
var ErrNotFound = errors.New("design not found")

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// FileName is the default SQLite database name.
const FileName = "designs.sqlite"

// Design is one saved spray design.
type Design struct {
	ID         string          `json:"id"`
	Gang       string          `json:"gang"`
	Colors     []string        `json:"colors"`
	CanvasData json.RawMessage `json:"canvasData,omitempty"`
	ImagePNG   []byte          `json:"-"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Summary is a Design without its payloads.
type Summary struct {
	ID        string    `json:"id"`
	Gang      string    `json:"gang"`
	Colors    []string  `json:"colors"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is a design archive backed by database/sql.
type Store struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

// SQLiteDSN builds a DSN for a database file in dir.
func SQLiteDSN(dir string) string {
	p := filepath.ToSlash(filepath.Join(dir, FileName))
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", p)
}

// Open connects, pings and migrates the archive.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	l := applog.WithOperation(applog.WithComponent("archive"), "open").With(slog.String("driver", driver))
	switch driver {
	case DriverSQLite, DriverPostgres:
	case "postgres":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported archive driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("archive dsn is required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	s := &Store{db: db, driver: driver, log: applog.WithComponent("archive")}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		l.Error("archive init failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("archive ready")
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.driver, err)
	}
	if s.driver == DriverSQLite {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("enable WAL: %w", err)
		}
	}
	return s.migrate(ctx)
}

func (s *Store) dialectDir() string {
	if s.driver == DriverPostgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

// migrate applies embedded SQL migrations in filename order and records each.
func (s *Store) migrate(ctx context.Context) error {
	dir := s.dialectDir()
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at BIGINT NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied := map[int64]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, name := range files {
		v, err := parseVersion(name)
		if err != nil {
			return err
		}
		if applied[v] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join(dir, name))
		if err != nil {
			return err
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO schema_migrations(version, name, applied_at) VALUES(?, ?, ?)`),
			v, name, time.Now().Unix()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", name, err)
		}
		s.log.Debug("migration applied", slog.String("name", name))
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	head, _, ok := strings.Cut(path.Base(name), "_")
	if !ok {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

// rebind rewrites ? placeholders to $N for postgres.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string { return s.driver }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save stores d, assigning an id and timestamp when missing.
func (s *Store) Save(ctx context.Context, d *Design) error {
	if d == nil || len(d.ImagePNG) == 0 {
		return errors.New("design image is required")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	} else if _, err := uuid.Parse(d.ID); err != nil {
		return fmt.Errorf("design id %q: %w", d.ID, err)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	d.CreatedAt = time.UnixMilli(d.CreatedAt.UnixMilli())
	if d.Colors == nil {
		d.Colors = []string{}
	}
	colors, err := json.Marshal(d.Colors)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO designs(id, gang, colors, canvas_data, image_png, width, height, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`),
		d.ID, d.Gang, string(colors), string(d.CanvasData), d.ImagePNG, d.Width, d.Height, d.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert design: %w", err)
	}
	s.log.Info("design archived", slog.String("id", d.ID), slog.String("gang", d.Gang), slog.Int("bytes", len(d.ImagePNG)))
	return nil
}

// Get loads one design including its payloads.
func (s *Store) Get(ctx context.Context, id string) (*Design, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	var (
		d       Design
		colors  string
		canvas  string
		created int64
	)
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, gang, colors, canvas_data, image_png, width, height, created_at
		FROM designs WHERE id = ?`), id)
	err := row.Scan(&d.ID, &d.Gang, &colors, &canvas, &d.ImagePNG, &d.Width, &d.Height, &created)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("select design: %w", err)
	}
	if err := json.Unmarshal([]byte(colors), &d.Colors); err != nil {
		return nil, fmt.Errorf("design %s colors: %w", id, err)
	}
	if canvas != "" {
		d.CanvasData = json.RawMessage(canvas)
	}
	d.CreatedAt = time.UnixMilli(created)
	return &d, nil
}

// ListOptions filters List. Zero Limit means 50.
type ListOptions struct {
	Gang  string
	Limit int
}

// List returns summaries, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	q := `SELECT id, gang, colors, width, height, created_at FROM designs`
	args := []any{}
	if opts.Gang != "" {
		q += ` WHERE gang = ?`
		args = append(args, opts.Gang)
	}
	q += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list designs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := []Summary{}
	for rows.Next() {
		var (
			sm      Summary
			colors  string
			created int64
		)
		if err := rows.Scan(&sm.ID, &sm.Gang, &colors, &sm.Width, &sm.Height, &created); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(colors), &sm.Colors)
		sm.CreatedAt = time.UnixMilli(created)
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Delete removes one design.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM designs WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete design: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Prune keeps the newest keep designs and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM designs WHERE id NOT IN (
		SELECT id FROM designs ORDER BY created_at DESC, id LIMIT ?)`), keep)
	if err != nil {
		return 0, fmt.Errorf("prune designs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info("designs pruned", slog.Int64("removed", n), slog.Int("kept", keep))
	}
	return n, nil
}
