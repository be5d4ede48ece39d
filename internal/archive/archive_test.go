/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, SQLiteDSN(t.TempDir()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleDesign(gang string, at time.Time) *Design {
	return &Design{
		Gang:       gang,
		Colors:     []string{"#00FF00", "#000000"},
		CanvasData: json.RawMessage(`{"version":1,"objects":[]}`),
		ImagePNG:   []byte{0x89, 'P', 'N', 'G'},
		Width:      800,
		Height:     600,
		CreatedAt:  at,
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	d := sampleDesign("families", time.Time{})
	if err := s.Save(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := uuid.Parse(d.ID); err != nil {
		t.Fatalf("id %q is not a uuid", d.ID)
	}
	if d.CreatedAt.IsZero() {
		t.Fatal("created_at not assigned")
	}

	got, err := s.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Gang != "families" || len(got.Colors) != 2 || got.Colors[0] != "#00FF00" {
		t.Fatalf("unexpected design: %+v", got)
	}
	if !bytes.Equal(got.ImagePNG, d.ImagePNG) || got.Width != 800 || got.Height != 600 {
		t.Fatalf("payload mismatch: %+v", got)
	}
	if string(got.CanvasData) != string(d.CanvasData) {
		t.Fatalf("canvas data = %s", got.CanvasData)
	}
	if !got.CreatedAt.Equal(d.CreatedAt) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, d.CreatedAt)
	}
}

func TestGetUnknownAndMalformed(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	for _, id := range []string{uuid.NewString(), "not-a-uuid", ""} {
		if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get(%q) err = %v", id, err)
		}
	}
	if err := s.Delete(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete unknown err = %v", err)
	}
}

func TestSaveRejectsBadInput(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	if err := s.Save(ctx, &Design{}); err == nil {
		t.Fatal("expected error for empty image")
	}
	d := sampleDesign("x", time.Now())
	d.ID = "nope"
	if err := s.Save(ctx, d); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestListFilterAndOrder(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, g := range []string{"families", "ballas", "families"} {
		if err := s.Save(ctx, sampleDesign(g, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	all, err := s.List(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || !all[0].CreatedAt.After(all[1].CreatedAt) {
		t.Fatalf("list = %+v", all)
	}
	fam, err := s.List(ctx, ListOptions{Gang: "families", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(fam) != 1 || fam[0].Gang != "families" || !fam[0].CreatedAt.Equal(all[0].CreatedAt) {
		t.Fatalf("filtered list = %+v", fam)
	}
}

func TestDeleteAndPrune(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		d := sampleDesign("vagos", base.Add(time.Duration(i)*time.Second))
		if err := s.Save(ctx, d); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, d.ID)
	}
	if err := s.Delete(ctx, ids[4]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, err := s.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned %d, want 2", n)
	}
	left, _ := s.List(ctx, ListOptions{})
	if len(left) != 2 || left[0].ID != ids[3] || left[1].ID != ids[2] {
		t.Fatalf("remaining = %+v", left)
	}
}

func TestReopenKeepsDataAndSkipsMigrations(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(ctx, DriverSQLite, SQLiteDSN(dir))
	if err != nil {
		t.Fatal(err)
	}
	d := sampleDesign("aztecas", time.Now())
	if err := s.Save(ctx, d); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s2, err := Open(ctx, DriverSQLite, SQLiteDSN(dir))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()
	if _, err := s2.Get(ctx, d.ID); err != nil {
		t.Fatalf("design lost after reopen: %v", err)
	}
	var n int
	if err := s2.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("schema_migrations rows = %d, %v", n, err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Open(context.Background(), DriverSQLite, " "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("rebind = %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind = %q", got)
	}
}

// Runs only against a live server: SPRAY_TEST_PG_DSN=postgres://...
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("SPRAY_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SPRAY_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, "postgres", dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer func() { _ = s.Close() }()
	d := sampleDesign("pg", time.Now())
	if err := s.Save(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}
	defer func() { _ = s.Delete(ctx, d.ID) }()
	got, err := s.Get(ctx, d.ID)
	if err != nil || got.Gang != "pg" {
		t.Fatalf("get = %+v, %v", got, err)
	}
}
