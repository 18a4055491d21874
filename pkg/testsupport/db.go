// Package testsupport provides shared helpers for package tests: an
// in-memory migrated database and JSON fixtures.
package testsupport

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/activesoft/go-backoffice/migrations"
)

// NewTestDB opens a fresh in-memory sqlite database with the full schema
// applied. It is torn down with the test.
func NewTestDB(t *testing.T) *bun.DB {
	t.Helper()

	// A unique name per test keeps parallel tests from sharing state.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	if err := migrations.Up(context.Background(), sqldb, "sqlite3"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

// LoadFixtureJSON decodes testdata/<name> into dst.
func LoadFixtureJSON(t *testing.T, name string, dst any) {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode fixture %s: %v", name, err)
	}
}
