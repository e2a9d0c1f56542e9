//go:build sqltest
// +build sqltest

package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-txdb"
	_ "github.com/lib/pq" // PostgreSQL driver
)

func init() {
	txdb.Register("txdb", "postgres", "user=test password=test dbname=test host=/var/run/postgresql sslmode=disable")
}

// TestMigrations applies every up migration in order inside a single
// transaction and rolls it back, so the schema files are validated against a
// real database without leaving state behind.
func TestMigrations(t *testing.T) {
	migrationsDir := "../../db/schema"

	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("failed to read migrations directory: %v", err)
	}

	var ups []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			ups = append(ups, entry.Name())
		}
	}
	sort.Strings(ups)
	if len(ups) == 0 {
		t.Fatal("no up migrations found")
	}

	db, err := sql.Open("txdb", "migrations")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	for _, name := range ups {
		content, err := os.ReadFile(filepath.Join(migrationsDir, name))
		if err != nil {
			t.Fatalf("failed to read migration file: %v", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			t.Errorf("migration %s failed: %v", name, err)
		}
	}
}
