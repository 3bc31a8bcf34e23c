package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/qexpand/internal/mapping"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, testCatalog(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_CreatesEntityTables(t *testing.T) {
	s := createTestStore(t)

	for _, table := range []string{"users", "posts", "catalog_tables"} {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + quote(table)).Scan(&count); err != nil {
			t.Errorf("query %s failed: %v", table, err)
		}
	}

	var index string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'posts'`).Scan(&index)
	if err != nil {
		t.Fatalf("foreign key index missing: %v", err)
	}
	if index != "idx_posts_author_id" {
		t.Errorf("index = %q, want idx_posts_author_id", index)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	c := testCatalog(t)

	for i := 0; i < 3; i++ {
		s, err := Open(path, c)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_RejectsChangedCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, testCatalog(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	changed := strings.Replace(modelCUE, `Title:     {column: "title", type: string}`, `Headline: {column: "headline", type: string}`, 1)
	c, err := mapping.Load("model.cue", []byte(changed))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, err := Open(path, c); err == nil || !strings.Contains(err.Error(), "table posts has columns") {
		t.Fatalf("Open() error = %v, want column mismatch", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on empty store = %v", err)
	}
}
