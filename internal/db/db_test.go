package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_CreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	tables := []string{"clip_notes", "jobs", "config", "_migrations"}
	for _, table := range tables {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestNew_WALEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	var journalMode string
	err = database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}

	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var count int
	err = db2.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count)
	if err != nil {
		t.Fatalf("count migrations error = %v", err)
	}

	if count != 3 {
		t.Errorf("migration count = %d, want 3", count)
	}
}

func TestMarkInterruptedJobs(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = db1.Conn().Exec(`
		INSERT INTO jobs (id, type, clip_slug, status, created_at, updated_at)
		VALUES ('test-job', 'stabilize', 'clip-a', 'running', datetime('now'), datetime('now'))
	`)
	if err != nil {
		t.Fatalf("insert job error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var status, errMsg string
	err = db2.Conn().QueryRow("SELECT status, error FROM jobs WHERE id = 'test-job'").Scan(&status, &errMsg)
	if err != nil {
		t.Fatalf("query job error = %v", err)
	}

	if status != "failed" {
		t.Errorf("job status = %s, want failed", status)
	}
	if errMsg != "interrupted by restart" {
		t.Errorf("job error = %s, want 'interrupted by restart'", errMsg)
	}
}

func TestNew_ClipNotesPrimaryKey(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	insert := `INSERT INTO clip_notes (project, slug, note) VALUES ('p', 'clip-a', 'first')
		ON CONFLICT(project, slug) DO UPDATE SET note = excluded.note`
	if _, err := database.Conn().Exec(insert); err != nil {
		t.Fatalf("insert note error = %v", err)
	}
	if _, err := database.Conn().Exec(strings.Replace(insert, "'first'", "'second'", 1)); err != nil {
		t.Fatalf("upsert note error = %v", err)
	}

	var count int
	if err := database.Conn().QueryRow("SELECT COUNT(*) FROM clip_notes").Scan(&count); err != nil {
		t.Fatalf("count notes error = %v", err)
	}
	if count != 1 {
		t.Errorf("note rows = %d, want 1", count)
	}
}

func TestPruneJobs_KeepsNewest(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	jobs := []struct{ id, created string }{
		{"old", "2026-01-01T00:00:00Z"},
		{"mid", "2026-01-02T00:00:00Z"},
		{"new", "2026-01-03T00:00:00Z"},
	}
	for _, j := range jobs {
		_, err := database.Conn().Exec(
			`INSERT INTO jobs (id, type, status, created_at, updated_at) VALUES (?, 'concatenate', 'completed', ?, ?)`,
			j.id, j.created, j.created)
		if err != nil {
			t.Fatalf("insert %s: %v", j.id, err)
		}
	}

	if err := database.pruneJobs(context.Background(), 2); err != nil {
		t.Fatalf("pruneJobs() error = %v", err)
	}

	rows, err := database.Conn().Query("SELECT id FROM jobs ORDER BY created_at")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		rows.Scan(&id)
		ids = append(ids, id)
	}
	if strings.Join(ids, ",") != "mid,new" {
		t.Errorf("remaining jobs = %v, want [mid new]", ids)
	}
}
