// Package store persists agent configuration, clip notes and the service
// round-trip log in SQLite.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ConfigKeyAuthToken   = "auth_token"
	ConfigKeyLastProject = "last_project"
)

// timeLayout is fixed width so stored stamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

type Repository interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	GetClipNotes(ctx context.Context, project string) (map[string]string, error)
	SetClipNote(ctx context.Context, project, slug, note string) error

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	FinishJob(ctx context.Context, id, status, errorMsg string, duration time.Duration) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, value)
	return err
}

// GetClipNotes returns the notes of a project keyed by clip slug.
func (r *SQLiteRepository) GetClipNotes(ctx context.Context, project string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT slug, note FROM clip_notes WHERE project = ?", project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := make(map[string]string)
	for rows.Next() {
		var slug, note string
		if err := rows.Scan(&slug, &note); err != nil {
			return nil, err
		}
		notes[slug] = note
	}
	return notes, rows.Err()
}

func (r *SQLiteRepository) SetClipNote(ctx context.Context, project, slug, note string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clip_notes (project, slug, note) VALUES (?, ?, ?)
		ON CONFLICT(project, slug) DO UPDATE SET note = excluded.note, updated_at = datetime('now')
	`, project, slug, note)
	return err
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, project, clip_slug, status, error, duration_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Type, j.Project, j.ClipSlug, j.Status, nullString(j.Error), j.DurationMs,
		j.CreatedAt.UTC().Format(timeLayout), j.UpdatedAt.UTC().Format(timeLayout))
	return err
}

const jobColumns = `id, type, project, clip_slug, status, error, duration_ms, created_at, updated_at`

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

// ListJobs returns the newest jobs first.
func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var j Job
		var errMsg sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&j.ID, &j.Type, &j.Project, &j.ClipSlug, &j.Status, &errMsg, &j.DurationMs, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		j.Error = errMsg.String
		j.CreatedAt = parseTime(createdAt)
		j.UpdatedAt = parseTime(updatedAt)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) FinishJob(ctx context.Context, id, status, errorMsg string, duration time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, duration_ms = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), duration.Milliseconds(), time.Now().UTC().Format(timeLayout), id)
	return err
}

// parseTime accepts both stored RFC 3339 stamps and SQLite datetime('now')
// defaults written by migrations.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// EnsureAuthToken returns the stored API token, creating one on first run.
func EnsureAuthToken(ctx context.Context, repo Repository) (string, error) {
	existing, err := repo.GetConfig(ctx, ConfigKeyAuthToken)
	if err == nil && existing != "" {
		return existing, nil
	}

	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	if err := repo.SetConfig(ctx, ConfigKeyAuthToken, token); err != nil {
		return "", err
	}
	return token, nil
}
