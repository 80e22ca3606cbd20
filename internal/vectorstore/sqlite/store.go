// Package sqlite mirrors plans and chunk entities into a local SQLite
// database so an index can be rebuilt without re-embedding.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"planrag/internal/domain"
	"planrag/internal/vecmath"
	"planrag/internal/vectorstore"
	"planrag/internal/vectorstore/sqlite/migrations"
)

// Fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed vectorstore.Store.
type Store struct {
	db   *sql.DB
	path string
}

var _ vectorstore.Store = (*Store)(nil)

// NewStore opens or creates the database at path.
// If path is empty, defaults to ~/.planrag/planrag.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".planrag", "planrag.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Path() string { return s.path }

// migrate applies every NNN_name.up.sql newer than the recorded version.
func (s *Store) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// SavePlan inserts or updates a plan.
func (s *Store) SavePlan(ctx context.Context, p domain.Plan) error {
	if p.ID == "" {
		return fmt.Errorf("%w: plan id is empty", domain.ErrInvalidInput)
	}
	if p.UploadedAt.IsZero() {
		p.UploadedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (id, title, filename, file_size, status, chunk_count, summary, uploaded_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			filename = excluded.filename,
			file_size = excluded.file_size,
			status = excluded.status,
			chunk_count = excluded.chunk_count,
			summary = excluded.summary,
			processed_at = excluded.processed_at
	`, p.ID, p.Title, p.Filename, p.FileSize, string(p.Status), p.ChunkCount, p.Summary,
		formatTime(p.UploadedAt), formatNullableTime(p.ProcessedAt))
	if err != nil {
		return fmt.Errorf("saving plan: %w", err)
	}
	return nil
}

const planColumns = `id, title, filename, file_size, status, chunk_count, summary, uploaded_at, processed_at`

func (s *Store) GetPlan(ctx context.Context, id string) (domain.Plan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Plan{}, fmt.Errorf("plan %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Plan{}, fmt.Errorf("getting plan: %w", err)
	}
	return p, nil
}

// ListPlans returns every plan, most recently uploaded first.
func (s *Store) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+planColumns+` FROM plans ORDER BY uploaded_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (domain.Plan, error) {
	var (
		p         domain.Plan
		status    string
		uploaded  string
		processed sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Filename, &p.FileSize, &status, &p.ChunkCount, &p.Summary, &uploaded, &processed); err != nil {
		return domain.Plan{}, err
	}
	p.Status = domain.PlanStatus(status)
	p.UploadedAt = parseTime(uploaded)
	if processed.Valid && processed.String != "" {
		t := parseTime(processed.String)
		p.ProcessedAt = &t
	}
	return p, nil
}

// SaveEntities upserts chunk entities in one transaction. The owning plan
// must already exist.
func (s *Store) SaveEntities(ctx context.Context, entities []domain.ChunkEntity) error {
	if len(entities) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, plan_id, page_number, chunk_index, text, token_count, metadata, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plan_id = excluded.plan_id,
			page_number = excluded.page_number,
			chunk_index = excluded.chunk_index,
			text = excluded.text,
			token_count = excluded.token_count,
			metadata = excluded.metadata,
			vector = excluded.vector,
			created_at = excluded.created_at
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		var meta any
		if e.Metadata != nil {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("marshalling metadata for %s: %w", e.ID, err)
			}
			meta = string(b)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.DocumentID, e.PageNumber, e.ChunkIndex, e.Text,
			e.TokenCount, meta, vecmath.Encode(e.Vector), formatTime(e.CreatedAt)); err != nil {
			return fmt.Errorf("saving chunk %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}
	return nil
}

// LoadEntities returns the entities of one plan, or of every plan when
// planID is empty, ordered by plan then page-major chunk position.
func (s *Store) LoadEntities(ctx context.Context, planID string) ([]domain.ChunkEntity, error) {
	query := `SELECT id, plan_id, page_number, chunk_index, text, token_count, metadata, vector, created_at FROM chunks`
	var args []any
	if planID != "" {
		query += ` WHERE plan_id = ?`
		args = append(args, planID)
	}
	query += ` ORDER BY plan_id, page_number, chunk_index`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.ChunkEntity
	for rows.Next() {
		var (
			e       domain.ChunkEntity
			meta    sql.NullString
			blob    []byte
			created string
		)
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.PageNumber, &e.ChunkIndex, &e.Text,
			&e.TokenCount, &meta, &blob, &created); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if meta.Valid && meta.String != "" {
			e.Metadata = &domain.ChunkMetadata{}
			if err := json.Unmarshal([]byte(meta.String), e.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata for %s: %w", e.ID, err)
			}
		}
		if e.Vector, err = vecmath.Decode(blob); err != nil {
			return nil, fmt.Errorf("decoding vector for %s: %w", e.ID, err)
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeletePlan removes a plan and, through the foreign key, its chunks.
func (s *Store) DeletePlan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("plan %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func formatNullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
