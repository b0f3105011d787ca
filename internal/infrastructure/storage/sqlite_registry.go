package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"CVTailor/internal/domain"
	"CVTailor/internal/infrastructure/storage/migrations"
	"CVTailor/internal/ports"
)

// SQLiteRegistry persists upload and analysis metadata in a local SQLite file.
// The stage cache stays the source of truth; the registry only indexes it.
type SQLiteRegistry struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.DocumentRegistry = (*SQLiteRegistry)(nil)

// OpenSQLiteRegistry opens (creating if needed) the database at path and
// applies pending migrations.
func OpenSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	r := &SQLiteRegistry{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
	if err := r.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate registry: %w", err)
	}
	return r, nil
}

func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

func (r *SQLiteRegistry) migrate(fsys fs.FS) error {
	if _, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := r.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := r.db.Exec(string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := r.db.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			version, time.Now().Unix()); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// RecordUpload inserts the upload once; repeated uploads of the same document
// keep the first record.
func (r *SQLiteRegistry) RecordUpload(ctx context.Context, upload domain.Upload) error {
	query, args, err := r.builder.
		Insert("uploads").
		Columns("id", "filename", "size", "created_at").
		Values(string(upload.ID), upload.Filename, upload.Size, timestamp(upload.CreatedAt)).
		Suffix("ON CONFLICT(id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upload insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

// RecordAnalysis upserts the summary of the analysis for (document, job).
func (r *SQLiteRegistry) RecordAnalysis(ctx context.Context, record domain.AnalysisRecord) error {
	query, args, err := r.builder.
		Insert("analyses").
		Columns("document_id", "job_id", "job_title", "score", "score_label", "change_count", "created_at").
		Values(
			string(record.DocumentID),
			string(record.JobID),
			record.JobTitle,
			record.Score,
			record.ScoreLabel,
			record.ChangeCount,
			timestamp(record.CreatedAt),
		).
		Suffix(`ON CONFLICT(document_id, job_id) DO UPDATE SET
			job_title = excluded.job_title,
			score = excluded.score,
			score_label = excluded.score_label,
			change_count = excluded.change_count,
			created_at = excluded.created_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build analysis upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

// ListAnalyses returns the analyses recorded for doc, newest first.
func (r *SQLiteRegistry) ListAnalyses(ctx context.Context, doc domain.DocumentID) ([]domain.AnalysisRecord, error) {
	query, args, err := r.builder.
		Select("document_id", "job_id", "job_title", "score", "score_label", "change_count", "created_at").
		From("analyses").
		Where(sq.Eq{"document_id": string(doc)}).
		OrderBy("created_at DESC", "job_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build analyses query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	records := []domain.AnalysisRecord{}
	for rows.Next() {
		var (
			rec        domain.AnalysisRecord
			docID, job string
			created    int64
		)
		if err := rows.Scan(&docID, &job, &rec.JobTitle, &rec.Score, &rec.ScoreLabel, &rec.ChangeCount, &created); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		rec.DocumentID = domain.DocumentID(docID)
		rec.JobID = domain.JobID(job)
		rec.CreatedAt = time.UnixMilli(created).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

func timestamp(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}
