package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/revelation/internal/errs"
	_ "github.com/mattn/go-sqlite3"
)

// Record is one feedback log row.
type Record struct {
	ID        string    `json:"id"`
	ImagePath string    `json:"image_path"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("feedback record not found")

// Store is the SQLite feedback log.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func OpenStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS feedback_records (
		id TEXT PRIMARY KEY,
		image_path TEXT NOT NULL,
		label TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback_records(created_at);
	CREATE INDEX IF NOT EXISTS idx_feedback_label ON feedback_records(label);
	`
	_, err := db.Exec(schema)
	return err
}

// Create inserts a record for imagePath filed under label.
func (s *Store) Create(ctx context.Context, imagePath, label string) (*Record, error) {
	now := time.Now().UTC()
	rec := &Record{
		ID:        uuid.NewString(),
		ImagePath: imagePath,
		Label:     label,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback_records (id, image_path, label, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.ImagePath, rec.Label, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return nil, errs.IO("feedback.Create", err)
	}
	return rec, nil
}

// Get returns a record by id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx,
		`SELECT id, image_path, label, created_at, updated_at
		 FROM feedback_records WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.ImagePath, &rec.Label, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, errs.IO("feedback.Get", err)
	}
	return &rec, nil
}

// List returns records newest first, skipping skip rows and returning at most limit.
func (s *Store) List(ctx context.Context, skip, limit int) ([]*Record, error) {
	if skip < 0 || limit < 0 {
		return nil, errs.Invalid("feedback.List", "skip and limit must be non-negative")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, image_path, label, created_at, updated_at
		 FROM feedback_records ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, skip,
	)
	if err != nil {
		return nil, errs.IO("feedback.List", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.ImagePath, &rec.Label, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, errs.IO("feedback.List", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.IO("feedback.List", err)
	}
	return out, nil
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback_records`).Scan(&n); err != nil {
		return 0, errs.IO("feedback.Count", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
