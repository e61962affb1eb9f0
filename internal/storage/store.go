package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spacecat/sage/internal/models"
	_ "modernc.org/sqlite"
)

// FileName is the database file inside a session workspace
const FileName = "captions.db"

// ErrNotFound is returned when no row exists for an image
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS captions (
	image_name TEXT PRIMARY KEY,
	caption    TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS viewed_images (
	image_name TEXT PRIMARY KEY,
	viewed_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

// Store is the caption and viewed-state database of one session.
// Each method checks out its own connection and returns it before exiting.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the SQLite database at path
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open caption database: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle; the schema is not created
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Path returns the database file path, empty for wrapped handles
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the tables if they are missing
func (s *Store) Init(ctx context.Context) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	})
}

// CheckIntegrity runs PRAGMA integrity_check and reports any problem found
func (s *Store) CheckIntegrity(ctx context.Context) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		var result string
		if err := conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
			return fmt.Errorf("integrity check failed: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity check failed: %s", result)
		}
		return nil
	})
}

// UpsertCaption writes the caption for an image, replacing any previous one
func (s *Store) UpsertCaption(ctx context.Context, imageName, caption string) error {
	now := formatTime(time.Now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO captions (image_name, caption, created_at, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(image_name) DO UPDATE SET caption = excluded.caption, updated_at = excluded.updated_at`,
			imageName, caption, now, now)
		if err != nil {
			return fmt.Errorf("failed to save caption for %s: %w", imageName, err)
		}
		return nil
	})
}

// GetCaption returns the caption row for an image or ErrNotFound
func (s *Store) GetCaption(ctx context.Context, imageName string) (models.CaptionRecord, error) {
	rec := models.CaptionRecord{ImageName: imageName}
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var caption sql.NullString
		var created, updated sql.NullString
		err := conn.QueryRowContext(ctx,
			"SELECT caption, created_at, updated_at FROM captions WHERE image_name = ?", imageName).
			Scan(&caption, &created, &updated)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get caption for %s: %w", imageName, err)
		}
		rec.Caption = caption.String
		rec.CreatedAt = parseTime(created.String)
		rec.UpdatedAt = parseTime(updated.String)
		return nil
	})
	return rec, err
}

// GetAllCaptions returns every caption ordered by image name
func (s *Store) GetAllCaptions(ctx context.Context) ([]models.CaptionRecord, error) {
	var records []models.CaptionRecord
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx,
			"SELECT image_name, caption, created_at, updated_at FROM captions ORDER BY image_name")
		if err != nil {
			return fmt.Errorf("failed to list captions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var rec models.CaptionRecord
			var caption, created, updated sql.NullString
			if err := rows.Scan(&rec.ImageName, &caption, &created, &updated); err != nil {
				return fmt.Errorf("failed to scan caption: %w", err)
			}
			rec.Caption = caption.String
			rec.CreatedAt = parseTime(created.String)
			rec.UpdatedAt = parseTime(updated.String)
			records = append(records, rec)
		}
		return rows.Err()
	})
	return records, err
}

// CaptionMap returns every caption keyed by image name
func (s *Store) CaptionMap(ctx context.Context) (map[string]string, error) {
	records, err := s.GetAllCaptions(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(records))
	for _, rec := range records {
		m[rec.ImageName] = rec.Caption
	}
	return m, nil
}

func (s *Store) MarkViewed(ctx context.Context, imageName string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO viewed_images (image_name, viewed_at) VALUES (?, ?)",
			imageName, formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("failed to mark %s viewed: %w", imageName, err)
		}
		return nil
	})
}

func (s *Store) UnmarkViewed(ctx context.Context, imageName string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM viewed_images WHERE image_name = ?", imageName); err != nil {
			return fmt.Errorf("failed to unmark %s viewed: %w", imageName, err)
		}
		return nil
	})
}

// ListViewed returns viewed marks, most recent first
func (s *Store) ListViewed(ctx context.Context) ([]models.ViewedMark, error) {
	var marks []models.ViewedMark
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx,
			"SELECT image_name, viewed_at FROM viewed_images ORDER BY viewed_at DESC, image_name")
		if err != nil {
			return fmt.Errorf("failed to list viewed images: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var mark models.ViewedMark
			var viewed sql.NullString
			if err := rows.Scan(&mark.ImageName, &viewed); err != nil {
				return fmt.Errorf("failed to scan viewed image: %w", err)
			}
			mark.ViewedAt = parseTime(viewed.String)
			marks = append(marks, mark)
		}
		return rows.Err()
	})
	return marks, err
}

// Reset deletes every caption and viewed mark
func (s *Store) Reset(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"captions", "viewed_images"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// BackupTo writes a consistent copy of the database to path
func (s *Store) BackupTo(ctx context.Context, path string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
			return fmt.Errorf("failed to back up database: %w", err)
		}
		return nil
	})
}

func (s *Store) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire database connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
