package progress

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"medialib/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when no progress row exists for a user/video pair.
var ErrNotFound = errors.New("watch progress not found")

// Store persists per-user watch progress in SQLite. Upserts race between
// concurrent streams for the same user; last write wins, which is the right
// answer for a position marker.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the progress database at path and applies
// pending schema migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open progress db: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate progress db: %w", err)
	}

	log.Printf("[progress] database ready at %s", path)
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStart marks a video as opened now and makes it the user's single
// active item. Called once per stream request before the first response
// byte.
func (s *Store) RecordStart(ctx context.Context, userID, videoID string, sizeBytes int64, durationSeconds float64) error {
	err := s.withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO watch_progress (user_id, video_id, last_opened, file_size_bytes, duration_seconds, active)
			VALUES (?, ?, ?, ?, ?, 1)
			ON CONFLICT (user_id, video_id) DO UPDATE SET
				last_opened = excluded.last_opened,
				file_size_bytes = excluded.file_size_bytes,
				duration_seconds = excluded.duration_seconds,
				active = 1`,
			userID, videoID, time.Now().UTC(), sizeBytes, durationSeconds)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE watch_progress SET active = 0 WHERE user_id = ? AND video_id != ?`,
			userID, videoID)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("record start %s/%s: %w", userID, videoID, err)
	}
	return nil
}

// UpdatePosition stores the latest playback position for an existing row.
// An unknown pair is created rather than rejected so a position report never
// depends on RecordStart having landed first.
func (s *Store) UpdatePosition(ctx context.Context, userID, videoID string, positionSeconds float64) error {
	err := s.withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO watch_progress (user_id, video_id, last_opened, position_seconds)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, video_id) DO UPDATE SET
				position_seconds = excluded.position_seconds`,
			userID, videoID, time.Now().UTC(), positionSeconds)
		return err
	})
	if err != nil {
		return fmt.Errorf("update position %s/%s: %w", userID, videoID, err)
	}
	return nil
}

// Get returns the progress row for a user/video pair.
func (s *Store) Get(ctx context.Context, userID, videoID string) (*models.WatchProgress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, video_id, last_opened, file_size_bytes, duration_seconds, position_seconds, active
		FROM watch_progress WHERE user_id = ? AND video_id = ?`,
		userID, videoID)
	return scanProgress(row)
}

// List returns all progress rows for a user, most recently opened first.
func (s *Store) List(ctx context.Context, userID string) ([]models.WatchProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, video_id, last_opened, file_size_bytes, duration_seconds, position_seconds, active
		FROM watch_progress WHERE user_id = ? ORDER BY last_opened DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list progress for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []models.WatchProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgress(row rowScanner) (*models.WatchProgress, error) {
	var p models.WatchProgress
	err := row.Scan(&p.UserID, &p.VideoID, &p.LastOpened, &p.FileSizeBytes, &p.DurationSeconds, &p.PositionSeconds, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan progress row: %w", err)
	}
	return &p, nil
}

// withBusyRetry retries a write a few times when SQLite reports the database
// locked. The busy_timeout handles most contention; this covers the window
// where it does not.
func (s *Store) withBusyRetry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			msg := strings.ToLower(err.Error())
			return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
		}),
	)
}
