// Package store persists job history and sent notifications to sqlite under
// /opt/var/lib. The bot runs fine without it (nil-safe wiring in main); the
// store only backs the /history command and update-announcement dedup.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
}

// JobRecord is the persisted shape of a completed background job.
type JobRecord struct {
	ID         string
	Key        string
	Status     string
	ExitCode   int
	Output     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// NotificationRecord is one sent admin notification.
type NotificationRecord struct {
	Category string
	Message  string
	SentAt   time.Time
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	key         TEXT NOT NULL,
	status      TEXT NOT NULL,
	exit_code   INTEGER NOT NULL,
	output      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_finished ON jobs(finished_at DESC);

CREATE TABLE IF NOT EXISTS notifications (
	category TEXT NOT NULL,
	message  TEXT NOT NULL,
	sent_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_sent ON notifications(sent_at DESC);

CREATE TABLE IF NOT EXISTS announcements (
	category    TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (category, fingerprint)
);`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveJob inserts a completed job, keeping at most `keep` newest records.
func (s *Store) SaveJob(ctx context.Context, j JobRecord, keep int) error {
	const maxStoredOutput = 8 * 1024
	out := j.Output
	if len(out) > maxStoredOutput {
		out = out[len(out)-maxStoredOutput:]
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO jobs (id, key, status, exit_code, output, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Key, j.Status, j.ExitCode, out, j.StartedAt.UTC(), j.FinishedAt.UTC())
	if err != nil {
		return err
	}
	if keep > 0 {
		_, err = s.db.ExecContext(ctx, `
DELETE FROM jobs WHERE id NOT IN (SELECT id FROM jobs ORDER BY finished_at DESC LIMIT ?)`, keep)
	}
	return err
}

// RecentJobs returns up to limit newest completed jobs.
func (s *Store) RecentJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, key, status, exit_code, output, started_at, finished_at
FROM jobs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var j JobRecord
		if err := rows.Scan(&j.ID, &j.Key, &j.Status, &j.ExitCode, &j.Output, &j.StartedAt, &j.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// SaveNotification records one sent notification, bounded to `keep` rows.
func (s *Store) SaveNotification(ctx context.Context, category, message string, at time.Time, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (category, message, sent_at) VALUES (?, ?, ?)`,
		category, message, at.UTC())
	if err != nil {
		return err
	}
	if keep > 0 {
		_, err = s.db.ExecContext(ctx, `
DELETE FROM notifications WHERE rowid NOT IN (SELECT rowid FROM notifications ORDER BY sent_at DESC LIMIT ?)`, keep)
	}
	return err
}

// RecentNotifications returns up to limit newest notifications.
func (s *Store) RecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT category, message, sent_at FROM notifications ORDER BY sent_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotificationRecord
	for rows.Next() {
		var n NotificationRecord
		if err := rows.Scan(&n.Category, &n.Message, &n.SentAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Announced reports whether a (category, fingerprint) pair was already
// announced. Survives restarts, so an ongoing condition does not re-alert
// just because the bot was bounced.
func (s *Store) Announced(ctx context.Context, category, fingerprint string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM announcements WHERE category = ? AND fingerprint = ?`,
		category, fingerprint).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkAnnounced records an announcement fingerprint, replacing older ones in
// the same category so the table stays small.
func (s *Store) MarkAnnounced(ctx context.Context, category, fingerprint string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM announcements WHERE category = ?`, category); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO announcements (category, fingerprint, created_at) VALUES (?, ?, ?)`,
		category, fingerprint, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}
