package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// AlertRecord is one row of the alert ledger.
type AlertRecord struct {
	NotificationID string    `db:"notification_id"`
	CorrelationID  string    `db:"correlation_id"`
	Title          string    `db:"title"`
	AlertedAt      time.Time `db:"alerted_at"`
}

// SQLiteStore persists the alert ledger in a local SQLite database so a
// restarted client does not alert twice for the same notification.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// RecordAlert stores that an alert was shown for a notification. It
// returns false without error if the notification was already recorded.
func (s *SQLiteStore) RecordAlert(ctx context.Context, rec AlertRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alerts (notification_id, correlation_id, title, alerted_at)
		VALUES (?, ?, ?, ?)`,
		rec.NotificationID, rec.CorrelationID, rec.Title, rec.AlertedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("recording alert %s: %w", rec.NotificationID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("recording alert %s: %w", rec.NotificationID, err)
	}
	return n > 0, nil
}

// getAlert returns the ledger row for a notification, or nil if there is
// none.
func (s *SQLiteStore) getAlert(ctx context.Context, notificationID string) (*AlertRecord, error) {
	var rows []AlertRecord
	err := s.db.SelectContext(ctx, &rows, `
		SELECT notification_id, correlation_id, title, alerted_at
		FROM alerts WHERE notification_id = ?`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("getting alert %s: %w", notificationID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// PruneAlerts deletes ledger rows older than before and returns how many
// were removed.
func (s *SQLiteStore) PruneAlerts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM alerts WHERE alerted_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning alerts: %w", err)
	}
	return res.RowsAffected()
}
