package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/francesco-re-1107/HostPingBot/internal/models"
	"github.com/francesco-re-1107/HostPingBot/internal/storage"
)

// SQLiteStore implements the storage.Storer interface for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore and establishes a connection to the database file.
// It also runs migrations to ensure the schema is up to date.
func New(ctx context.Context, dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	// A single writer connection keeps conditional updates serialized.
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// migrate ensures the database schema is created.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS watchdogs (
	id             TEXT PRIMARY KEY,
	chat_id        INTEGER NOT NULL,
	name           TEXT NOT NULL,
	mode           TEXT NOT NULL,
	address        TEXT,
	enabled        INTEGER NOT NULL DEFAULT 1,
	online         INTEGER NOT NULL DEFAULT 1,
	last_seen      INTEGER NOT NULL,
	check_interval INTEGER NOT NULL DEFAULT 120,
	created_at     TEXT NOT NULL,
	UNIQUE (chat_id, name)
);
CREATE INDEX IF NOT EXISTS idx_watchdogs_mode_enabled ON watchdogs (mode, enabled);
CREATE INDEX IF NOT EXISTS idx_watchdogs_chat_id ON watchdogs (chat_id);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const watchdogColumns = "id, chat_id, name, mode, address, enabled, online, last_seen, check_interval, created_at"

func scanWatchdog(row interface{ Scan(...any) error }) (*models.Watchdog, error) {
	var w models.Watchdog
	var address sql.NullString
	var lastSeen, checkInterval int64
	var createdAtStr string
	if err := row.Scan(&w.ID, &w.ChatID, &w.Name, &w.Mode, &address, &w.Enabled, &w.Online, &lastSeen, &checkInterval, &createdAtStr); err != nil {
		return nil, err
	}
	w.Address = address.String
	w.LastSeen = time.Unix(lastSeen, 0).UTC()
	w.CheckInterval = time.Duration(checkInterval) * time.Second
	w.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
	return &w, nil
}

func (s *SQLiteStore) queryWatchdogs(ctx context.Context, query string, args ...any) ([]models.Watchdog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchdogs: %w", err)
	}
	defer rows.Close()
	var watchdogs []models.Watchdog
	for rows.Next() {
		w, err := scanWatchdog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watchdog row: %w", err)
		}
		watchdogs = append(watchdogs, *w)
	}
	return watchdogs, rows.Err()
}

// ListPollHosts returns all enabled poll-mode watchdogs.
func (s *SQLiteStore) ListPollHosts(ctx context.Context) ([]models.Watchdog, error) {
	query := `SELECT ` + watchdogColumns + ` FROM watchdogs WHERE enabled = 1 AND mode = ?`
	return s.queryWatchdogs(ctx, query, models.ModePoll)
}

// ListExpiredPushHosts returns enabled push-mode watchdogs still marked online
// whose last heartbeat is older than their check interval.
func (s *SQLiteStore) ListExpiredPushHosts(ctx context.Context, now time.Time) ([]models.Watchdog, error) {
	query := `SELECT ` + watchdogColumns + ` FROM watchdogs
WHERE enabled = 1 AND mode = ? AND online = 1 AND ? - last_seen > check_interval`
	return s.queryWatchdogs(ctx, query, models.ModePush, now.Unix())
}

// GetByID retrieves a single watchdog by its unique id.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*models.Watchdog, error) {
	query := `SELECT ` + watchdogColumns + ` FROM watchdogs WHERE id = ?`
	w, err := scanWatchdog(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watchdog by id: %w", err)
	}
	return w, nil
}

// SetOnline conditionally flips a watchdog back online. The WHERE clause on the
// current state makes the transition atomic: of two racing callers only one
// observes a changed row.
func (s *SQLiteStore) SetOnline(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `UPDATE watchdogs SET online = 1, last_seen = ? WHERE id = ? AND online = 0`
	res, err := s.db.ExecContext(ctx, query, now.Unix(), id)
	if err != nil {
		return false, fmt.Errorf("failed to set watchdog online: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// SetOfflineBatch conditionally flips the given watchdogs offline and returns
// the ids whose stored state actually changed.
func (s *SQLiteStore) SetOfflineBatch(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	query := `UPDATE watchdogs SET online = 0 WHERE id IN (` + placeholders + `) AND online = 1 RETURNING id`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to set watchdogs offline: %w", err)
	}
	defer rows.Close()
	var changed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan changed id: %w", err)
		}
		changed = append(changed, id)
	}
	return changed, rows.Err()
}

// TouchLastSeen unconditionally refreshes the freshness timestamp.
func (s *SQLiteStore) TouchLastSeen(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE watchdogs SET last_seen = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, now.Unix(), id); err != nil {
		return fmt.Errorf("failed to touch last_seen: %w", err)
	}
	return nil
}

// CreateWatchdog persists a new watchdog, enforcing the per-owner limit and
// per-owner name uniqueness.
func (s *SQLiteStore) CreateWatchdog(ctx context.Context, w *models.Watchdog, limit int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM watchdogs WHERE chat_id = ?`, w.ChatID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count watchdogs: %w", err)
	}
	if count >= limit {
		return storage.ErrLimitExceeded
	}

	query := `
INSERT INTO watchdogs (id, chat_id, name, mode, address, enabled, online, last_seen, check_interval, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(chat_id, name) DO NOTHING`
	res, err := tx.ExecContext(ctx, query,
		w.ID, w.ChatID, w.Name, w.Mode, nullString(w.Address), w.Enabled, w.Online,
		w.LastSeen.Unix(), int64(w.CheckInterval/time.Second), w.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert watchdog: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return storage.ErrDuplicateName
	}
	return tx.Commit()
}

// DeleteWatchdog removes the named watchdog of an owner. Deleting an id that is
// mid-flight in a poll or expiry cycle is safe: the id simply stops matching
// subsequent queries and conditional updates.
func (s *SQLiteStore) DeleteWatchdog(ctx context.Context, chatID int64, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watchdogs WHERE chat_id = ? AND name = ?`, chatID, name)
	if err != nil {
		return fmt.Errorf("failed to delete watchdog: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListForOwner returns all watchdogs of an owner ordered by name.
func (s *SQLiteStore) ListForOwner(ctx context.Context, chatID int64) ([]models.Watchdog, error) {
	query := `SELECT ` + watchdogColumns + ` FROM watchdogs WHERE chat_id = ? ORDER BY name ASC`
	return s.queryWatchdogs(ctx, query, chatID)
}

// CountForOwner returns how many watchdogs an owner currently has.
func (s *SQLiteStore) CountForOwner(ctx context.Context, chatID int64) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM watchdogs WHERE chat_id = ?`, chatID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count watchdogs: %w", err)
	}
	return count, nil
}

// GetStats returns population counters for the admin command.
func (s *SQLiteStore) GetStats(ctx context.Context) (*models.Stats, error) {
	query := `
SELECT
	(SELECT COUNT(DISTINCT chat_id) FROM watchdogs),
	(SELECT COUNT(*) FROM watchdogs),
	(SELECT COUNT(*) FROM watchdogs WHERE mode = ?),
	(SELECT COUNT(*) FROM watchdogs WHERE mode = ?)`
	var st models.Stats
	err := s.db.QueryRowContext(ctx, query, models.ModePoll, models.ModePush).
		Scan(&st.Users, &st.Watchdogs, &st.PollWatchdogs, &st.PushWatchdogs)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	return &st, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
