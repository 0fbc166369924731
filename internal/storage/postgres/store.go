package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/francesco-re-1107/HostPingBot/internal/models"
	"github.com/francesco-re-1107/HostPingBot/internal/storage"
)

// PostgresStore implements the storage.Storer interface for PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// New creates a new PostgresStore and establishes a connection to the database.
// It also runs migrations to ensure the schema is up to date.
func New(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{db: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

// migrate ensures the database schema is created.
func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS watchdogs (
		id             TEXT PRIMARY KEY,
		chat_id        BIGINT NOT NULL,
		name           TEXT NOT NULL,
		mode           TEXT NOT NULL,
		address        TEXT,
		enabled        BOOLEAN NOT NULL DEFAULT TRUE,
		online         BOOLEAN NOT NULL DEFAULT TRUE,
		last_seen      BIGINT NOT NULL,
		check_interval INTEGER NOT NULL DEFAULT 120,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (chat_id, name)
	);
	CREATE INDEX IF NOT EXISTS idx_watchdogs_mode_enabled ON watchdogs (mode, enabled);
	CREATE INDEX IF NOT EXISTS idx_watchdogs_chat_id ON watchdogs (chat_id);
	`
	_, err := s.db.Exec(ctx, schema)
	return err
}

const watchdogColumns = "id, chat_id, name, mode, address, enabled, online, last_seen, check_interval, created_at"

func scanWatchdog(row pgx.Row) (*models.Watchdog, error) {
	var w models.Watchdog
	var address *string
	var lastSeen, checkInterval int64
	if err := row.Scan(&w.ID, &w.ChatID, &w.Name, &w.Mode, &address, &w.Enabled, &w.Online, &lastSeen, &checkInterval, &w.CreatedAt); err != nil {
		return nil, err
	}
	if address != nil {
		w.Address = *address
	}
	w.LastSeen = time.Unix(lastSeen, 0).UTC()
	w.CheckInterval = time.Duration(checkInterval) * time.Second
	return &w, nil
}

func (s *PostgresStore) queryWatchdogs(ctx context.Context, query string, args ...any) ([]models.Watchdog, error) {
	rows, err := s.db.Query(ctx, query, args...)
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
func (s *PostgresStore) ListPollHosts(ctx context.Context) ([]models.Watchdog, error) {
	query := `SELECT ` + watchdogColumns + ` FROM watchdogs WHERE enabled AND mode = $1`
	return s.queryWatchdogs(ctx, query, models.ModePoll)
}

// ListExpiredPushHosts returns enabled push-mode watchdogs still marked online
// whose last heartbeat is older than their check interval.
func (s *PostgresStore) ListExpiredPushHosts(ctx context.Context, now time.Time) ([]models.Watchdog, error) {
	query := `SELECT ` + watchdogColumns + ` FROM watchdogs
	WHERE enabled AND mode = $1 AND online AND $2 - last_seen > check_interval`
	return s.queryWatchdogs(ctx, query, models.ModePush, now.Unix())
}

// GetByID retrieves a single watchdog by its unique id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*models.Watchdog, error) {
	query := `SELECT ` + watchdogColumns + ` FROM watchdogs WHERE id = $1`
	w, err := scanWatchdog(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watchdog by id: %w", err)
	}
	return w, nil
}

// SetOnline conditionally flips a watchdog back online.
func (s *PostgresStore) SetOnline(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `UPDATE watchdogs SET online = TRUE, last_seen = $1 WHERE id = $2 AND NOT online`
	tag, err := s.db.Exec(ctx, query, now.Unix(), id)
	if err != nil {
		return false, fmt.Errorf("failed to set watchdog online: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetOfflineBatch conditionally flips the given watchdogs offline and returns
// the ids whose stored state actually changed.
func (s *PostgresStore) SetOfflineBatch(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `UPDATE watchdogs SET online = FALSE WHERE id = ANY($1) AND online RETURNING id`
	rows, err := s.db.Query(ctx, query, ids)
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
func (s *PostgresStore) TouchLastSeen(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE watchdogs SET last_seen = $1 WHERE id = $2`
	if _, err := s.db.Exec(ctx, query, now.Unix(), id); err != nil {
		return fmt.Errorf("failed to touch last_seen: %w", err)
	}
	return nil
}

// CreateWatchdog persists a new watchdog, enforcing the per-owner limit and
// per-owner name uniqueness.
func (s *PostgresStore) CreateWatchdog(ctx context.Context, w *models.Watchdog, limit int) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM watchdogs WHERE chat_id = $1`, w.ChatID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count watchdogs: %w", err)
	}
	if count >= limit {
		return storage.ErrLimitExceeded
	}

	query := `
	INSERT INTO watchdogs (id, chat_id, name, mode, address, enabled, online, last_seen, check_interval, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	var address *string
	if w.Address != "" {
		address = &w.Address
	}
	_, err = tx.Exec(ctx, query,
		w.ID, w.ChatID, w.Name, w.Mode, address, w.Enabled, w.Online,
		w.LastSeen.Unix(), int64(w.CheckInterval/time.Second), w.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return storage.ErrDuplicateName
		}
		return fmt.Errorf("failed to insert watchdog: %w", err)
	}
	return tx.Commit(ctx)
}

// DeleteWatchdog removes the named watchdog of an owner.
func (s *PostgresStore) DeleteWatchdog(ctx context.Context, chatID int64, name string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM watchdogs WHERE chat_id = $1 AND name = $2`, chatID, name)
	if err != nil {
		return fmt.Errorf("failed to delete watchdog: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListForOwner returns all watchdogs of an owner ordered by name.
func (s *PostgresStore) ListForOwner(ctx context.Context, chatID int64) ([]models.Watchdog, error) {
	query := `SELECT ` + watchdogColumns + ` FROM watchdogs WHERE chat_id = $1 ORDER BY name ASC`
	return s.queryWatchdogs(ctx, query, chatID)
}

// CountForOwner returns how many watchdogs an owner currently has.
func (s *PostgresStore) CountForOwner(ctx context.Context, chatID int64) (int, error) {
	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM watchdogs WHERE chat_id = $1`, chatID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count watchdogs: %w", err)
	}
	return count, nil
}

// GetStats returns population counters for the admin command.
func (s *PostgresStore) GetStats(ctx context.Context) (*models.Stats, error) {
	query := `
	SELECT
		(SELECT COUNT(DISTINCT chat_id) FROM watchdogs),
		(SELECT COUNT(*) FROM watchdogs),
		(SELECT COUNT(*) FROM watchdogs WHERE mode = $1),
		(SELECT COUNT(*) FROM watchdogs WHERE mode = $2)`
	var st models.Stats
	err := s.db.QueryRow(ctx, query, models.ModePoll, models.ModePush).
		Scan(&st.Users, &st.Watchdogs, &st.PollWatchdogs, &st.PushWatchdogs)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	return &st, nil
}
