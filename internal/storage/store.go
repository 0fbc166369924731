package storage

import (
	"context"
	"errors"
	"time"

	"github.com/francesco-re-1107/HostPingBot/internal/models"
)

var (
	// ErrNotFound is returned when a requested watchdog does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName is returned when an owner already has a watchdog with the same name.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrLimitExceeded is returned when an owner has reached the watchdog limit.
	ErrLimitExceeded = errors.New("watchdog limit exceeded")
)

// Storer defines the storage operations the liveness engine and the
// registration front-end depend on.
//
// SetOnline and SetOfflineBatch are conditional updates: they change a row only
// if its current state is the opposite one, and report what actually changed.
// Callers must notify owners based on that report, never on intent, so that two
// components racing on the same watchdog cannot double-notify.
type Storer interface {
	// ListPollHosts returns all enabled poll-mode watchdogs.
	ListPollHosts(ctx context.Context) ([]models.Watchdog, error)

	// ListExpiredPushHosts returns enabled push-mode watchdogs that are still
	// marked online but have been silent longer than their check interval.
	ListExpiredPushHosts(ctx context.Context, now time.Time) ([]models.Watchdog, error)

	// GetByID returns the watchdog with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Watchdog, error)

	// SetOnline marks the watchdog online and refreshes last_seen, but only if
	// it is currently offline. Returns true iff the row changed.
	SetOnline(ctx context.Context, id string, now time.Time) (bool, error)

	// SetOfflineBatch marks the given watchdogs offline, skipping rows that are
	// already offline. Returns the ids of the rows that actually changed.
	SetOfflineBatch(ctx context.Context, ids []string) ([]string, error)

	// TouchLastSeen unconditionally refreshes the last_seen timestamp.
	TouchLastSeen(ctx context.Context, id string, now time.Time) error

	// CreateWatchdog persists a new watchdog. It enforces the per-owner limit
	// and per-owner name uniqueness.
	CreateWatchdog(ctx context.Context, w *models.Watchdog, limit int) error

	// DeleteWatchdog removes the named watchdog of the given owner.
	DeleteWatchdog(ctx context.Context, chatID int64, name string) error

	// ListForOwner returns all watchdogs of an owner ordered by name.
	ListForOwner(ctx context.Context, chatID int64) ([]models.Watchdog, error)

	// CountForOwner returns how many watchdogs an owner currently has.
	CountForOwner(ctx context.Context, chatID int64) (int, error)

	// GetStats returns population counters for the admin command.
	GetStats(ctx context.Context) (*models.Stats, error)
}
