// Package memory provides an in-memory Storer with the same conditional-update
// semantics as the SQL stores. It backs the engine tests and is handy for
// running the bot without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/francesco-re-1107/HostPingBot/internal/models"
	"github.com/francesco-re-1107/HostPingBot/internal/storage"
)

// MemoryStore is a mutex-guarded map of watchdogs. The single lock serializes
// conflicting updates the way the database serializes conditional updates.
type MemoryStore struct {
	mu        sync.Mutex
	watchdogs map[string]*models.Watchdog
}

var _ storage.Storer = (*MemoryStore)(nil)

// New creates an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{watchdogs: make(map[string]*models.Watchdog)}
}

// Put inserts or replaces a watchdog without any checks. Intended for test
// fixtures.
func (s *MemoryStore) Put(w models.Watchdog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := w
	s.watchdogs[w.ID] = &cp
}

// ListPollHosts returns all enabled poll-mode watchdogs.
func (s *MemoryStore) ListPollHosts(_ context.Context) ([]models.Watchdog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Watchdog
	for _, w := range s.watchdogs {
		if w.Enabled && w.Mode == models.ModePoll {
			out = append(out, *w)
		}
	}
	sortByName(out)
	return out, nil
}

// ListExpiredPushHosts returns enabled push-mode watchdogs still marked online
// whose last heartbeat is older than their check interval.
func (s *MemoryStore) ListExpiredPushHosts(_ context.Context, now time.Time) ([]models.Watchdog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Watchdog
	for _, w := range s.watchdogs {
		if w.Enabled && w.Mode == models.ModePush && w.Online && now.Sub(w.LastSeen) > w.CheckInterval {
			out = append(out, *w)
		}
	}
	sortByName(out)
	return out, nil
}

// GetByID returns the watchdog with the given id, or storage.ErrNotFound.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*models.Watchdog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watchdogs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

// SetOnline conditionally flips a watchdog back online.
func (s *MemoryStore) SetOnline(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watchdogs[id]
	if !ok || w.Online {
		return false, nil
	}
	w.Online = true
	w.LastSeen = now
	return true, nil
}

// SetOfflineBatch conditionally flips the given watchdogs offline and returns
// the ids that actually changed.
func (s *MemoryStore) SetOfflineBatch(_ context.Context, ids []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []string
	for _, id := range ids {
		if w, ok := s.watchdogs[id]; ok && w.Online {
			w.Online = false
			changed = append(changed, id)
		}
	}
	return changed, nil
}

// TouchLastSeen unconditionally refreshes the freshness timestamp.
func (s *MemoryStore) TouchLastSeen(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.watchdogs[id]; ok {
		w.LastSeen = now
	}
	return nil
}

// CreateWatchdog persists a new watchdog, enforcing the per-owner limit and
// per-owner name uniqueness.
func (s *MemoryStore) CreateWatchdog(_ context.Context, w *models.Watchdog, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, existing := range s.watchdogs {
		if existing.ChatID == w.ChatID {
			if existing.Name == w.Name {
				return storage.ErrDuplicateName
			}
			count++
		}
	}
	if count >= limit {
		return storage.ErrLimitExceeded
	}
	cp := *w
	s.watchdogs[w.ID] = &cp
	return nil
}

// DeleteWatchdog removes the named watchdog of an owner.
func (s *MemoryStore) DeleteWatchdog(_ context.Context, chatID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.watchdogs {
		if w.ChatID == chatID && w.Name == name {
			delete(s.watchdogs, id)
			return nil
		}
	}
	return storage.ErrNotFound
}

// ListForOwner returns all watchdogs of an owner ordered by name.
func (s *MemoryStore) ListForOwner(_ context.Context, chatID int64) ([]models.Watchdog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Watchdog
	for _, w := range s.watchdogs {
		if w.ChatID == chatID {
			out = append(out, *w)
		}
	}
	sortByName(out)
	return out, nil
}

// CountForOwner returns how many watchdogs an owner currently has.
func (s *MemoryStore) CountForOwner(_ context.Context, chatID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, w := range s.watchdogs {
		if w.ChatID == chatID {
			count++
		}
	}
	return count, nil
}

// GetStats returns population counters.
func (s *MemoryStore) GetStats(_ context.Context) (*models.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &models.Stats{}
	owners := make(map[int64]struct{})
	for _, w := range s.watchdogs {
		owners[w.ChatID] = struct{}{}
		st.Watchdogs++
		if w.Mode == models.ModePush {
			st.PushWatchdogs++
		} else {
			st.PollWatchdogs++
		}
	}
	st.Users = len(owners)
	return st, nil
}

func sortByName(watchdogs []models.Watchdog) {
	sort.Slice(watchdogs, func(i, j int) bool { return watchdogs[i].Name < watchdogs[j].Name })
}
