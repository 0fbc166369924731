// Package expiry implements the lazy heartbeat-expiry side of the liveness
// engine: a fixed-cadence scan that finds push-mode watchdogs silent past
// their deadline and transitions them offline.
package expiry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/francesco-re-1107/HostPingBot/internal/models"
	"github.com/francesco-re-1107/HostPingBot/internal/storage"
	"github.com/francesco-re-1107/HostPingBot/internal/telemetry"
)

// restartBackoff is the pause before a crashed scan loop is restarted.
const restartBackoff = 5 * time.Second

// Notifier delivers state-transition events to watchdog owners.
type Notifier interface {
	NotifyOffline(w models.Watchdog)
}

// Scanner periodically expires silent push-mode watchdogs. Detection latency
// for any host is bounded by the scan interval, not by its own check interval;
// no per-watchdog timers exist.
type Scanner struct {
	store    storage.Storer
	notifier Notifier
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new Scanner with the given scan interval.
func New(store storage.Storer, notifier Notifier, interval time.Duration, log zerolog.Logger) *Scanner {
	return &Scanner{
		store:    store,
		notifier: notifier,
		interval: interval,
		log:      log.With().Str("component", "expiry").Logger(),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start launches the scan loop. A panicking scan is logged and the loop
// restarted after a backoff.
func (s *Scanner) Start() {
	s.log.Info().Dur("interval", s.interval).Msg("starting heartbeat expiry scanner")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stopChan:
				return
			default:
			}
			if err := s.runSupervised(); err != nil {
				s.log.Error().Err(err).Dur("backoff", restartBackoff).Msg("expiry scanner crashed, restarting")
				s.sleep(restartBackoff)
			}
		}
	}()
}

// Stop shuts the scanner down and waits for the in-flight scan to finish.
func (s *Scanner) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	s.log.Info().Msg("heartbeat expiry scanner stopped")
}

func (s *Scanner) runSupervised() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("expiry scan panic: %v", r)
		}
	}()

	for {
		s.runScan(context.Background())
		if !s.sleep(s.interval) {
			return nil
		}
	}
}

func (s *Scanner) sleep(d time.Duration) bool {
	select {
	case <-s.stopChan:
		return false
	case <-time.After(d):
		return true
	}
}

// runScan finds watchdogs whose heartbeat deadline has passed and flips them
// offline in one conditional batch. Owners are notified only for rows the
// batch actually changed: a heartbeat racing this scan wins or loses the CAS
// as a whole, never producing a duplicate notification.
func (s *Scanner) runScan(ctx context.Context) {
	expired, err := s.store.ListExpiredPushHosts(ctx, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to query expired push hosts")
		return
	}
	if len(expired) == 0 {
		return
	}

	byID := make(map[string]models.Watchdog, len(expired))
	ids := make([]string, len(expired))
	for i, w := range expired {
		byID[w.ID] = w
		ids[i] = w.ID
	}

	changed, err := s.store.SetOfflineBatch(ctx, ids)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to set watchdogs offline")
		return
	}

	for _, id := range changed {
		w := byID[id]
		telemetry.TransitionsTotal.WithLabelValues("offline").Inc()
		s.log.Info().Str("watchdog", w.Name).Msg("heartbeat expired, host offline")
		s.notifier.NotifyOffline(w)
	}
}
