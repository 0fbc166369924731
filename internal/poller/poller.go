// Package poller implements the active probing side of the liveness engine:
// a fixed-cadence scheduler that probes every enabled poll-mode watchdog and
// drives its online/offline state.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/francesco-re-1107/HostPingBot/internal/models"
	"github.com/francesco-re-1107/HostPingBot/internal/pinger"
	"github.com/francesco-re-1107/HostPingBot/internal/storage"
	"github.com/francesco-re-1107/HostPingBot/internal/telemetry"
)

// maxRoundRetries bounds how often a cycle retries after a whole-round
// resolution or transport failure before giving up on the unresolved hosts.
const maxRoundRetries = 5

// restartBackoff is the pause before a crashed scheduler loop is restarted.
const restartBackoff = 5 * time.Second

// Notifier delivers state-transition events to watchdog owners.
type Notifier interface {
	NotifyOffline(w models.Watchdog)
	NotifyOnline(w models.Watchdog, downtime *time.Duration)
}

// Prober performs one batched probing round.
type Prober interface {
	MultiPing(ctx context.Context, addrs []string, opts pinger.Options) ([]pinger.Result, error)
}

// Config tunes the poll scheduler.
type Config struct {
	// Interval is the cycle period. Cycles self-pace: the next one starts
	// Interval after the previous one started, not after it finished.
	Interval time.Duration
	// ProbeOptions configures each probing round.
	ProbeOptions pinger.Options
	// OfflineRepeatCount is how many failed rounds a host must survive before
	// it is declared offline. This is the debounce against transient loss.
	OfflineRepeatCount int
}

// Poller periodically probes poll-mode watchdogs and applies state transitions.
type Poller struct {
	store    storage.Storer
	prober   Prober
	notifier Notifier
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new Poller.
func New(store storage.Storer, prober Prober, notifier Notifier, cfg Config, log zerolog.Logger) *Poller {
	return &Poller{
		store:    store,
		prober:   prober,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "poller").Logger(),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start launches the scheduler loop. A panicking cycle is logged and the loop
// restarted after a backoff, so a probing failure cannot take down the rest of
// the process.
func (p *Poller) Start() {
	p.log.Info().Dur("interval", p.cfg.Interval).Msg("starting poll scheduler")
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.stopChan:
				return
			default:
			}
			if err := p.runSupervised(); err != nil {
				p.log.Error().Err(err).Dur("backoff", restartBackoff).Msg("poll scheduler crashed, restarting")
				p.sleep(restartBackoff)
			}
		}
	}()
}

// Stop shuts the scheduler down and waits for the in-flight cycle to finish.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
	p.log.Info().Msg("poll scheduler stopped")
}

// runSupervised runs the scheduling loop, converting panics into errors for
// the supervisor.
func (p *Poller) runSupervised() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll cycle panic: %v", r)
		}
	}()

	for {
		start := p.now()
		p.runCycle(context.Background())
		elapsed := p.now().Sub(start)
		telemetry.PollCycleDuration.Observe(elapsed.Seconds())
		p.log.Debug().Dur("elapsed", elapsed).Msg("poll cycle finished")

		if !p.sleep(p.cfg.Interval - elapsed) {
			return nil
		}
	}
}

// sleep waits for d (clamped at zero) and reports false if the poller was
// stopped meanwhile.
func (p *Poller) sleep(d time.Duration) bool {
	if d < 0 {
		d = 0
	}
	select {
	case <-p.stopChan:
		return false
	case <-time.After(d):
		return true
	}
}

// runCycle executes one full poll cycle: fetch the outstanding set, probe it
// for up to OfflineRepeatCount rounds, then declare the survivors offline.
func (p *Poller) runCycle(ctx context.Context) {
	outstanding, err := p.store.ListPollHosts(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to fetch poll hosts")
		return
	}
	if len(outstanding) == 0 {
		return
	}

	retries := 0
	for retries < maxRoundRetries {
		remaining, err := p.runRounds(ctx, outstanding)
		outstanding = remaining
		if err == nil {
			break
		}
		retries++
		p.log.Error().Err(err).Int("retry", retries).Msg("probing round failed")
	}

	if len(outstanding) > 0 {
		p.declareOffline(ctx, outstanding)
	}
}

// runRounds probes the outstanding set for up to OfflineRepeatCount rounds.
// Hosts that reply leave the set immediately and are not probed again this
// cycle. A resolution or transport error aborts the rounds with the set as it
// stands, so the caller can retry.
func (p *Poller) runRounds(ctx context.Context, outstanding []models.Watchdog) ([]models.Watchdog, error) {
	for round := 0; round < p.cfg.OfflineRepeatCount && len(outstanding) > 0; round++ {
		addrs := make([]string, len(outstanding))
		for i, w := range outstanding {
			addrs[i] = w.Address
		}

		results, err := p.prober.MultiPing(ctx, addrs, p.cfg.ProbeOptions)
		if err != nil {
			return outstanding, err
		}

		var still []models.Watchdog
		for i, r := range results {
			if r.Alive {
				telemetry.ProbesTotal.WithLabelValues("alive").Inc()
				p.handleAlive(ctx, outstanding[i])
			} else {
				telemetry.ProbesTotal.WithLabelValues("dead").Inc()
				still = append(still, outstanding[i])
			}
		}
		outstanding = still
	}
	return outstanding, nil
}

// handleAlive records a successful probe. A host that was stored offline takes
// the conditional offline→online transition and its owner is told how long it
// was down; an already-online host just gets a freshness update.
func (p *Poller) handleAlive(ctx context.Context, w models.Watchdog) {
	now := p.now()

	if w.Online {
		if err := p.store.TouchLastSeen(ctx, w.ID, now); err != nil {
			p.log.Error().Err(err).Str("watchdog", w.Name).Msg("failed to touch last_seen")
		}
		return
	}

	changed, err := p.store.SetOnline(ctx, w.ID, now)
	if err != nil {
		p.log.Error().Err(err).Str("watchdog", w.Name).Msg("failed to set watchdog online")
		return
	}
	if !changed {
		// Someone else already flipped it; just refresh freshness.
		if err := p.store.TouchLastSeen(ctx, w.ID, now); err != nil {
			p.log.Error().Err(err).Str("watchdog", w.Name).Msg("failed to touch last_seen")
		}
		return
	}

	telemetry.TransitionsTotal.WithLabelValues("online").Inc()
	downtime := now.Sub(w.LastSeen)
	p.log.Info().Str("watchdog", w.Name).Dur("downtime", downtime).Msg("host back online")
	p.notifier.NotifyOnline(w, &downtime)
}

// declareOffline transitions the hosts that survived every round. The batch
// update is conditional on the stored state, so hosts already offline are left
// untouched and their owners are not notified again.
func (p *Poller) declareOffline(ctx context.Context, outstanding []models.Watchdog) {
	p.log.Debug().Int("count", len(outstanding)).Msg("hosts are down")

	byID := make(map[string]models.Watchdog, len(outstanding))
	ids := make([]string, len(outstanding))
	for i, w := range outstanding {
		byID[w.ID] = w
		ids[i] = w.ID
	}

	changed, err := p.store.SetOfflineBatch(ctx, ids)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to set watchdogs offline")
		return
	}

	for _, id := range changed {
		w := byID[id]
		telemetry.TransitionsTotal.WithLabelValues("offline").Inc()
		p.log.Info().Str("watchdog", w.Name).Msg("host went offline")
		p.notifier.NotifyOffline(w)
	}
}
