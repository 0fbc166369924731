package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francesco-re-1107/HostPingBot/internal/models"
	"github.com/francesco-re-1107/HostPingBot/internal/pinger"
	"github.com/francesco-re-1107/HostPingBot/internal/storage/memory"
)

// fakeProber replays scripted rounds. Each entry maps address to aliveness;
// the last entry repeats once the script runs out.
type fakeProber struct {
	mu     sync.Mutex
	rounds []map[string]bool
	err    error
	calls  [][]string
}

func (f *fakeProber) MultiPing(_ context.Context, addrs []string, _ pinger.Options) ([]pinger.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), addrs...))
	if f.err != nil {
		return nil, f.err
	}
	script := f.rounds[0]
	if len(f.rounds) > 1 {
		f.rounds = f.rounds[1:]
	}
	results := make([]pinger.Result, len(addrs))
	for i, addr := range addrs {
		results[i] = pinger.Result{Address: addr, Alive: script[addr]}
	}
	return results, nil
}

type recordedEvent struct {
	name     string
	online   bool
	downtime *time.Duration
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeNotifier) NotifyOffline(w models.Watchdog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{name: w.Name, online: false})
}

func (f *fakeNotifier) NotifyOnline(w models.Watchdog, downtime *time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{name: w.Name, online: true, downtime: downtime})
}

func (f *fakeNotifier) recorded() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

func newTestPoller(store *memory.MemoryStore, prober Prober, notifier Notifier, repeatCount int) *Poller {
	p := New(store, prober, notifier, Config{
		Interval:           time.Minute,
		OfflineRepeatCount: repeatCount,
	}, zerolog.Nop())
	return p
}

func pollWatchdog(id, name, addr string, online bool, lastSeen time.Time) models.Watchdog {
	return models.Watchdog{
		ID:       id,
		ChatID:   1,
		Name:     name,
		Mode:     models.ModePoll,
		Address:  addr,
		Enabled:  true,
		Online:   online,
		LastSeen: lastSeen,
	}
}

func TestCycleDeclaresOfflineAfterAllRoundsFail(t *testing.T) {
	store := memory.New()
	store.Put(pollWatchdog("w1", "web", "203.0.113.10", true, time.Now()))

	prober := &fakeProber{rounds: []map[string]bool{{}}} // never alive
	notifier := &fakeNotifier{}
	p := newTestPoller(store, prober, notifier, 3)

	p.runCycle(context.Background())

	require.Len(t, prober.calls, 3, "should probe the host in every round")
	events := notifier.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, "web", events[0].name)
	assert.False(t, events[0].online)

	w, err := store.GetByID(context.Background(), "w1")
	require.NoError(t, err)
	assert.False(t, w.Online)

	// Further failing cycles must not re-notify a host already offline.
	p.runCycle(context.Background())
	p.runCycle(context.Background())
	assert.Len(t, notifier.recorded(), 1)
}

func TestRespondingHostLeavesOutstandingSet(t *testing.T) {
	store := memory.New()
	store.Put(pollWatchdog("w1", "alpha", "203.0.113.10", true, time.Now()))
	store.Put(pollWatchdog("w2", "beta", "203.0.113.20", true, time.Now()))

	prober := &fakeProber{rounds: []map[string]bool{
		{"203.0.113.10": true}, // alpha answers in round 1, beta never does
		{},
	}}
	notifier := &fakeNotifier{}
	p := newTestPoller(store, prober, notifier, 3)

	p.runCycle(context.Background())

	require.Len(t, prober.calls, 3)
	assert.ElementsMatch(t, []string{"203.0.113.10", "203.0.113.20"}, prober.calls[0])
	assert.Equal(t, []string{"203.0.113.20"}, prober.calls[1], "responder must not be probed again")
	assert.Equal(t, []string{"203.0.113.20"}, prober.calls[2])

	events := notifier.recorded()
	require.Len(t, events, 1, "only the dead host produces a notification")
	assert.Equal(t, "beta", events[0].name)
	assert.False(t, events[0].online)
}

func TestEarlyExitWhenAllHostsRespond(t *testing.T) {
	store := memory.New()
	store.Put(pollWatchdog("w1", "alpha", "203.0.113.10", true, time.Now()))

	prober := &fakeProber{rounds: []map[string]bool{{"203.0.113.10": true}}}
	notifier := &fakeNotifier{}
	p := newTestPoller(store, prober, notifier, 3)

	p.runCycle(context.Background())

	assert.Len(t, prober.calls, 1, "rounds should stop once the outstanding set is empty")
	assert.Empty(t, notifier.recorded())
}

func TestRecoveryNotifiesWithDowntime(t *testing.T) {
	lastSeen := time.Now().Add(-45 * time.Minute)
	store := memory.New()
	store.Put(pollWatchdog("w1", "web", "203.0.113.10", false, lastSeen))

	prober := &fakeProber{rounds: []map[string]bool{{"203.0.113.10": true}}}
	notifier := &fakeNotifier{}
	p := newTestPoller(store, prober, notifier, 3)

	p.runCycle(context.Background())

	events := notifier.recorded()
	require.Len(t, events, 1)
	assert.True(t, events[0].online)
	require.NotNil(t, events[0].downtime)
	assert.GreaterOrEqual(t, *events[0].downtime, 45*time.Minute)

	w, err := store.GetByID(context.Background(), "w1")
	require.NoError(t, err)
	assert.True(t, w.Online)
	assert.True(t, w.LastSeen.After(lastSeen))
}

func TestOnlineHostGetsFreshnessUpdateOnly(t *testing.T) {
	lastSeen := time.Now().Add(-time.Hour)
	store := memory.New()
	store.Put(pollWatchdog("w1", "web", "203.0.113.10", true, lastSeen))

	prober := &fakeProber{rounds: []map[string]bool{{"203.0.113.10": true}}}
	notifier := &fakeNotifier{}
	p := newTestPoller(store, prober, notifier, 3)

	p.runCycle(context.Background())

	assert.Empty(t, notifier.recorded())
	w, err := store.GetByID(context.Background(), "w1")
	require.NoError(t, err)
	assert.True(t, w.LastSeen.After(lastSeen))
}

func TestResolveErrorsRetryThenDeclareOffline(t *testing.T) {
	store := memory.New()
	store.Put(pollWatchdog("w1", "web", "no-such-host.invalid", true, time.Now()))

	prober := &fakeProber{err: &pinger.ResolveError{Host: "no-such-host.invalid"}}
	notifier := &fakeNotifier{}
	p := newTestPoller(store, prober, notifier, 3)

	p.runCycle(context.Background())

	assert.Len(t, prober.calls, maxRoundRetries, "resolution failures retry a bounded number of times")

	events := notifier.recorded()
	require.Len(t, events, 1, "unresolved hosts are eventually declared offline")
	assert.False(t, events[0].online)
}

func TestDisabledHostsAreNotProbed(t *testing.T) {
	w := pollWatchdog("w1", "web", "203.0.113.10", true, time.Now())
	w.Enabled = false
	store := memory.New()
	store.Put(w)

	prober := &fakeProber{rounds: []map[string]bool{{}}}
	notifier := &fakeNotifier{}
	p := newTestPoller(store, prober, notifier, 3)

	p.runCycle(context.Background())

	assert.Empty(t, prober.calls)
	assert.Empty(t, notifier.recorded())
}
