package models

import "time"

// Mode selects the liveness detection strategy for a watchdog.
type Mode string

const (
	// ModePoll means the engine actively probes the host with ICMP echo requests.
	ModePoll Mode = "poll"
	// ModePush means the host calls the heartbeat endpoint before its deadline.
	ModePush Mode = "push"
)

// Watchdog represents a monitored host and its current liveness state.
// The liveness engine mutates only Online and LastSeen; everything else is
// immutable after creation.
type Watchdog struct {
	ID            string        `json:"id"`
	ChatID        int64         `json:"-"` // Telegram chat of the owner
	Name          string        `json:"name"`
	Mode          Mode          `json:"mode"`
	Address       string        `json:"address,omitempty"` // set iff Mode == ModePoll
	Enabled       bool          `json:"enabled"`
	Online        bool          `json:"online"`
	LastSeen      time.Time     `json:"last_seen"`
	CheckInterval time.Duration `json:"check_interval"` // meaningful iff Mode == ModePush
	CreatedAt     time.Time     `json:"created_at"`
}

// IsPush reports whether the watchdog expects inbound heartbeats.
func (w *Watchdog) IsPush() bool { return w.Mode == ModePush }

// Stats summarizes the watchdog population, shown to the admin.
type Stats struct {
	Users         int
	Watchdogs     int
	PollWatchdogs int
	PushWatchdogs int
}

// MaxNameLength bounds the display label of a watchdog.
const MaxNameLength = 64

// DefaultCheckInterval is the heartbeat deadline applied to new push watchdogs.
const DefaultCheckInterval = 120 * time.Second
