// Package notify delivers online/offline events to watchdog owners through a
// buffered queue drained by a dedicated worker, so delivery latency never
// blocks the liveness engine.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/francesco-re-1107/HostPingBot/internal/models"
	"github.com/francesco-re-1107/HostPingBot/internal/telemetry"
	"github.com/francesco-re-1107/HostPingBot/internal/timeutil"
)

// Sender delivers a rendered notification text to an owner chat.
type Sender interface {
	Send(chatID int64, text string) error
}

// Event is one queued state-transition notification.
type Event struct {
	Watchdog models.Watchdog
	Online   bool
	Downtime *time.Duration // set only for recoveries with a known outage start
}

// Queue is the outbound notification pipeline. Enqueueing never blocks: if the
// buffer is full the event is dropped and logged, because a notification must
// never hold up or roll back the state transition that produced it.
type Queue struct {
	sender   Sender
	events   chan Event
	log      zerolog.Logger
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewQueue creates a notification queue with the given buffer size.
func NewQueue(sender Sender, buffer int, log zerolog.Logger) *Queue {
	return &Queue{
		sender: sender,
		events: make(chan Event, buffer),
		log:    log.With().Str("component", "notify").Logger(),
	}
}

// Start launches the delivery worker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for ev := range q.events {
			q.deliver(ev)
		}
	}()
}

// Stop drains the queue and stops the worker.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.events)
		q.wg.Wait()
	})
}

// NotifyOffline enqueues an online→offline notification.
func (q *Queue) NotifyOffline(w models.Watchdog) {
	q.enqueue(Event{Watchdog: w, Online: false})
}

// NotifyOnline enqueues an offline→online notification. downtime may be nil
// when the outage start is unknown.
func (q *Queue) NotifyOnline(w models.Watchdog, downtime *time.Duration) {
	q.enqueue(Event{Watchdog: w, Online: true, Downtime: downtime})
}

func (q *Queue) enqueue(ev Event) {
	select {
	case q.events <- ev:
	default:
		q.log.Warn().Str("watchdog", ev.Watchdog.Name).Msg("notification queue full, dropping event")
		telemetry.NotificationsTotal.WithLabelValues(eventLabel(ev), "dropped").Inc()
	}
}

func (q *Queue) deliver(ev Event) {
	text := FormatOffline(ev.Watchdog)
	if ev.Online {
		text = FormatOnline(ev.Watchdog, ev.Downtime)
	}

	status := "ok"
	if err := q.sender.Send(ev.Watchdog.ChatID, text); err != nil {
		// Delivery is best-effort; the transition already happened.
		q.log.Error().Err(err).Str("watchdog", ev.Watchdog.Name).Int64("chat_id", ev.Watchdog.ChatID).Msg("failed to deliver notification")
		status = "error"
	}
	telemetry.NotificationsTotal.WithLabelValues(eventLabel(ev), status).Inc()
}

func eventLabel(ev Event) string {
	if ev.Online {
		return "online"
	}
	return "offline"
}

// FormatOffline renders the offline notification text.
func FormatOffline(w models.Watchdog) string {
	return fmt.Sprintf("🔴 %s is OFFLINE right now", w.Name)
}

// FormatOnline renders the recovery notification text, including the humanized
// downtime when known.
func FormatOnline(w models.Watchdog, downtime *time.Duration) string {
	if downtime == nil {
		return fmt.Sprintf("🟢 %s is back ONLINE", w.Name)
	}
	return fmt.Sprintf("🟢 %s is back ONLINE\n\nIt's been down for %s", w.Name, timeutil.FormatDowntime(*downtime))
}
