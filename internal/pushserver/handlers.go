package pushserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/francesco-re-1107/HostPingBot/internal/models"
	"github.com/francesco-re-1107/HostPingBot/internal/storage"
	"github.com/francesco-re-1107/HostPingBot/internal/telemetry"
)

// Validation failure reasons returned to the calling host. Only the host sees
// these; owners are never notified for a rejected heartbeat.
const (
	ReasonInvalidIdentifier = "InvalidIdentifier"
	ReasonUnknownWatchdog   = "UnknownWatchdog"
	ReasonModeMismatch      = "ModeMismatch"
)

// Notifier delivers state-transition events to watchdog owners.
type Notifier interface {
	NotifyOnline(w models.Watchdog, downtime *time.Duration)
}

// Handlers holds dependencies for the push endpoints.
type Handlers struct {
	store    storage.Storer
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

// NewHandlers creates a new Handlers struct.
func NewHandlers(store storage.Storer, notifier Notifier, log zerolog.Logger) *Handlers {
	return &Handlers{
		store:    store,
		notifier: notifier,
		log:      log.With().Str("component", "pushserver").Logger(),
		now:      time.Now,
	}
}

// Update handles an inbound heartbeat. The call is idempotent: repeated or
// concurrent heartbeats for the same watchdog converge to the same state, and
// the offline→online transition is a conditional update so a heartbeat racing
// the expiry scanner can never double-notify.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if !isValidUUID4(id) {
		telemetry.HeartbeatsTotal.WithLabelValues("invalid_identifier").Inc()
		http.Error(w, ReasonInvalidIdentifier, http.StatusBadRequest)
		return
	}

	wd, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		telemetry.HeartbeatsTotal.WithLabelValues("unknown_watchdog").Inc()
		http.Error(w, ReasonUnknownWatchdog, http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("failed to load watchdog")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if !wd.IsPush() {
		telemetry.HeartbeatsTotal.WithLabelValues("mode_mismatch").Inc()
		http.Error(w, ReasonModeMismatch, http.StatusBadRequest)
		return
	}

	now := h.now()

	// Attempt the conditional transition before the plain freshness update.
	// The expiry scanner may flip the row offline between the read above and
	// this point; whichever side changes the row is the one that notifies, so
	// a heartbeat landing in that window brings the host back online instead
	// of leaving it offline with a fresh last_seen.
	changed, err := h.store.SetOnline(r.Context(), id, now)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("failed to set watchdog online")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if changed {
		telemetry.TransitionsTotal.WithLabelValues("online").Inc()
		downtime := now.Sub(wd.LastSeen)
		h.log.Info().Str("watchdog", wd.Name).Dur("downtime", downtime).Msg("host back online via heartbeat")
		h.notifier.NotifyOnline(*wd, &downtime)
	} else if err := h.store.TouchLastSeen(r.Context(), id, now); err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("failed to touch last_seen")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	telemetry.HeartbeatsTotal.WithLabelValues("ok").Inc()
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Status is a simple liveness endpoint.
func (h *Handlers) Status(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK - bot"))
}

// isValidUUID4 accepts only canonical lowercase UUIDv4 strings.
func isValidUUID4(s string) bool {
	u, err := uuid.Parse(s)
	return err == nil && u.Version() == 4 && u.String() == s
}
