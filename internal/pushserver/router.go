package pushserver

import (
	"net/http"

	"github.com/francesco-re-1107/HostPingBot/internal/telemetry"
)

// NewRouter creates a new http.ServeMux and registers the push endpoints.
func NewRouter(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /update/{id}", h.Update)
	mux.HandleFunc("GET /status", h.Status)
	mux.Handle("GET /metrics", telemetry.MetricsHandler())

	return mux
}
