package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger checks database connectivity. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnChecker reports broker connectivity. The NATS queue satisfies it.
type ConnChecker interface {
	IsConnected() bool
}

// Health reports the liveness of TaskPilot's two hard dependencies. A
// degraded dependency yields 503 so load balancers stop routing here, but
// the process itself keeps running (the poller retries on its own).
type Health struct {
	DB      Pinger
	Queue   ConnChecker
	Version string
}

const pingTimeout = 2 * time.Second

type healthStatus struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	NATS     string `json:"nats"`
}

// Handle serves GET /health.
func (h *Health) Handle(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "ok", Version: h.Version, Postgres: "up", NATS: "up"}

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if h.DB != nil {
		if err := h.DB.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Postgres = "down"
		}
	}
	if h.Queue != nil && !h.Queue.IsConnected() {
		status.Status = "degraded"
		status.NATS = "down"
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
