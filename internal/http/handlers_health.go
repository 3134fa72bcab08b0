package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const defaultHealthTimeout = 2 * time.Second

// HealthChecker reports whether a backing dependency can serve requests.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthHandlers serves readiness and liveness checks. With no Sessions
// checker the endpoint always reports ok.
type HealthHandlers struct {
	Sessions HealthChecker
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Health returns 200 when the session store answers, 503 otherwise.
// GET|HEAD /healthz.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	setNoStore(w)
	resp, status := healthResponse{Status: "ok"}, http.StatusOK
	if h != nil && h.Sessions != nil {
		timeout := h.Timeout
		if timeout <= 0 {
			timeout = defaultHealthTimeout
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := h.Sessions.Ping(ctx); err != nil {
			if h.Logger != nil {
				h.Logger.WarnContext(r.Context(), "health check failed", "error", err)
			}
			resp, status = healthResponse{Status: "unavailable", Error: "session store unreachable"}, http.StatusServiceUnavailable
		}
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		return
	}
	WriteJSON(w, status, resp)
}
