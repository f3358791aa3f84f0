package httpx

import (
	"context"
	"io"
	"net/http"
	"time"
)

const (
	healthResponse   = `{"status":"ok"}`
	degradedResponse = `{"status":"degraded","sessions":"unavailable"}`
	healthTimeout    = 2 * time.Second
)

// Pinger is satisfied by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler reports readiness. With a session store wired in, an
// unreachable store answers 503 so the instance is pulled from rotation.
func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, healthResponse
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			err := store.Ping(ctx)
			cancel()
			if err != nil {
				status, body = http.StatusServiceUnavailable, degradedResponse
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.WriteString(w, body); err != nil {
			// Nothing more to do if the client connection is gone.
			return
		}
	}
}
