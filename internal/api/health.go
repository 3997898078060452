package api

import (
	"context"
	"net/http"
	"time"
)

// readyTimeout bounds the storage ping in the readiness probe.
const readyTimeout = 2 * time.Second

// health is a liveness probe for container orchestrators.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness reports whether backing storage is reachable. A nil check means
// there is nothing to probe and the server is always ready.
func readiness(check ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
