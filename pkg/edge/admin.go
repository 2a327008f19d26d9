package edge

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/calendis/calendis-edge/pkg/routing"
)

// AdminOptions configures the admin handler.
type AdminOptions struct {
	Store   *routing.Store
	Metrics *Metrics
	// Ready reports backend readiness. Nil means no backend is configured.
	Ready        func(ctx context.Context) error
	ReadyTimeout time.Duration
}

// NewAdminHandler serves health, readiness, metrics and explain endpoints.
func NewAdminHandler(opts AdminOptions) http.Handler {
	timeout := opts.ReadyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Store == nil || opts.Store.Router() == nil {
			writeError(w, r, http.StatusServiceUnavailable, CodeNotReady, "routing table not loaded")
			return
		}
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			if err := opts.Ready(ctx); err != nil {
				writeError(w, r, http.StatusServiceUnavailable, CodeNotReady, "backend not ready: "+err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ready",
			"generation": opts.Store.Generation(),
		})
	})

	mux.HandleFunc("/explain", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "use GET")
			return
		}
		if opts.Store == nil || opts.Store.Router() == nil {
			writeError(w, r, http.StatusServiceUnavailable, CodeNotReady, "routing table not loaded")
			return
		}

		q := r.URL.Query()
		session, err := optionalBool(q.Get("session"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeBadRequest, "session must be a boolean")
			return
		}
		demo, err := optionalBool(q.Get("demo"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeBadRequest, "demo must be a boolean")
			return
		}

		exp, err := Explain(opts.Store, q.Get("url"), session, demo)
		if err != nil {
			writeDomainError(w, r, http.StatusBadRequest, CodeBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, exp)
	})

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
		return opts.Metrics.MetricsMiddleware(mux)
	}
	return mux
}

func optionalBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
