package app

import (
	"net/http"
	"time"

	authapi "huddle/cmd/internal/auth/api"
	"huddle/cmd/internal/groups"
	"huddle/cmd/internal/invite"
	"huddle/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routes struct {
	log      Logger
	cfg      Config
	dbPool   *pgxpool.Pool
	registry *prometheus.Registry
	guard    func(http.Handler) http.Handler

	auth    *authapi.Handler
	groups  *groups.Handler
	invites *invite.Handler
	ws      *realtime.WSGateway
}

func registerHTTP(mux *http.ServeMux, r routes) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.ReadinessRequireDB && r.dbPool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if r.dbPool != nil {
			if err := PingDB(req.Context(), r.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				r.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if r.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	}

	r.auth.Register(mux, r.guard)
	r.groups.Register(mux, r.guard)
	r.invites.Register(mux, r.guard)

	mux.Handle("GET /ws", r.ws)
}
