// Package app wires the huddle server runtime: config, logging, stores, HTTP routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"huddle/cmd/identity"
	authapi "huddle/cmd/internal/auth/api"
	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/groups"
	"huddle/cmd/internal/invite"
	"huddle/cmd/internal/metrics"
	"huddle/cmd/internal/realtime"
	"huddle/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// stores is the persistence set chosen at startup.
type stores struct {
	users    identity.Store
	groups   groups.Store
	messages realtime.MessageStore
	invites  invite.Store
}

// App is the huddle server runtime. It owns the pool, the stores and the HTTP handler tree.
type App struct {
	cfg Config
	log Logger

	dbPool   *pgxpool.Pool
	stores   stores
	registry *prometheus.Registry
	handler  http.Handler
}

// New constructs a fully wired App from config and logger.
// An empty DatabaseURL selects in-memory stores.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg, sessCfg, pwCfg); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	pool, st, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, dbPool: pool, stores: st, registry: reg}
	if err := a.wire(sessCfg, pwCfg, m); err != nil {
		a.closeStores()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(sessCfg session.Config, pwCfg password.Config, m *metrics.Metrics) error {
	codec, err := session.NewCodec(sessCfg)
	if err != nil {
		return err
	}
	policy := session.NewRefreshPolicy(sessCfg)
	cookies := session.NewCookies(sessCfg)

	verifier, err := session.NewVerifier(
		codec, policy, session.NewRaceGuard(sessCfg.LockTTL), a.stores.users,
		session.WithLogger(a.log),
		session.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	hub := realtime.NewHub(a.log)
	bc := realtime.NewBroadcaster(a.log, hub, m)
	coord := realtime.NewPresenceCoordinator(a.log, hub, bc, a.stores.users, a.stores.groups)
	groupSvc := groups.NewService(a.log, a.stores.groups, a.stores.users, coord)

	ws, err := realtime.NewWSGateway(a.log, realtime.GatewayDeps{
		Verifier:    verifier,
		Cookies:     cookies,
		Coordinator: coord,
		Broadcaster: bc,
		Store:       a.stores.messages,
		Users:       a.stores.users,
		Metrics:     m,
	})
	if err != nil {
		return err
	}

	auth, err := authapi.NewHandler(a.log, authapi.LoadConfigFromEnv(), authapi.Deps{
		Users:       a.stores.users,
		Codec:       codec,
		Policy:      policy,
		Cookies:     cookies,
		Passwords:   pwCfg,
		Placeholder: password.NewPlaceholder(pwCfg),
		Notifier:    realtime.NewProfileAnnouncer(a.log, a.stores.groups, bc),
		Metrics:     m,
		Pool:        a.dbPool,
	})
	if err != nil {
		return err
	}

	invites, err := invite.NewService(a.stores.invites, groupSvc, invite.WithLogger(a.log))
	if err != nil {
		return err
	}

	guard := func(next http.Handler) http.Handler {
		return session.Guard(verifier, cookies, next)
	}

	mux := http.NewServeMux()
	registerHTTP(mux, routes{
		log:      a.log,
		cfg:      a.cfg,
		dbPool:   a.dbPool,
		registry: a.registry,
		guard:    guard,
		auth:     auth,
		groups:   groups.NewHandler(a.log, groupSvc),
		invites:  invite.NewHandler(a.log, invites, a.cfg.PublicBaseURL),
		ws:       ws,
	})

	a.handler = WithRequestLogging(WithSecurityHeaders(WithCORS(mux, a.cfg, a.log)), a.log)
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbPool != nil,
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/ws",
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.closeStores()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.closeStores()
		return err
	}

	a.closeStores()
	a.log.Info("server.stopped")
	return nil
}

// Close releases stores and the pool without serving. Used by tests and on startup failure.
func (a *App) Close() { a.closeStores() }

func (a *App) closeStores() {
	if a.stores.messages != nil {
		if err := a.stores.messages.Close(); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func newStores(ctx context.Context, cfg Config, log Logger) (*pgxpool.Pool, stores, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nil, stores{
			users:    identity.NewMemoryStore(),
			groups:   groups.NewMemoryStore(),
			messages: realtime.NewInMemoryStore(),
			invites:  invite.NewMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg, log)
	if err != nil {
		return nil, stores{}, err
	}

	st, err := postgresStores(pool, cfg.DBSchema)
	if err != nil {
		pool.Close()
		return nil, stores{}, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
	return pool, st, nil
}

func postgresStores(pool *pgxpool.Pool, schema string) (stores, error) {
	users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	if err != nil {
		return stores{}, err
	}
	gs, err := groups.NewPostgresStore(pool, groups.WithSchema(schema))
	if err != nil {
		return stores{}, err
	}
	msgs, err := realtime.NewPostgresStore(pool, realtime.WithSchema(schema))
	if err != nil {
		return stores{}, err
	}
	inv, err := invite.NewPostgresStore(pool, invite.WithSchema(schema))
	if err != nil {
		return stores{}, err
	}
	return stores{users: users, groups: gs, messages: msgs, invites: inv}, nil
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL maps an http(s) base URL onto its ws(s) counterpart.
func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
