package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"dealerchat/internal/retention"
	"dealerchat/pkg/auth"
	"dealerchat/pkg/config"
	"dealerchat/pkg/events"
	"dealerchat/pkg/logger"
	"dealerchat/pkg/notify"
	"dealerchat/pkg/progressor"
	"dealerchat/pkg/service"
	"dealerchat/pkg/state"
	"dealerchat/pkg/store"
	"dealerchat/pkg/telemetry"
)

// App owns every long-lived component and their lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	paths    state.Paths
	db       *store.DB
	bus      *events.Bus
	svc      *service.Service
	resolver *auth.Resolver
	revoker  auth.Revoker
	registry *prometheus.Registry

	srv           *http.Server
	stopRetention context.CancelFunc
}

// New validates the configuration, lays out the data directory and opens
// the store, bus and auth components. It does not start serving.
func New(ctx context.Context, eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if err := validateConfig(eff); err != nil {
		return nil, err
	}
	paths, err := state.EnsureStateDirs(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}
	if err := logger.AttachAuditFileSink(paths.Audit); err != nil {
		logger.Warn("audit_sink_unavailable", "path", paths.Audit, "error", err)
	}
	telemetry.SetTraceDir(paths.Telemetry)

	db, err := store.Open(paths.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", paths.Store, err)
	}
	if _, err := progressor.Run(ctx, db, progressor.SchemaVersion); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("upgrade stored data: %w", err)
	}

	cfg := eff.Config
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(store.NewCollector(db))

	bus := events.NewBus(events.WithBufferSize(cfg.Bus.BufferSize), events.WithMetrics(events.NewMetrics(reg)))

	var revoker auth.Revoker
	if url := cfg.Security.Redis.URL; url != "" {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rr, err := auth.NewRedisRevoker(rctx, url)
		cancel()
		if err != nil {
			bus.Close()
			_ = db.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		revoker = rr
	} else {
		logger.Warn("revocation_in_memory", "msg", "security.redis.url not set; revoked tokens are forgotten on restart")
		revoker = auth.NewMemoryRevoker()
	}

	tokens := auth.NewTokens(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, cfg.Security.JWT.TTL.Or(auth.DefaultTokenTTL))

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		paths:     paths,
		db:        db,
		bus:       bus,
		svc:       service.New(db, bus, notify.NewRouter(bus, db)),
		resolver:  auth.NewResolver(tokens, revoker, db),
		revoker:   revoker,
		registry:  reg,
	}
	return a, nil
}

// Run starts retention and the HTTP server and blocks until ctx is
// cancelled or the server fails. It always tears down before returning.
func (a *App) Run(ctx context.Context) error {
	stop, err := retention.Start(ctx, a.db, a.eff.Config.Retention, a.paths.Retention)
	if err != nil {
		a.Close(context.Background())
		return err
	}
	a.stopRetention = stop

	a.printBanner()
	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Close(sctx)
	case err := <-errCh:
		a.Close(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close stops the server, then the bus (releasing every stream), then the
// store. Safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.stopRetention != nil {
		a.stopRetention()
	}
	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			firstErr = err
		}
	}
	a.bus.Close()
	if c, ok := a.revoker.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	logger.Info("shutdown_complete")
	return firstErr
}
