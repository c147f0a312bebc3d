package app

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"dealerchat/docs"
	"dealerchat/pkg/api/handlers"
	"dealerchat/pkg/auth"
	"dealerchat/pkg/banner"
	"dealerchat/pkg/logger"
	"dealerchat/pkg/telemetry"
	"dealerchat/pkg/utils"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// Handler builds the full HTTP stack: telemetry, then the auth gateway,
// then the router.
func (a *App) Handler() http.Handler {
	cfg := a.eff.Config
	r := mux.NewRouter()
	r.Use(telemetry.TagRoute)
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/docs/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(docs.OpenAPI)
	}).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/docs/openapi.yaml")))

	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.New(a.svc, a.resolver, a.bus, handlers.StreamConfig{
		Heartbeat:      cfg.Bus.HeartbeatInterval.Duration(),
		PongTimeout:    cfg.Bus.PongTimeout.Duration(),
		WriteTimeout:   cfg.Bus.WriteTimeout.Duration(),
		MaxFrameSize:   cfg.Bus.MaxFrameSize.Int64(),
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
	}).Register(v1)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		utils.JSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		utils.JSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	gw := auth.Gateway(auth.GatewayConfig{
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
		RPS:            cfg.Security.RateLimit.RPS,
		Burst:          cfg.Security.RateLimit.Burst,
		IPWhitelist:    cfg.Security.IPWhitelist,
	}, a.resolver)
	return telemetry.Middleware(telemetry.NewMetrics(a.registry))(gw(r))
}

func (a *App) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	if !a.db.Ready() {
		utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "version": ver})
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startHTTP starts serving in a goroutine and returns a channel carrying
// the server's terminal error.
func (a *App) startHTTP() <-chan error {
	a.srv = &http.Server{
		Addr:              a.eff.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		logger.Info("http_listening", "addr", a.eff.Addr, "tls", cert != "")
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}
