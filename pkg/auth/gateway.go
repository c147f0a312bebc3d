package auth

import (
	"net"
	"net/http"
	"strings"

	"dealerchat/pkg/logger"
	"dealerchat/pkg/telemetry"
	"dealerchat/pkg/utils"
)

// GatewayConfig drives CORS, IP filtering and rate limiting.
type GatewayConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
}

// Gateway authenticates every request and attaches the caller identity to
// its context. Requests without a credential pass through anonymously and
// are rejected by the operations that need an identity; a credential that
// does not resolve is rejected here.
func Gateway(cfg GatewayConfig, resolver *Resolver) func(http.Handler) http.Handler {
	limiters := &limiterPool{rps: cfg.RPS, burst: cfg.Burst}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.LogRequest(r)

			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if len(cfg.IPWhitelist) > 0 {
				ip := clientIP(r)
				if !ipWhitelisted(ip, cfg.IPWhitelist) {
					utils.JSONError(w, http.StatusForbidden, "forbidden")
					logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", r.URL.Path)
					return
				}
			}

			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cred := credential(r)
			var id *Identity
			if cred != "" {
				end := telemetry.StartSpan(r.Context(), "auth.resolve")
				id = resolver.Resolve(r.Context(), cred)
				end()
				if id == nil {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"invalid or expired token","code":"UNAUTHENTICATED"}`))
					logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
					return
				}
			}

			key := clientIP(r)
			if id != nil {
				key = "user:" + id.ID
			}
			if !limiters.Allow(key) {
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "key", key, "path", r.URL.Path)
				return
			}

			if id != nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// credential reads the bearer token from the Authorization header, falling
// back to the access_token query parameter used by websocket clients.
func credential(r *http.Request) string {
	if t := BearerFromHeader(r.Header.Get("Authorization")); t != "" {
		return t
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func isPublicPath(p string) bool {
	switch p {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return strings.HasPrefix(p, "/docs/")
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}
