package banner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"

	"dealerchat/pkg/config"
)

const banner = `
 ____             _            ____ _           _
|  _ \  ___  __ _| | ___ _ __ / ___| |__   __ _| |_
| | | |/ _ \/ _' | |/ _ \ '__| |   | '_ \ / _' | __|
| |_| |  __/ (_| | |  __/ |  | |___| | | | (_| | |_
|____/ \___|\__,_|_|\___|_|   \____|_| |_|\__,_|\__|
`

// PrintWithEff prints the startup banner to stdout.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	Fprint(os.Stdout, eff, version)
}

// Fprint writes the banner, the effective settings and a production
// readiness checklist to w.
func Fprint(w io.Writer, eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	addr := eff.Addr
	if addr == "" {
		addr = cfg.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	fmt.Fprintf(w, "Listen:   %s\n", addr)
	fmt.Fprintf(w, "DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Fprintf(w, "Version:  %s\n", version)
	}
	fmt.Fprintf(w, "Config:   %s\n", src)

	fmt.Fprintln(w, "\n== Endpoints ==================================================")
	fmt.Fprintln(w, "POST /v1/chats/car | /v1/chats/support       open a chat")
	fmt.Fprintln(w, "POST /v1/chats/{id}/messages                 send a message")
	fmt.Fprintln(w, "POST /v1/leads                               create a lead")
	fmt.Fprintln(w, "GET  /v1/subscribe/{messages,leads,notifications,promotions}  websocket streams")
	fmt.Fprintln(w, "GET  /docs/                                  API reference")

	fmt.Fprintln(w, "\n== Production? =================================================")
	if cfg.Security.JWT.Secret != "" {
		fmt.Fprintln(w, "- JWT secret: OK")
	} else {
		fmt.Fprintln(w, "- JWT secret: MISSING (set security.jwt.secret or DEALERCHAT_JWT_SECRET)")
	}
	if cfg.Security.Redis.URL != "" {
		fmt.Fprintln(w, "- Token revocation: redis")
	} else {
		fmt.Fprintln(w, "- Token revocation: in-memory (lost on restart)")
	}
	if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
		fmt.Fprintln(w, "- TLS: configured")
	} else {
		fmt.Fprintln(w, "- TLS: unconfigured")
	}
	if cfg.Retention.Enabled {
		fmt.Fprintf(w, "- Retention: enabled (cron=%q, purge after %s)\n", cfg.Retention.Cron, period(cfg.Retention.Period))
	} else {
		fmt.Fprintln(w, "- Retention: disabled")
	}
	if cfg.Bus.MaxFrameSize > 0 {
		fmt.Fprintf(w, "- Stream frame limit: %s\n", humanize.IBytes(uint64(cfg.Bus.MaxFrameSize)))
	}

	fmt.Fprintln(w, "\n== Logs: =================================================")
}

func period(d config.Duration) string {
	if d <= 0 {
		return "default"
	}
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now.Add(-d.Duration()), now, "", ""))
}
