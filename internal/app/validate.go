package app

import (
	"fmt"
	"os"

	"github.com/adhocore/gronx"

	"dealerchat/pkg/config"
)

// validateConfig performs fail-fast checks on the effective configuration
// before any long-running component starts.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.Config == nil {
		return fmt.Errorf("no configuration resolved")
	}
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, DEALERCHAT_DB_PATH env, or server.db_path in config")
	}

	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "") != (key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if len(eff.Config.Security.JWT.Secret) < 16 {
		return fmt.Errorf("security.jwt.secret must be at least 16 bytes (DEALERCHAT_JWT_SECRET)")
	}
	if ret := eff.Config.Retention; ret.Enabled && ret.Cron != "" && !gronx.IsValid(ret.Cron) {
		return fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}
	if eff.Config.Bus.BufferSize < 0 {
		return fmt.Errorf("bus.buffer_size must not be negative")
	}
	return nil
}
