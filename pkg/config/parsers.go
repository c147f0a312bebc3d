package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the single config source chosen at startup.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// ParseConfigFlags parses command-line flags from args.
func ParseConfigFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("dealerchat", flag.ContinueOnError)
	addrPtr := fs.String("addr", ":8080", "HTTP listen address")
	dbPtr := fs.String("db", "./.database", "Pebble DB path")
	cfgPtr := fs.String("config", "./config.yaml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}, nil
}

// ParseConfigFile resolves the config path and loads the YAML file. It
// returns the parsed config, whether the file was present, and an error for
// fatal parsing problems.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// ParseConfigEnvs reads DEALERCHAT_* environment variables into a fresh
// Config and reports whether any were present.
func ParseConfigEnvs() (*Config, bool) {
	envCfg := &Config{}
	envUsed := false

	if v := os.Getenv("DEALERCHAT_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		} else {
			envCfg.Server.Address = v
		}
	} else {
		if host := os.Getenv("DEALERCHAT_SERVER_ADDRESS"); host != "" {
			envUsed = true
			envCfg.Server.Address = host
		}
		if port := os.Getenv("DEALERCHAT_SERVER_PORT"); port != "" {
			envUsed = true
			if pi, err := strconv.Atoi(port); err == nil {
				envCfg.Server.Port = pi
			}
		}
	}
	if v := os.Getenv("DEALERCHAT_DB_PATH"); v != "" {
		envUsed = true
		envCfg.Server.DBPath = v
	}
	if c := os.Getenv("DEALERCHAT_TLS_CERT"); c != "" {
		envUsed = true
		envCfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("DEALERCHAT_TLS_KEY"); k != "" {
		envUsed = true
		envCfg.Server.TLS.KeyFile = k
	}

	if v := os.Getenv("DEALERCHAT_CORS_ORIGINS"); v != "" {
		envUsed = true
		envCfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("DEALERCHAT_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			envCfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("DEALERCHAT_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			envCfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("DEALERCHAT_IP_WHITELIST"); v != "" {
		envUsed = true
		envCfg.Security.IPWhitelist = parseList(v)
	}
	if v := os.Getenv("DEALERCHAT_JWT_SECRET"); v != "" {
		envUsed = true
		envCfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("DEALERCHAT_JWT_ISSUER"); v != "" {
		envUsed = true
		envCfg.Security.JWT.Issuer = v
	}
	if v := os.Getenv("DEALERCHAT_REDIS_URL"); v != "" {
		envUsed = true
		envCfg.Security.Redis.URL = v
	}

	if v := os.Getenv("DEALERCHAT_LOG_LEVEL"); v != "" {
		envUsed = true
		envCfg.Logging.Level = v
	}

	if v := os.Getenv("DEALERCHAT_RETENTION_ENABLED"); v != "" {
		envUsed = true
		envCfg.Retention.Enabled = parseBool(v)
	}
	if v := os.Getenv("DEALERCHAT_RETENTION_CRON"); v != "" {
		envUsed = true
		envCfg.Retention.Cron = v
	}
	if v := os.Getenv("DEALERCHAT_RETENTION_PERIOD"); v != "" {
		if d, err := ParseDuration(v); err == nil {
			envUsed = true
			envCfg.Retention.Period = d
		}
	}

	if v := os.Getenv("DEALERCHAT_BUS_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			envCfg.Bus.BufferSize = n
		}
	}
	if v := os.Getenv("DEALERCHAT_BUS_HEARTBEAT"); v != "" {
		if d, err := ParseDuration(v); err == nil {
			envUsed = true
			envCfg.Bus.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("DEALERCHAT_BUS_MAX_FRAME"); v != "" {
		if s, err := ParseSize(v); err == nil {
			envUsed = true
			envCfg.Bus.MaxFrameSize = s
		}
	}
	return envCfg, envUsed
}

// LoadEffectiveConfig decides which single source to use (flags, config
// file, or env). An explicit --config requires the file; otherwise any
// addr/db flag selects flags (backfilled from env, then file); else an
// existing config file wins over env.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config) (EffectiveConfigResult, error) {
	res, err := selectSource(flags, fileCfg, fileExists, envCfg)
	if err != nil {
		return res, err
	}
	// Secrets are accepted from the environment whatever the source.
	if envCfg != nil && res.Config != envCfg {
		if envCfg.Security.JWT.Secret != "" {
			res.Config.Security.JWT.Secret = envCfg.Security.JWT.Secret
		}
		if envCfg.Security.Redis.URL != "" {
			res.Config.Security.Redis.URL = envCfg.Security.Redis.URL
		}
	}
	if res.DBPath == "" {
		res.DBPath = flags.DB
		res.Config.Server.DBPath = flags.DB
	}
	return res, nil
}

func selectSource(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Server.DBPath
		res.Source = "config"
		return res, nil
	}

	if flags.Set["addr"] || flags.Set["db"] {
		base := fileCfg
		if !fileExists {
			base = envCfg
		}
		out := *base
		addr := flags.Addr
		if !flags.Set["addr"] {
			addr = base.Addr()
		}
		dbPath := flags.DB
		if !flags.Set["db"] {
			if p := strings.TrimSpace(envCfg.Server.DBPath); p != "" {
				dbPath = p
			} else if p := strings.TrimSpace(fileCfg.Server.DBPath); p != "" {
				dbPath = p
			}
		}
		if h, p, err := net.SplitHostPort(addr); err == nil {
			out.Server.Address = h
			out.Server.Port, _ = strconv.Atoi(p)
		}
		out.Server.DBPath = dbPath
		res.Config = &out
		res.Addr = addr
		res.DBPath = dbPath
		res.Source = "flags"
		return res, nil
	}

	if fileExists {
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Server.DBPath
		res.Source = "config"
		return res, nil
	}
	res.Config = envCfg
	res.Addr = envCfg.Addr()
	res.DBPath = envCfg.Server.DBPath
	res.Source = "env"
	return res, nil
}
