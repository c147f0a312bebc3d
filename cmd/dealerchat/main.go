package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"dealerchat/internal/app"
	"dealerchat/pkg/config"
	"dealerchat/pkg/logger"
	"dealerchat/pkg/shutdown"
)

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")
	logger.Init()

	flags, err := config.ParseConfigFlags(os.Args[1:])
	if err != nil {
		shutdown.Abort("failed to parse flags", err, "", 0)
	}

	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		shutdown.Abort("failed to load config file", err, flags.DB)
	}
	envCfg, _ := config.ParseConfigEnvs()

	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg)
	if err != nil {
		shutdown.Abort("failed to build effective config", err, flags.DB)
	}

	// re-init now that the configured level is known
	logger.InitWithLevel(eff.Config.Logging.Level)
	logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Addr, "db_path", eff.DBPath)

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	a, err := app.New(ctx, eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("failed to initialize app", err, eff.DBPath)
	}
	if err := a.Run(ctx); err != nil {
		shutdown.Abort("app run failed", err, eff.DBPath)
	}
}
