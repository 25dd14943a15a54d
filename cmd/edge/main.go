package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	edgecfg "github.com/strayhaven/edge/config"
	"github.com/strayhaven/edge/internal/config"
	"github.com/strayhaven/edge/internal/edge"
	"github.com/strayhaven/edge/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	envFile := flag.String("env-file", ".env", "Dotenv file loaded before the environment is read")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("strayhaven edge %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.NewLoader().Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		for _, w := range config.Warnings(cfg) {
			fmt.Println("warning:", w)
		}
		os.Exit(0)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	os.Exit(run(cfg, logger, closer))
}

func run(cfg *edgecfg.Config, logger *zap.Logger, closer io.Closer) int {
	defer closer.Close()
	defer logger.Sync()

	logging.Info("Starting strayhaven edge", startupFields(cfg)...)

	server, err := edge.NewServer(cfg, logger)
	if err != nil {
		logging.Error("Failed to create edge", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logging.Error("Server error", zap.Error(err))
		return 1
	}
	return 0
}

func startupFields(cfg *edgecfg.Config) []zap.Field {
	return []zap.Field{
		zap.String("version", version),
		zap.String("legacy_origin", edgecfg.RedactURL(cfg.Legacy.Origin)),
		zap.Int("native_routes", len(cfg.Native.Routes)),
	}
}
