package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/router-for-me/marketplace-core/internal/app"
	"github.com/router-for-me/marketplace-core/internal/config"
	"github.com/router-for-me/marketplace-core/internal/logging"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

// run parses flags, loads config, and dispatches to serve, migrate or sweep.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("marketplace", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 0, "server port, overrides config and PORT")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	command := "serve"
	if rest := fs.Args(); len(rest) > 0 {
		command = strings.ToLower(strings.TrimSpace(rest[0]))
	}

	if errEnv := godotenv.Load(); errEnv != nil && !errors.Is(errEnv, os.ErrNotExist) {
		log.WithError(errEnv).Warn("load .env")
	}

	cfg, err := config.Load(config.ResolveConfigPath(*cfgPath))
	if err != nil {
		return err
	}
	if *port != 0 {
		if errValidate := validatePort(*port); errValidate != nil {
			return errValidate
		}
		cfg.Port = *port
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		return errValidate
	}
	logging.Setup(cfg)

	switch command {
	case "serve":
		return app.RunServer(ctx, cfg)
	case "migrate":
		if errMigrate := app.Migrate(ctx, cfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	case "sweep":
		return app.Sweep(ctx, cfg)
	default:
		return fmt.Errorf("unknown command %q (want serve, migrate or sweep)", command)
	}
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
