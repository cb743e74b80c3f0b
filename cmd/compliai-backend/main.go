// ABOUTME: Entry point for the in-memory CompliAI reference backend
// ABOUTME: Serves the auth and chat API locally for development and demos

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/compliai/internal/backend"
	"github.com/2389/compliai/internal/config"
	"github.com/2389/compliai/internal/logging"
)

// version is set at build time.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "backend config file (YAML or TOML)")
	listen := flag.String("listen", "", "listen address, overrides listen")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg := config.DefaultBackend()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadBackend(*configPath); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	color.New(color.FgCyan, color.Bold).Print("compliai-backend")
	gray.Printf(" %s\n", version)
	green.Print("    ▶ ")
	fmt.Printf("Listen:    %s\n", cfg.Listen)
	if cfg.DemoUser.Email != "" {
		green.Print("    ▶ ")
		fmt.Printf("Demo user: %s (%s)\n", cfg.DemoUser.Email, cfg.DemoUser.Role)
	}
	fmt.Println()

	srv, err := backend.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return srv.Run(ctx)
}
