// ABOUTME: Entry point for the compliai terminal client
// ABOUTME: Loads .env and config, wires the app and runs the interactive prompt

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
	"golang.org/x/term"

	"github.com/2389/compliai/internal/app"
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
	configPath := flag.String("config", "", "config file (default $COMPLIAI_CONFIG or ~/.config/compliai/client.yaml)")
	serverURL := flag.String("server", "", "backend URL, overrides server.url")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	path := *configPath
	if path == "" {
		path = config.ResolvePath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := logging.New(cfg.Logging, os.Stderr)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	color.New(color.FgCyan, color.Bold).Print("CompliAI")
	color.New(color.FgHiBlack).Printf(" %s  %s\n", version, cfg.Server.URL)

	r := newREPL(a, os.Stdin, os.Stdout)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		r.readPassword = func() (string, error) {
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(r.out)
			return string(b), err
		}
	}
	a.Sessions().SetNavigator(r)

	a.Start(ctx)
	return r.Run(ctx)
}
