package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/snapsort/internal/intake"
	"github.com/zombor/snapsort/internal/scanning"
	"github.com/zombor/snapsort/internal/session"
	"github.com/zombor/snapsort/internal/web"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		slog.Error("Failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, fs, err := parseConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, ff.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if cfg.showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(cfg); err != nil {
		slog.Error("snapsort stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config) error {
	logger := slog.Default()

	slog.Info("Initializing database...", "driver", cfg.dbDriver, "path", cfg.dbPath)
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer store.Close()

	slog.Info("Initializing extractor...", "provider", cfg.provider)
	extractor, err := newExtractor(cfg, logger)
	if err != nil {
		if errors.Is(err, scanning.ErrMissingAPIKey) {
			return fmt.Errorf("%w (set the provider key flag or its environment variable)", err)
		}
		return fmt.Errorf("initializing extractor: %w", err)
	}
	defer extractor.Close()

	storage := intake.NewLocalStorage(cfg.uploadsPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := session.New(storage, extractor, store, logger)
	controllerDone := make(chan error, 1)
	go func() {
		controllerDone <- controller.Run(ctx)
	}()

	server := web.NewServer(controller, store, storage, web.BasicAuth{
		Username: cfg.authUser,
		Password: cfg.authPass,
	})

	slog.Info("Server started", "address", "http://"+cfg.addr, "version", version)
	if cfg.authUser != "" || cfg.authPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.authUser)
	}

	err = server.Start(ctx, cfg.addr)
	stop()
	if runErr := <-controllerDone; runErr != nil && err == nil {
		err = runErr
	}
	if err != nil {
		return fmt.Errorf("serving: %w", err)
	}

	slog.Info("Shutting down...")
	return nil
}
