package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/lending-service/cmd/api/config"
	"github.com/lending-service/cmd/api/database"
	lendinghttp "github.com/lending-service/cmd/api/http"
	"github.com/lending-service/cmd/api/inmemory"
	"github.com/lending-service/cmd/api/lending"
	"github.com/lending-service/cmd/api/notifications"
	"go.uber.org/zap"
)

func main() {
	err := run()
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "release" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run() error {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg.Mode)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	policy, err := cfg.Policy()
	if err != nil {
		return fmt.Errorf("reading lending policy: %w", err)
	}

	store, err := inmemory.NewInMemoryStore()
	if err != nil {
		return fmt.Errorf("creating in-memory store: %w", err)
	}

	//connect to db and restore the last saved state:
	var snapshots *database.Store
	if cfg.Database.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		dbObject, err := database.ConnectDb(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connecting with db: %w", err)
		}
		defer dbObject.Close()

		snapshots = database.NewStore(dbObject, logger.Named("database"))
		err = database.MigrationUp(snapshots, cfg.Database.MigrationsPath)
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrating: %w", err)
		}

		snap, err := snapshots.LoadSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("loading snapshot: %w", err)
		}
		if err := store.Restore(ctx, snap); err != nil {
			return fmt.Errorf("restoring snapshot: %w", err)
		}
		logger.Info("lending state restored",
			zap.Int("items", len(snap.Items)),
			zap.Int("borrowers", len(snap.Borrowers)),
			zap.Int("loans", len(snap.Loans)))
	}

	opts := []lending.Option{
		lending.WithLogger(logger.Named("lending")),
		lending.WithPolicy(policy),
	}
	ledger := lending.NewLedger(store, opts...)
	catalog := lending.NewCatalog(store, ledger, opts...)
	registry := lending.NewRegistry(store, ledger, opts...)
	reports := lending.NewReports(catalog, registry, ledger)

	ntfy := notifications.NewNtfy(cfg.Notifications.Enabled, cfg.Notifications.Timeout,
		cfg.Notifications.BaseURL, &http.Client{}, logger.Named("notifications"))

	handler := lendinghttp.NewLendingHandler(lendinghttp.Services{
		Catalog:  catalog,
		Registry: registry,
		Ledger:   ledger,
		Reports:  reports,
		Notifier: ntfy,
	}, logger.Named("http"), cfg.HTTP.RequestTimeout)

	//create and init http server:
	server := lendinghttp.NewServer(lendinghttp.ServerConfig{Port: cfg.HTTP.Port}, handler)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("unexpected http server error: %w", err)
		}
		close(serveErr)
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sc:
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	ctx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	handler.Wait()

	if snapshots != nil {
		snap, err := store.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("taking snapshot: %w", err)
		}
		if err := snapshots.SaveSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
		logger.Info("lending state saved", zap.Int("loans", len(snap.Loans)))
	}
	logger.Info("graceful shutdown complete")
	return nil
}
