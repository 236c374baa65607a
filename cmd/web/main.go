// Command web serves the read-only comparison view over the history
// store: the latest price per product and store, per-product history,
// and a small JSON API. It never writes to the store.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dmorales/panaldealz/pkg/config"
	"github.com/dmorales/panaldealz/pkg/logging"
	"github.com/dmorales/panaldealz/pkg/store"
)

func main() {
	bootLogger, err := logging.New("development", "info")
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}

	cfg, err := config.Load(bootLogger)
	if err != nil {
		bootLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		bootLogger.Fatal("failed to create logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(store.Config{Driver: cfg.StoreDriver, DSN: cfg.DatabaseURL}, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      newServer(st, logger).routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server exited gracefully")
}
