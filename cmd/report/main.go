// Command report renders the price analysis report over the history
// store: per-store statistics, best-store ranking, top offers by
// price-per-unit and a brand comparison. The report prints to stdout
// and is saved as reporte.txt.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dmorales/panaldealz/pkg/analysis"
	"github.com/dmorales/panaldealz/pkg/config"
	"github.com/dmorales/panaldealz/pkg/logging"
	"github.com/dmorales/panaldealz/pkg/store"
)

func main() {
	outArg := flag.String("out", "analysis", "directory for reporte.txt (empty: stdout only)")
	flag.Parse()

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	latest, err := st.LatestPrices(ctx)
	if err != nil {
		logger.Fatal("failed to load latest prices", zap.Error(err))
	}
	if len(latest) == 0 {
		logger.Fatal("store is empty; run the scraper first")
	}

	diapers, excluded := analysis.Filter(latest)
	if excluded > 0 {
		logger.Info("excluded non-diaper products", zap.Int("count", excluded))
	}

	report := analysis.Report(time.Now(), diapers)
	fmt.Print(report)

	if *outArg != "" {
		path, err := analysis.Save(*outArg, report)
		if err != nil {
			logger.Fatal("failed to save report", zap.Error(err))
		}
		logger.Info("report saved", zap.String("path", path))
	}
}
