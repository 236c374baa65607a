// Command scraper runs the whole pipeline once: extract every
// configured storefront, normalize, consolidate, persist to the history
// store, export the consolidated snapshot and check price-drop alerts.
// Scheduling is external (cron or any orchestrator); the exit code is
// non-zero only when every extractor failed and nothing was persisted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dmorales/panaldealz/pkg/alert"
	"github.com/dmorales/panaldealz/pkg/config"
	"github.com/dmorales/panaldealz/pkg/logging"
	"github.com/dmorales/panaldealz/pkg/run"
	"github.com/dmorales/panaldealz/pkg/scraper"
	"github.com/dmorales/panaldealz/pkg/store"
	"github.com/dmorales/panaldealz/pkg/web"
)

func main() {
	onlyArg := flag.String("only", "", "comma-separated extractor names to run (default: all registered)")
	driverArg := flag.String("store-driver", "", "override store driver (postgres|memory)")
	snapshotArg := flag.String("snapshot-dir", "", "override snapshot output directory")
	maxPagesArg := flag.Int("max-pages", 0, "override per-extractor page limit")
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

	if *driverArg != "" {
		cfg.StoreDriver = *driverArg
	}
	if *snapshotArg != "" {
		cfg.SnapshotDir = *snapshotArg
	}
	if *maxPagesArg > 0 {
		cfg.MaxPages = *maxPagesArg
	}

	st, err := store.Open(store.Config{Driver: cfg.StoreDriver, DSN: cfg.DatabaseURL}, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	names := scraper.Names()
	if *onlyArg != "" {
		names = strings.Split(*onlyArg, ",")
	}
	scraperCfg := scraper.Config{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
		Delay:     cfg.RequestDelay,
		MaxPages:  cfg.MaxPages,
	}
	var extractors []scraper.Extractor
	for _, name := range names {
		ex, err := scraper.New(strings.TrimSpace(name), scraperCfg, logger)
		if err != nil {
			logger.Fatal("failed to build extractor", zap.Error(err))
		}
		extractors = append(extractors, ex)
	}

	dispatcher, err := alert.NewDispatcher(cfg.Alerts.Sinks, logger)
	if err != nil {
		logger.Fatal("failed to build alert sinks", zap.Error(err))
	}

	coordinator := run.New(run.Config{
		Extractors:  extractors,
		Store:       st,
		Checker:     alert.NewChecker(st, dispatcher, cfg.Alerts.MinDropPercent, logger),
		SnapshotDir: cfg.SnapshotDir,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := coordinator.RunOnce(ctx, time.Now())
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}

	printSummary(summary)
	os.Exit(summary.ExitCode())
}

// printSummary is the operator-facing run report, kept on stdout so
// cron mail and log collectors capture it.
func printSummary(s *run.Summary) {
	fmt.Println("==================================================")
	fmt.Println("RESUMEN DE LA CORRIDA")
	fmt.Println("==================================================")
	for _, r := range s.Extractors {
		status := "ok"
		if r.Failed {
			status = "FAILED"
		}
		fmt.Printf("  %-12s %-7s fetched=%d normalized=%d dropped=%d\n",
			r.Name, status, r.Fetched, r.Normalized, r.Dropped)
	}
	fmt.Printf("\n  Observaciones: %d nuevas, %d ya existentes, %d con error\n",
		s.Persist.Inserted, s.Persist.Skipped, s.Persist.Failed)
	if s.SnapshotPath != "" {
		fmt.Printf("  Snapshot: %s\n", s.SnapshotPath)
	}
	if s.Alerts > 0 {
		fmt.Printf("  Alertas de baja de precio: %d\n", s.Alerts)
	}

	top := 0
	for _, r := range s.Records {
		if r.PricePerUnit == nil {
			continue
		}
		if top == 0 {
			fmt.Println("\n  Top 5 mas baratos por unidad:")
		}
		top++
		fmt.Printf("    %d. %s/u - %s (%s) - %s\n",
			top, web.FormatCLP(int64(*r.PricePerUnit)), r.Name, r.StoreName, web.FormatCLP(r.Price))
		if top == 5 {
			break
		}
	}
}
