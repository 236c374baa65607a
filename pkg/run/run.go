// Package run drives one scrape-to-storage run end to end: extract all
// storefronts in parallel, normalize, consolidate, persist, check for
// price drops and summarize. One extractor's failure never aborts the
// run; a run always reaches StatusDone.
package run

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dmorales/panaldealz/pkg/alert"
	"github.com/dmorales/panaldealz/pkg/consolidate"
	"github.com/dmorales/panaldealz/pkg/export"
	"github.com/dmorales/panaldealz/pkg/normalize"
	"github.com/dmorales/panaldealz/pkg/scraper"
	"github.com/dmorales/panaldealz/pkg/store"
)

// Status is the coordinator's run state.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusExtracting    Status = "extracting"
	StatusConsolidating Status = "consolidating"
	StatusPersisting    Status = "persisting"
	StatusDone          Status = "done"
)

// Transition table: from -> allowed tos.
var validTransitions = map[Status][]Status{
	StatusIdle:          {StatusExtracting},
	StatusExtracting:    {StatusConsolidating},
	StatusConsolidating: {StatusPersisting},
	StatusPersisting:    {StatusDone},
	StatusDone:          {StatusExtracting},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ExtractorReport counts what one extractor contributed to a run.
type ExtractorReport struct {
	Name       string
	Fetched    int
	Normalized int
	Dropped    int
	Failed     bool
	Err        error
}

// Summary is the outcome of one run.
type Summary struct {
	Started      time.Time
	Extractors   []ExtractorReport
	Records      []consolidate.Record
	Persist      store.PersistSummary
	Alerts       int
	SnapshotPath string
}

// FailedExtractors counts extractors that produced nothing usable.
func (s *Summary) FailedExtractors() int {
	n := 0
	for _, r := range s.Extractors {
		if r.Failed {
			n++
		}
	}
	return n
}

// ExitCode implements the invocation contract: non-zero if and only if
// every extractor failed and nothing was persisted.
func (s *Summary) ExitCode() int {
	if len(s.Extractors) > 0 &&
		s.FailedExtractors() == len(s.Extractors) &&
		s.Persist.Inserted == 0 {
		return 1
	}
	return 0
}

// Config wires a Coordinator. Checker and SnapshotDir are optional.
type Config struct {
	Extractors  []scraper.Extractor
	Store       store.Store
	Checker     *alert.Checker
	SnapshotDir string
}

// Coordinator owns the run state machine. Extractors share no mutable
// state, so they run as parallel tasks; everything after extraction is
// sequential.
type Coordinator struct {
	cfg        Config
	normalizer *normalize.Normalizer
	logger     *zap.Logger

	mu     sync.Mutex
	status Status
}

func New(cfg Config, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		normalizer: normalize.New(logger),
		logger:     logger.Named("run"),
		status:     StatusIdle,
	}
}

// Status returns the coordinator's current run state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Coordinator) setStatus(next Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canTransition(c.status, next) {
		c.logger.Error("invalid status transition",
			zap.String("from", string(c.status)), zap.String("to", string(next)))
	}
	c.status = next
}

// RunOnce executes one full run. It is the single deterministic entry
// point; scheduling lives outside this module.
func (c *Coordinator) RunOnce(ctx context.Context, now time.Time) (*Summary, error) {
	summary := &Summary{Started: now}

	c.setStatus(StatusExtracting)
	reports := make([]ExtractorReport, len(c.cfg.Extractors))
	results := make([][]normalize.Canonical, len(c.cfg.Extractors))

	g, gctx := errgroup.WithContext(ctx)
	for i, ex := range c.cfg.Extractors {
		i, ex := i, ex
		g.Go(func() error {
			rep := ExtractorReport{Name: ex.Name()}
			raw, err := ex.Extract(gctx)
			rep.Fetched = len(raw)
			if err != nil {
				rep.Failed = true
				rep.Err = err
				c.logger.Error("extractor failed",
					zap.String("extractor", ex.Name()), zap.Error(err))
			}
			for _, r := range raw {
				cn, err := c.normalizer.Normalize(r)
				if err != nil {
					rep.Dropped++
					continue
				}
				results[i] = append(results[i], *cn)
				rep.Normalized++
			}
			reports[i] = rep
			return nil
		})
	}
	// extractor errors are recorded per report, never returned
	_ = g.Wait()
	summary.Extractors = reports

	c.setStatus(StatusConsolidating)
	var all []normalize.Canonical
	for _, rs := range results {
		all = append(all, rs...)
	}
	summary.Records = consolidate.Consolidate(all)

	c.setStatus(StatusPersisting)
	if len(all) > 0 {
		ps, err := c.cfg.Store.Persist(ctx, all, now)
		summary.Persist = ps
		if err != nil {
			c.logger.Error("persist failed", zap.Error(err))
		}

		if c.cfg.SnapshotDir != "" {
			path, err := export.WriteSnapshot(c.cfg.SnapshotDir, now, summary.Records)
			if err != nil {
				c.logger.Error("snapshot export failed", zap.Error(err))
			} else {
				summary.SnapshotPath = path
			}
		}

		// a run that inserted nothing repeats a day already checked;
		// re-checking would re-dispatch the same alerts
		if c.cfg.Checker != nil && summary.Persist.Inserted > 0 {
			n, err := c.cfg.Checker.Check(ctx, now)
			if err != nil {
				c.logger.Error("alert check failed", zap.Error(err))
			}
			summary.Alerts = n
		}
	}

	c.setStatus(StatusDone)
	c.logger.Info("run finished",
		zap.Int("records", len(summary.Records)),
		zap.Int("persisted", summary.Persist.Inserted),
		zap.Int("skipped", summary.Persist.Skipped),
		zap.Int("failed_records", summary.Persist.Failed),
		zap.Int("failed_extractors", summary.FailedExtractors()))
	return summary, nil
}
