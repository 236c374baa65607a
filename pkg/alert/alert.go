// Package alert detects price drops between runs and dispatches them
// to configured sinks.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dmorales/panaldealz/pkg/store"
)

// Alert is one detected price drop.
type Alert struct {
	Product     string    `json:"product"`
	Store       string    `json:"store"`
	URL         string    `json:"url"`
	OldPrice    int64     `json:"old_price"`
	NewPrice    int64     `json:"new_price"`
	DropPercent float64   `json:"drop_percent"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Sink is an alert destination.
type Sink interface {
	Name() string
	Send(a Alert) error
}

// SinkConfig configures one sink in alerts.yaml.
type SinkConfig struct {
	Type string `yaml:"type"` // console | file | webhook
	Path string `yaml:"path,omitempty"`
	URL  string `yaml:"url,omitempty"`
}

// Dispatcher routes alerts to every configured sink. A sink failure is
// logged, never propagated; alerting must not degrade a run.
type Dispatcher struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewDispatcher(configs []SinkConfig, logger *zap.Logger) (*Dispatcher, error) {
	d := &Dispatcher{logger: logger.Named("alert")}
	for _, cfg := range configs {
		sink, err := newSink(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	return d, nil
}

func (d *Dispatcher) Dispatch(a Alert) {
	for _, sink := range d.sinks {
		if err := sink.Send(a); err != nil {
			d.logger.Warn("alert delivery failed",
				zap.String("sink", sink.Name()), zap.Error(err))
		}
	}
}

func newSink(cfg SinkConfig) (Sink, error) {
	switch cfg.Type {
	case "console":
		return NewConsoleSink(), nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file sink requires a path")
		}
		return NewFileSink(cfg.Path), nil
	case "webhook":
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook sink requires a URL")
		}
		return NewWebhookSink(cfg.URL), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}

// Checker compares the newest observations of a run against each
// product-store's previous observation.
type Checker struct {
	store          store.Store
	dispatcher     *Dispatcher
	minDropPercent float64
	logger         *zap.Logger
}

func NewChecker(st store.Store, d *Dispatcher, minDropPercent float64, logger *zap.Logger) *Checker {
	return &Checker{
		store:          st,
		dispatcher:     d,
		minDropPercent: minDropPercent,
		logger:         logger.Named("alert"),
	}
}

// Check inspects every product-store pair whose latest observation
// belongs to this run and dispatches an alert when its price dropped by
// at least the configured percentage since the previous observation.
// Returns the number of alerts dispatched.
func (c *Checker) Check(ctx context.Context, runTime time.Time) (int, error) {
	day := store.Day(runTime)

	latest, err := c.store.LatestPrices(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading latest prices: %w", err)
	}

	dispatched := 0
	for _, lp := range latest {
		if !lp.ObservedAt.Equal(day) {
			continue
		}
		prev, err := c.store.PreviousObservation(ctx, lp.Product.ID, lp.StoreID, runTime)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return dispatched, fmt.Errorf("loading previous observation: %w", err)
		}
		if prev.Price <= 0 || lp.Price >= prev.Price {
			continue
		}

		drop := float64(prev.Price-lp.Price) / float64(prev.Price) * 100
		if drop < c.minDropPercent {
			continue
		}
		c.dispatcher.Dispatch(Alert{
			Product:     lp.Product.Name,
			Store:       lp.StoreName,
			URL:         lp.Product.URL,
			OldPrice:    prev.Price,
			NewPrice:    lp.Price,
			DropPercent: drop,
			ObservedAt:  lp.ObservedAt,
		})
		dispatched++
	}

	if dispatched > 0 {
		c.logger.Info("price drop alerts dispatched", zap.Int("count", dispatched))
	}
	return dispatched, nil
}
