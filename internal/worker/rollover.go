// Package worker runs the periodic appointment rollover.
package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parchi-health/parchi/internal/logger"
	"github.com/parchi-health/parchi/internal/metrics"
)

// Roller moves appointments whose day has passed out of the live states.
type Roller interface {
	MarkPastAppointments(ctx context.Context) (int, error)
}

type Rollover struct {
	roller   Roller
	interval time.Duration
	timeout  time.Duration
	log      *logrus.Entry
	metrics  *metrics.Collector
}

func NewRollover(roller Roller, interval time.Duration, log *logger.Logger, m *metrics.Collector) *Rollover {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Rollover{
		roller:   roller,
		interval: interval,
		timeout:  20 * time.Second,
		log:      log.WithComponent("rollover"),
		metrics:  m,
	}
}

// Run executes once immediately and then on every tick until ctx is done.
func (w *Rollover) Run(ctx context.Context) {
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("shutdown signal received, stopping rollover worker")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single rollover pass and reports how many appointments
// moved.
func (w *Rollover) RunOnce(ctx context.Context) (int, error) {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	n, err := w.roller.MarkPastAppointments(runCtx)
	if w.metrics != nil {
		w.metrics.RecordRollover(n, err)
	}
	if err != nil {
		w.log.WithError(err).Error("rollover run failed")
		return 0, err
	}

	w.log.WithFields(logrus.Fields{
		"moved":       n,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("rollover run complete")
	return n, nil
}
