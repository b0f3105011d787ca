package usecase

import (
	"context"
	"log/slog"
	"time"

	"CVTailor/internal/ports"
)

// Janitor wires a recurring scheduler to a sweeper that removes compiler
// working directories abandoned by crashed runs.
type Janitor struct {
	driver  ports.Scheduler
	sweeper ports.Sweeper
	maxAge  time.Duration
	logger  *slog.Logger
}

// NewJanitor returns a helper to start/stop the recurring sweep.
func NewJanitor(driver ports.Scheduler, sweeper ports.Sweeper, maxAge time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{driver: driver, sweeper: sweeper, maxAge: maxAge, logger: logger.With("component", "janitor")}
}

// Start registers the sweep with the provided scheduler.
func (j *Janitor) Start(ctx context.Context) error {
	if j.driver == nil || j.sweeper == nil || j.maxAge <= 0 {
		return nil
	}

	job := func(trigger time.Time) {
		removed, err := j.sweeper.Sweep(ctx, j.maxAge)
		if err != nil {
			j.logger.Warn("sweep failed", "trigger", trigger, "error", err)
			return
		}
		j.logger.Debug("sweep finished", "trigger", trigger, "removed", removed)
	}

	return j.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (j *Janitor) Stop(ctx context.Context) error {
	if j.driver == nil {
		return nil
	}

	return j.driver.Stop(ctx)
}
