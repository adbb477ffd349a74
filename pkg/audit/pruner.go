package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/wagerline/pkg/observability"
)

// DefaultPruneSchedule runs retention pruning daily at 03:15 UTC
const DefaultPruneSchedule = "15 3 * * *"

// EventPruner deletes events older than a cutoff
type EventPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner enforces audit retention on a cron schedule
type Pruner struct {
	store     EventPruner
	retention time.Duration
	logger    *observability.Logger
	cron      *cron.Cron
	now       func() time.Time
}

// NewPruner creates a pruner keeping events for retention
func NewPruner(store EventPruner, retention time.Duration, logger *observability.Logger) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		logger:    logger,
		cron:      cron.New(cron.WithLocation(time.UTC)),
		now:       time.Now,
	}
}

// Prune removes events older than the retention window once
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)
	removed, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	p.logger.WithFields(map[string]interface{}{
		"removed": removed,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("Pruned audit events")
	return removed, nil
}

// Start schedules Prune with the given cron expression
func (p *Pruner) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}

	_, err := p.cron.AddFunc(schedule, func() {
		defer observability.RecoverPanic(p.logger, "audit pruner")

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if _, err := p.Prune(ctx); err != nil {
			p.logger.WithError(err).Error("Audit retention pruning failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	p.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running prune to finish
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}
