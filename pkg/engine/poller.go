package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/journey/pkg/lock"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/otelhelper"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
)

const pollLockName = "journey:poller"

// CycleStats summarizes one polling cycle.
type CycleStats struct {
	Processed int
	Errors    int
	Skipped   bool // another process held the lock
	Exhausted bool // stopped at the budget deadline
}

// Poller drives the engine from cron: due executions, stale call timeouts
// and reschedule flushes each run on their own interval.
type Poller struct {
	engine *Engine
	locker lock.Locker
	logger *slog.Logger
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	mutex  sync.Mutex
}

func NewPoller(engine *Engine, locker lock.Locker, logger *slog.Logger) *Poller {
	if locker == nil {
		locker = lock.NewLocal()
	}

	return &Poller{
		engine: engine,
		locker: locker,
		logger: logger.With("module", "poller"),
	}
}

func (p *Poller) Start(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	opts := p.engine.options
	p.logger.Info("Starting poller",
		"poll_interval", opts.PollInterval,
		"batch_size", opts.BatchSize,
		"cycle_budget", opts.CycleBudget,
	)

	p.ctx, p.cancel = context.WithCancel(ctx)

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(p.logger.Handler(), slog.LevelError))

	p.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	jobs := []struct {
		name     string
		interval time.Duration
		run      func(ctx context.Context)
	}{
		{"cycle", opts.PollInterval, p.runCycle},
		{"stale_calls", opts.StaleSweepInterval, p.sweep},
		{"reschedule_flush", opts.FlushInterval, p.flushJob},
	}

	for _, job := range jobs {
		if job.interval <= 0 {
			return fmt.Errorf("poller job %s needs a positive interval", job.name)
		}

		run := job.run

		entryID, err := p.cron.AddFunc("@every "+job.interval.String(), func() {
			run(p.ctx)
		})
		if err != nil {
			return fmt.Errorf("failed to add poller job %s: %w", job.name, err)
		}

		p.logger.Debug("Added poller job", "job", job.name, "interval", job.interval, "entry_id", entryID)
	}

	p.cron.Start()
	p.logger.Info("Poller started")

	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.Info("Stopping poller")

	if p.cancel != nil {
		p.cancel()
	}

	if p.cron == nil {
		return nil
	}

	done := p.cron.Stop()

	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	_, err := p.Flush(context.WithoutCancel(ctx))
	if err != nil {
		p.logger.Error("Failed to flush reschedule queue on stop", "error", err)
	}

	p.logger.Info("Stopped poller")

	return nil
}

func (p *Poller) runCycle(ctx context.Context) {
	stats, err := p.Cycle(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "poll cycle failed", "error", err)

		return
	}

	p.logger.DebugContext(ctx, "poll cycle done",
		"processed", stats.Processed,
		"errors", stats.Errors,
		"skipped", stats.Skipped,
		"exhausted", stats.Exhausted,
	)
}

func (p *Poller) sweep(ctx context.Context) {
	_, err := p.engine.SweepStaleCalls(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "stale call sweep failed", "error", err)
	}
}

func (p *Poller) flushJob(ctx context.Context) {
	_, err := p.Flush(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "reschedule flush failed", "error", err)
	}
}

// Flush writes queued reschedules and returns how many executions moved.
func (p *Poller) Flush(ctx context.Context) (int, error) {
	return p.engine.queue.Flush(ctx, p.engine.store.Executions())
}

// priorityClasses are drained in order: delays first, since they only
// release successors and are cheap.
var priorityClasses = []persistence.DueQuery{
	{Types: []models.NodeType{models.NodeTypeTimeDelay}},
	{ExcludeTypes: []models.NodeType{models.NodeTypeTimeDelay}},
}

// Cycle runs due executions until none are left or the cycle budget is spent.
func (p *Poller) Cycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	opts := p.engine.options

	release, ok, err := p.locker.TryLock(ctx, pollLockName, opts.CycleBudget+opts.PollInterval)
	if err != nil {
		return stats, fmt.Errorf("failed to take poller lock: %w", err)
	}

	if !ok {
		stats.Skipped = true

		return stats, nil
	}

	defer func() {
		err := release(context.WithoutCancel(ctx))
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to release poller lock", "error", err)
		}
	}()

	ctx, span := otelhelper.StartSpan(ctx, p.engine.tracer, "journey.poller.cycle")
	defer span.End()

	deadline := time.Now().Add(opts.CycleBudget)
	seen := make(map[string]bool)

	for _, class := range priorityClasses {
		exhausted := p.drain(ctx, class, deadline, seen, &stats)
		if exhausted {
			stats.Exhausted = true

			break
		}
	}

	span.SetAttributes(
		attribute.Int("journey.poller.processed", stats.Processed),
		attribute.Int("journey.poller.errors", stats.Errors),
	)

	return stats, nil
}

// drain runs one priority class, paging on (scheduledAt, id) so rows left
// PENDING by a reschedule do not hide the rest of the backlog. It reports
// whether the deadline was hit.
func (p *Poller) drain(ctx context.Context, class persistence.DueQuery, deadline time.Time, seen map[string]bool, stats *CycleStats) bool {
	batchSize := p.engine.options.BatchSize

	q := class
	q.Limit = batchSize

	for {
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return true
		}

		q.Now = p.engine.now()

		batch, err := p.engine.store.Executions().Due(ctx, q)
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to load due executions", "error", err)
			stats.Errors++

			return false
		}

		for _, exec := range batch {
			if seen[exec.ID] {
				continue
			}

			seen[exec.ID] = true

			if _, queued := p.engine.queue.Pending(exec.ID); queued {
				continue
			}

			if !time.Now().Before(deadline) {
				return true
			}

			err := p.engine.run(ctx, exec, 0)
			if err != nil {
				p.logger.ErrorContext(ctx, "execution failed",
					"execution_id", exec.ID,
					"node_id", exec.NodeID,
					"error", err,
				)
				stats.Errors++

				continue
			}

			stats.Processed++
		}

		if batchSize <= 0 || len(batch) < batchSize {
			return false
		}

		last := batch[len(batch)-1]
		q.After = &persistence.DueCursor{ScheduledAt: last.ScheduledAt, ID: last.ID}
	}
}
