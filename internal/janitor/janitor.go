// Package janitor evicts expired entries from the media cache on a schedule.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/memohai/wagate/internal/storage"
)

const DefaultSchedule = "@every 1h"

// Options configures the janitor. MaxAge <= 0 disables eviction.
type Options struct {
	MaxAge   time.Duration
	Schedule string
}

// Janitor prunes every cache namespace of entries older than MaxAge.
type Janitor struct {
	store    storage.Store
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	parser   cron.Parser
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

// New creates a janitor. The schedule is validated here so a bad pattern
// fails startup.
func New(log *slog.Logger, store storage.Store, opts Options) (*Janitor, error) {
	if log == nil {
		log = slog.Default()
	}
	schedule := strings.TrimSpace(opts.Schedule)
	if schedule == "" {
		schedule = DefaultSchedule
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return &Janitor{
		store:    store,
		maxAge:   opts.MaxAge,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(parser)),
		parser:   parser,
		logger:   log.With(slog.String("service", "janitor")),
		now:      time.Now,
	}, nil
}

// Enabled reports whether eviction is configured.
func (j *Janitor) Enabled() bool {
	return j.maxAge > 0
}

// Start schedules the prune job. It is a no-op when eviction is disabled.
func (j *Janitor) Start() error {
	if !j.Enabled() {
		j.logger.Info("cache eviction disabled")
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}
	if _, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.logger.Error("cache prune failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("schedule prune: %w", err)
	}
	j.cron.Start()
	j.running = true
	j.logger.Info("cache eviction scheduled", slog.String("schedule", j.schedule), slog.Duration("max_age", j.maxAge))
	return nil
}

// Stop waits for a running prune to finish.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	running := j.running
	j.running = false
	j.mu.Unlock()
	if !running {
		return nil
	}
	select {
	case <-j.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce prunes every namespace once and returns the totals.
func (j *Janitor) RunOnce(ctx context.Context) (storage.PruneResult, error) {
	var total storage.PruneResult
	if !j.Enabled() {
		return total, nil
	}
	cutoff := j.now().Add(-j.maxAge)
	var errs []error
	for _, ns := range storage.Namespaces {
		res, err := j.store.Prune(ctx, ns, cutoff)
		total.Records += res.Records
		total.Orphans += res.Orphans
		if err != nil {
			errs = append(errs, fmt.Errorf("prune %s: %w", ns, err))
		}
	}
	if total.Records > 0 || total.Orphans > 0 {
		j.logger.Info("cache pruned", slog.Int("records", total.Records), slog.Int("orphans", total.Orphans))
	}
	return total, errors.Join(errs...)
}
