package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor defaults.
const (
	DefaultRetention       = 30 * time.Minute
	DefaultJanitorSchedule = "@every 1m"
)

// Janitor periodically evicts finished jobs from a Registry: jobs whose
// result was retrieved, and jobs that finished more than retention ago.
type Janitor struct {
	registry  *Registry
	retention time.Duration
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewJanitor creates a Janitor running on schedule, a standard cron
// expression or a descriptor such as "@every 1m".
func NewJanitor(registry *Registry, schedule string, retention time.Duration, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	if retention <= 0 {
		retention = DefaultRetention
	}

	j := &Janitor{
		registry:  registry,
		retention: retention,
		cron:      cron.New(),
		logger:    logger,
	}
	if _, err := j.cron.AddFunc(schedule, j.RunOnce); err != nil {
		return nil, fmt.Errorf("job: invalid janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

// RunOnce sweeps the registry now.
func (j *Janitor) RunOnce() {
	removed := j.registry.Sweep(time.Now(), j.retention)
	if removed > 0 {
		j.logger.Info("evicted finished jobs",
			slog.Int("removed", removed),
			slog.Int("remaining", j.registry.Len()),
		)
	}
}

// Start runs the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, or ctx.
func (j *Janitor) Stop(ctx context.Context) error {
	select {
	case <-j.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
