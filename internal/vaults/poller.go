package vaults

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/vault_portal/internal/logging"
)

// DefaultSchedule refreshes summaries every 30 seconds.
const DefaultSchedule = "@every 30s"

// Poller refreshes a Directory on a cron schedule.
type Poller struct {
	dir      *Directory
	schedule string
	timeout  time.Duration
	logger   *logging.Logger
	cron     *cron.Cron
}

// NewPoller creates a poller. The schedule uses the standard cron syntax plus
// descriptors such as "@every 30s".
func NewPoller(dir *Directory, schedule string, timeout time.Duration, logger *logging.Logger) (*Poller, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(logger)),
		cron.SkipIfStillRunning(cron.PrintfLogger(logger)),
	))
	p := &Poller{dir: dir, schedule: schedule, timeout: timeout, logger: logger, cron: c}

	if _, err := c.AddFunc(schedule, p.tick); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return p, nil
}

func (p *Poller) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	p.dir.Refresh(ctx, "schedule")
}

// Start runs an initial refresh and starts the schedule.
func (p *Poller) Start(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, p.timeout)
	p.dir.Refresh(rctx, "startup")
	cancel()

	p.cron.Start()
	p.logger.WithField("schedule", p.schedule).Info("vault poller started")
}

// Stop stops the schedule and waits for a running refresh.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
	p.logger.Info("vault poller stopped")
}

// Next returns the next scheduled run.
func (p *Poller) Next() time.Time {
	entries := p.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
