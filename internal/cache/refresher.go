package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

const DefaultRefreshInterval = 30 * time.Second

// Refresher periodically reloads live cache keys so open views stay current without
// waiting for TTL expiry.
type Refresher struct {
	layer    *Layer
	cron     *cron.Cron
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger
}

func NewRefresher(layer *Layer, interval time.Duration, logger logging.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		layer:    layer,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		interval: interval,
		timeout:  interval,
		logger:   logger,
	}
}

func (r *Refresher) Start() error {
	if _, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval), r.run); err != nil {
		return fmt.Errorf("failed to schedule cache refresh: %w", err)
	}
	r.cron.Start()
	r.logger.Info("Cache refresher started", "interval", r.interval.String())
	return nil
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	refreshed, err := r.layer.Refresh(ctx)
	if err != nil {
		r.logger.Warn("Cache refresh completed with errors", "refreshed", refreshed, "error", err)
		return
	}
	r.logger.Debug("Cache refresh completed", "refreshed", refreshed)
}

// Stop waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("Cache refresher stopped")
}
