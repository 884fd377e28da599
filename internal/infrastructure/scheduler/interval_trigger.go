package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChannelProvider lists the channels eligible for reconciliation
type ChannelProvider interface {
	ListUIDs(ctx context.Context) ([]string, error)
}

// IntervalTriggerConfig holds configuration for the reconcile interval trigger
type IntervalTriggerConfig struct {
	// Interval is how often a reconciliation round is scheduled
	Interval time.Duration
}

// DefaultIntervalTriggerConfig returns default configuration
func DefaultIntervalTriggerConfig() IntervalTriggerConfig {
	return IntervalTriggerConfig{
		Interval: 5 * time.Minute,
	}
}

// IntervalTrigger periodically submits one reconcile job per channel to the
// scheduler. Channels are enumerated fresh on every tick, so newly created
// channels join the next round without a restart.
type IntervalTrigger struct {
	config    IntervalTriggerConfig
	scheduler *ReconcileScheduler
	channels  ChannelProvider
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewIntervalTrigger creates a new reconcile interval trigger
func NewIntervalTrigger(
	config IntervalTriggerConfig,
	scheduler *ReconcileScheduler,
	channels ChannelProvider,
	logger *zap.Logger,
) *IntervalTrigger {
	return &IntervalTrigger{
		config:    config,
		scheduler: scheduler,
		channels:  channels,
		logger:    logger,
	}
}

// Start starts the trigger loop
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return ErrTriggerAlreadyRunning
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Reconcile interval trigger started",
		zap.Duration("interval", t.config.Interval),
	)

	return nil
}

// Stop stops the trigger loop
func (t *IntervalTrigger) Stop() {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	t.logger.Info("Reconcile interval trigger stopped")
}

// runLoop schedules a round on every tick
func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	// Fire one round at startup so pending rows are not stuck for a full
	// interval after a restart.
	t.scheduleRound(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.scheduleRound(ctx)
		}
	}
}

// scheduleRound submits one reconcile job per channel
func (t *IntervalTrigger) scheduleRound(ctx context.Context) {
	uids, err := t.channels.ListUIDs(ctx)
	if err != nil {
		t.logger.Error("Failed to list channels for reconcile round", zap.Error(err))
		return
	}

	scheduled := 0
	for _, uid := range uids {
		if err := t.scheduler.ScheduleChannel(uid); err != nil {
			t.logger.Warn("Failed to schedule reconcile job",
				zap.String("channel_uid", uid),
				zap.Error(err),
			)
			continue
		}
		scheduled++
	}

	t.logger.Debug("Reconcile round scheduled",
		zap.Int("channels", len(uids)),
		zap.Int("scheduled", scheduled),
	)
}
