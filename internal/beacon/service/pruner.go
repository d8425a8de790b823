package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
	"github.com/BrandonDHaskell/Beacon/server/internal/observability"
)

// BeatPruner periodically deletes beats older than a retention period. It
// runs as a background goroutine and stops via its context or Stop.
//
// A retention of 0 disables pruning entirely, which is the default: beats are
// an append-only log unless an operator opts in.
type BeatPruner struct {
	store     store.BeatStore
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// PrunerConfig holds the parameters for NewBeatPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of beats to keep. 0 keeps everything.
	RetentionDays int

	// IntervalHours is how often the pruner runs. Defaults to 6.
	IntervalHours int
}

// NewBeatPruner creates a pruner but does not start it.
func NewBeatPruner(s store.BeatStore, cfg PrunerConfig, logger *zap.Logger, metrics *observability.Metrics) *BeatPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	return &BeatPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
		done:      make(chan struct{}),
	}
}

// Start runs an immediate prune, then repeats on the configured interval
// until ctx is cancelled or Stop is called.
// Start after Stop is a no-op.
func (p *BeatPruner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	if p.retention <= 0 {
		p.logger.Info("beat pruner disabled (retention=0)")
		p.finish()
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Info("beat pruner started",
		zap.Duration("retention", p.retention),
		zap.Duration("interval", p.interval),
	)
}

// Stop signals the pruner to exit and waits for it. Safe to call repeatedly.
func (p *BeatPruner) Stop() {
	p.mu.Lock()
	if !p.started {
		// Never started: nothing to wait for.
		p.started = true
		p.finish()
	}
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-p.done
}

func (p *BeatPruner) finish() {
	p.stopOnce.Do(func() { close(p.done) })
}

// PruneNow runs one pass and returns the number of beats deleted.
func (p *BeatPruner) PruneNow(ctx context.Context) (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	p.metrics.PrunedBeats.Add(float64(deleted))
	if deleted > 0 {
		p.logger.Info("beat prune",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}

func (p *BeatPruner) loop(ctx context.Context) {
	defer p.finish()

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *BeatPruner) prune(ctx context.Context) {
	if _, err := p.PruneNow(ctx); err != nil {
		p.logger.Warn("beat prune error", zap.Error(err))
	}
}
