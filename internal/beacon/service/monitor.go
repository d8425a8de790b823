package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
	"github.com/BrandonDHaskell/Beacon/server/internal/observability"
)

// StoreMonitor tracks whether the beat store is reachable. Listeners are
// called on every state change, including the first check.
type StoreMonitor struct {
	store    store.BeatStore
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu        sync.RWMutex
	healthy   bool
	checked   bool
	listeners []func(healthy bool)
}

func NewStoreMonitor(s store.BeatStore, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *StoreMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &StoreMonitor{
		store:    s,
		interval: interval,
		timeout:  3 * time.Second,
		logger:   logger,
		metrics:  metrics,
	}
}

// OnChange registers fn. Register listeners before Run.
func (m *StoreMonitor) OnChange(fn func(healthy bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *StoreMonitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy
}

// Check pings the store once and records the result.
func (m *StoreMonitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.store.Ping(ctx)
	healthy := err == nil

	m.mu.Lock()
	changed := !m.checked || m.healthy != healthy
	m.healthy = healthy
	m.checked = true
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	m.metrics.SetStoreHealthy(healthy)
	if changed {
		if healthy {
			m.logger.Info("beat store reachable")
		} else {
			m.logger.Error("beat store unavailable", zap.Error(err))
		}
		for _, fn := range listeners {
			fn(healthy)
		}
	}
	return healthy
}

// Run checks immediately and then on every interval until ctx is done.
func (m *StoreMonitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
