package agentregistry

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs the registry's periodic offline-demotion and eviction
// passes on a single ticker (spec.md §4.3: demotion at a fixed cadence,
// eviction as "a second, coarser" pass reusing the same cadence but a much
// larger threshold).
type Sweeper struct {
	registry          *Registry
	sweepInterval     time.Duration
	staleThreshold    time.Duration
	evictionThreshold time.Duration
	logger            *slog.Logger
}

func NewSweeper(registry *Registry, sweepInterval, staleThreshold, evictionThreshold time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		registry:          registry,
		sweepInterval:     sweepInterval,
		staleThreshold:    staleThreshold,
		evictionThreshold: evictionThreshold,
		logger:            logger,
	}
}

// Run blocks until ctx is cancelled, sweeping at sweepInterval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.SweepStale(s.staleThreshold)
			s.registry.EvictStale(s.evictionThreshold)
		}
	}
}
