// SPDX-License-Identifier: MIT

package manager

import (
	"context"
	"time"

	"github.com/jamcast/jamd/internal/domain/session/model"
	"github.com/jamcast/jamd/internal/log"
)

// SweeperConfig controls idle-session teardown.
type SweeperConfig struct {
	Interval time.Duration
	// IdleTTL is how long a session may stay idle with no participants
	// before it is closed automatically.
	IdleTTL time.Duration
}

// Sweeper periodically closes abandoned idle sessions.
type Sweeper struct {
	Engine *Engine
	Conf   SweeperConfig
}

// Run blocks until ctx is done, sweeping at the configured interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Conf.Interval)
	defer ticker.Stop()

	logger := log.WithComponent("sweeper")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				logger.Warn().Err(err).Msg("sweep failed")
			} else if n > 0 {
				logger.Info().Int("closed", n).Str("event", "sweep.closed").Msg("closed abandoned sessions")
			}
		}
	}
}

// SweepOnce closes every session that has been idle and empty longer than the
// TTL. Returns the number of sessions closed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	recs, err := s.Engine.store.ListSessions(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-s.Conf.IdleTTL)
	closed := 0
	for _, rec := range recs {
		if rec.State != model.StateIdle || rec.LastIdleAt.IsZero() || rec.LastIdleAt.After(cutoff) {
			continue
		}
		parts, err := s.Engine.store.ListParticipants(ctx, rec.ID)
		if err != nil {
			return closed, err
		}
		if len(parts) > 0 {
			continue
		}
		if err := s.Engine.CloseSession(ctx, rec.ID); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}
