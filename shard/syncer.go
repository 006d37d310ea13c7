package shard

import (
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"corvusDB/recovery"
)

// syncTarget is what the scheduler needs from a shard.
type syncTarget interface {
	ShardID() string
	State() State
	syncNeeded() bool
	syncTranslog() error
}

// syncScheduler periodically durability-syncs the live translog. Each tick
// checks whether a sync is needed, performs it off the scheduling context,
// and reschedules itself regardless of the sync outcome. Once the shard
// closes it never schedules again.
//
// The handle to the next tick is replaced under the mutex; stop cancels the
// current handle. A tick that was just scheduled when stop runs may still
// fire once, and stops itself on the closed-state check.
type syncScheduler struct {
	target   syncTarget
	interval time.Duration
	pool     *ants.Pool

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newSyncScheduler(target syncTarget, interval time.Duration, pool *ants.Pool) *syncScheduler {
	return &syncScheduler{target: target, interval: interval, pool: pool}
}

func (s *syncScheduler) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.timer = time.AfterFunc(s.interval, s.tick)
}

func (s *syncScheduler) tick() {
	// Don't re-schedule if it's closed; we are done.
	if s.target.State() == StateClosed {
		return
	}
	if s.target.State() != StateStarted || !s.target.syncNeeded() {
		s.schedule()
		return
	}
	s.submit(func() {
		if err := s.target.syncTranslog(); err != nil {
			// A failure because the shard closed mid-sync is noise.
			if s.target.State() == StateStarted {
				recovery.TranslogSyncFailures.Inc()
				log.Warn().Err(err).Str("shard", s.target.ShardID()).
					Msg("failed to sync translog")
			}
		}
		if s.target.State() != StateClosed {
			s.schedule()
		}
	})
}

func (s *syncScheduler) submit(task func()) {
	if s.pool != nil {
		if err := s.pool.Submit(task); err == nil {
			return
		}
		// Pool rejected the task (released or saturated); the sync still
		// has to run off this tick.
	}
	go task()
}

func (s *syncScheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}
