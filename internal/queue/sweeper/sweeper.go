package sweeper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/aridsondez/sqs-lite-mem/internal/metrics"
)

// Refresher is the one thing a Sweeper drives.
type Refresher interface {
	Refresh()
}

// Sweeper calls Refresh on its target at a fixed interval. It holds a
// reference to the target only; queue state stays with the target.
type Sweeper struct {
	target   Refresher
	interval time.Duration
	clock    clockwork.Clock
	log      zerolog.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func New(target Refresher, interval time.Duration, clock clockwork.Clock, logger zerolog.Logger) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sweeper{
		target:   target,
		interval: interval,
		clock:    clock,
		log:      logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called. It runs at most once.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	defer close(s.done)

	select {
	case <-s.stopCh:
		return
	default:
	}

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Debug().Dur("interval", s.interval).Msg("sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("sweeper stopped (context cancelled)")
			return

		case <-s.stopCh:
			s.log.Debug().Msg("sweeper stopped (stop signal)")
			return

		case <-ticker.Chan():
			// Stop may have landed together with the tick.
			select {
			case <-s.stopCh:
				s.log.Debug().Msg("sweeper stopped (stop signal)")
				return
			default:
			}
			s.tick()
		}
	}
}

func (s *Sweeper) tick() {
	timer := prometheus.NewTimer(metrics.SweeperDuration)
	defer timer.ObserveDuration()
	defer func() {
		if r := recover(); r != nil {
			metrics.SweeperErrors.Inc()
			s.log.Error().Interface("panic", r).Msg("sweeper tick failed")
		}
	}()
	s.target.Refresh()
}

// Stop ends the loop and waits for a tick in progress to finish. It is safe to
// call more than once and before Start.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.started.Load() {
		<-s.done
	}
}
