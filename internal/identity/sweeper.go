package identity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tonearm/tonearm/internal/store"
)

// Sweeper periodically deletes expired session rows. Deletion filters on
// expiry at deletion time inside the store, so it can run concurrently with
// authentication traffic without ever collecting a session a concurrent
// refresh just extended.
type Sweeper struct {
	sessions store.SessionStore
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper starts a background goroutine that purges expired sessions
// every interval, until Stop is called.
func NewSweeper(ctx context.Context, sessions store.SessionStore, interval time.Duration) *Sweeper {
	sweeperCtx, cancel := context.WithCancel(ctx)

	s := &Sweeper{
		sessions: sessions,
		interval: interval,
		ctx:      sweeperCtx,
		cancel:   cancel,
	}

	s.wg.Add(1)
	go s.run()

	return s
}

// Stop gracefully stops the background goroutine.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Info().Msg("Session sweeper stopped")
			return

		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	count, err := s.sessions.PurgeExpired(s.ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge expired sessions")
		return
	}

	if count > 0 {
		log.Debug().Int("count", count).Msg("Session sweep complete")
	}
}
