package scanner

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// UserSource lists the users a sweep visits.
type UserSource interface {
	ListUserIDs() ([]int64, error)
}

// Sweeper runs every scanner for every subscribed user on a fixed interval.
// The first pass is delayed a little to stay clear of startup contention.
type Sweeper struct {
	mu       sync.RWMutex
	scanners []*Scanner
	users    UserSource
	interval time.Duration
	delay    time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSweeper(users UserSource, logger *slog.Logger, scanners ...*Scanner) *Sweeper {
	return &Sweeper{
		scanners: scanners,
		users:    users,
		interval: time.Hour,
		delay:    15 * time.Second,
		logger:   logger,
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.delay):
			s.tick(ctx)
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	userIDs, err := s.users.ListUserIDs()
	if err != nil {
		s.logger.Warn("sweep: list users", "error", err)
		return
	}

	for _, uid := range userIDs {
		for _, sc := range s.scanners {
			// Scan logs its own failures; a bad tick for one user must not
			// stop the rest of the sweep.
			sc.Scan(ctx, uid)
		}
	}
}
