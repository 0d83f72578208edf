package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var defaultSweepInterval = time.Hour

// SweeperConfig configures the TTL sweeper.
type SweeperConfig struct {
	// Store holds the records to sweep. Required.
	Store Store

	// TTL is how long a terminal record is kept after its last update.
	// Required and must be positive; a store without a sweeper keeps
	// records forever.
	TTL time.Duration

	// Interval between sweeps (defaults to hourly).
	Interval time.Duration

	// Logger is the provided zap logger. Required.
	Logger *zap.Logger
}

// Sweeper periodically deletes terminal job records older than the TTL.
// In-flight records are never swept, so a slow poller can always observe a
// job reach its terminal state before the record ages out.
type Sweeper struct {
	config SweeperConfig
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewSweeper creates a Sweeper. It does not start sweeping until Start.
func NewSweeper(config SweeperConfig) (*Sweeper, error) {
	if config.Store == nil {
		return nil, errors.New("store is required")
	}
	if config.TTL <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if config.Logger == nil {
		return nil, errors.New("logger is required")
	}

	if config.Interval <= 0 {
		config.Interval = defaultSweepInterval
	}

	return &Sweeper{
		config: config,
		done:   make(chan struct{}),
		logger: config.Logger,
	}, nil
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Stop halts the loop and waits for any in-progress sweep to finish.
func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.config.TTL)
	removed, err := s.config.Store.DeleteExpired(ctx, cutoff)
	if err != nil {
		s.logger.Warn("job sweep failed", zap.Error(err))
		return
	}

	if removed > 0 {
		s.logger.Info("swept expired jobs",
			zap.Int("removed", removed),
			zap.Time("cutoff", cutoff),
		)
	}
}
