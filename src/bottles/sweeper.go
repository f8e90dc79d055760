package bottles

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"github.com/stake-plus/bottlebot/src/events"
	"github.com/stake-plus/bottlebot/src/metrics"
)

// Sweeper expires Pending bottles that waited longer than MaxAge, on a cron
// schedule. It is the safety valve for origins nobody else is talking to.
type Sweeper struct {
	store  *Store
	maxAge time.Duration
	cron   string
	events events.Publisher
	log    *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper validates the cron expression and builds a sweeper.
func NewSweeper(store *Store, maxAge time.Duration, cronExpr string, pub events.Publisher, logger *zap.Logger) (*Sweeper, error) {
	if cronExpr == "" {
		cronExpr = "*/15 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid expiry cron expression: %s", cronExpr)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("bottle max age must be positive")
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Sweeper{store: store, maxAge: maxAge, cron: cronExpr, events: pub, log: logger, now: time.Now}, nil
}

func (s *Sweeper) Name() string { return "expiry" }

// Start launches the scheduler goroutine.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("expiry sweeper already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)
	s.log.Info("expiry: scheduler started", zap.String("cron", s.cron), zap.Duration("max_age", s.maxAge))
	return nil
}

// Stop cancels the scheduler and waits for an in-flight sweep.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		next, err := gronx.NextTickAfter(s.cron, s.now().UTC(), false)
		if err != nil {
			s.log.Error("expiry: next tick failed", zap.String("cron", s.cron), zap.Error(err))
			next = s.now().Add(time.Minute)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("expiry: scheduler stopping")
			return
		case <-timer.C:
		}

		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("expiry: sweep failed", zap.Error(err))
		}
	}
}

// RunOnce expires every Pending bottle older than the configured max age.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.maxAge)
	n, err := s.store.ExpireOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.BottlesExpired.Add(float64(n))
		s.log.Info("expiry: expired stale bottles", zap.Int64("count", n))
		if err := s.events.Publish(ctx, events.TypeExpired, map[string]string{
			"count":  strconv.FormatInt(n, 10),
			"cutoff": cutoff.UTC().Format(time.RFC3339),
		}); err != nil {
			s.log.Warn("expiry: publish event failed", zap.Error(err))
		}
	}
	return n, nil
}
