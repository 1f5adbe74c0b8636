package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/novabot503/novacat/internal/clock"
	"github.com/novabot503/novacat/internal/config"
	obslogger "github.com/novabot503/novacat/internal/observability/logger"
	obsmetrics "github.com/novabot503/novacat/internal/observability/metrics"
	orderdomain "github.com/novabot503/novacat/internal/order/domain"
	"github.com/novabot503/novacat/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobOrderRetention = "order_retention"

	lockKey    = "novacat:lock:order_retention"
	jobTimeout = 30 * time.Second
)

var ErrInvalidConfig = errors.New("retention_invalid_config")

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    orderdomain.Repository
	GenID   *snowflake.Node
	Locker  ratelimit.Locker       `optional:"true"`
	Metrics *obsmetrics.JobMetrics `optional:"true"`
}

// Sweeper removes orders whose payment window closed longer than the
// retention period ago.
type Sweeper struct {
	log      *zap.Logger
	clock    clock.Clock
	repo     orderdomain.Repository
	genID    *snowflake.Node
	locker   ratelimit.Locker
	metrics  *obsmetrics.JobMetrics
	ttl      time.Duration
	interval time.Duration
}

func New(p Params) (*Sweeper, error) {
	if p.Log == nil || p.Clock == nil || p.Repo == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	ttl := p.Config.Retention.OrderTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	interval := p.Config.Retention.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		log:      p.Log.Named("retention").With(zap.String("component", "retention")),
		clock:    p.Clock,
		repo:     p.Repo,
		genID:    p.GenID,
		locker:   p.Locker,
		metrics:  p.Metrics,
		ttl:      ttl,
		interval: interval,
	}, nil
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("retention run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce deletes expired orders and returns how many were removed. When a
// locker is configured only one instance sweeps per interval.
func (s *Sweeper) RunOnce(parent context.Context) (int, error) {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(parent, lockKey, s.interval)
		if err != nil {
			return 0, fmt.Errorf("%s: acquire lock: %w", JobOrderRetention, err)
		}
		if !ok {
			s.log.Debug("retention skipped, another instance holds the lock")
			return 0, nil
		}
		defer func() {
			if err := s.locker.Release(context.Background(), lockKey, token); err != nil {
				s.log.Warn("retention lock release failed", zap.Error(err))
			}
		}()
	}

	var removed int
	err := s.runJob(parent, JobOrderRetention, jobTimeout, func(ctx context.Context) error {
		cutoff := s.clock.Now().Add(-s.ttl)
		n, err := s.repo.DeleteExpired(ctx, cutoff)
		if err != nil {
			return err
		}
		removed = n
		s.recordRemoved(n)
		return nil
	})
	return removed, err
}

func (s *Sweeper) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("job", name),
		zap.String("run_id", s.genID.Generate().String()),
	)

	err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)
	s.metrics.ObserveRun(name, elapsed, err)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Sweeper) recordRemoved(n int) {
	if n == 0 {
		return
	}
	s.metrics.AddRemoved(JobOrderRetention, n)
	s.log.Info("expired orders removed", zap.Int("count", n), zap.Duration("retention", s.ttl))
}
