package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/novabot503/novacat/internal/clock"
	"github.com/novabot503/novacat/internal/config"
	orderdomain "github.com/novabot503/novacat/internal/order/domain"
	"github.com/novabot503/novacat/internal/order/repository"
	"github.com/novabot503/novacat/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

type failingRepo struct {
	orderdomain.Repository
	err error
}

func (r failingRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, r.err
}

type countingRepo struct {
	orderdomain.Repository
	calls atomic.Int64
}

func (r *countingRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	r.calls.Add(1)
	return 0, nil
}

func newSweeper(t *testing.T, clk clock.Clock, repo orderdomain.Repository, locker ratelimit.Locker) *Sweeper {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := New(Params{
		Config: config.Config{Retention: config.RetentionConfig{OrderTTL: time.Hour, Interval: time.Minute}},
		Log:    zap.NewNop(),
		Clock:  clk,
		Repo:   repo,
		GenID:  node,
		Locker: locker,
	})
	require.NoError(t, err)
	return s
}

func seedOrder(t *testing.T, repo orderdomain.Repository, id string, expiresAt time.Time, provisioning orderdomain.ProvisionState) {
	t.Helper()
	require.NoError(t, repo.Insert(context.Background(), orderdomain.Order{
		ID:           id,
		Contact:      "buyer@example.com",
		Tier:         "1gb",
		Amount:       500,
		ExpiresAt:    expiresAt,
		Status:       orderdomain.StatusPending,
		Provisioning: provisioning,
		CreatedAt:    expiresAt.Add(-time.Minute),
		UpdatedAt:    expiresAt.Add(-time.Minute),
	}))
}

func TestRunOnceRemovesOrdersPastRetention(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(start)
	repo := repository.NewMemory(clk)

	seedOrder(t, repo, "ORDER_OLD", start.Add(-2*time.Hour), orderdomain.ProvisionNone)
	seedOrder(t, repo, "ORDER_RECENT", start.Add(-30*time.Minute), orderdomain.ProvisionNone)
	seedOrder(t, repo, "ORDER_BUSY", start.Add(-2*time.Hour), orderdomain.ProvisionInProgress)

	sweeper := newSweeper(t, clk, repo, nil)
	removed, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(context.Background(), "ORDER_OLD")
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
	_, err = repo.Get(context.Background(), "ORDER_RECENT")
	assert.NoError(t, err)
	_, err = repo.Get(context.Background(), "ORDER_BUSY")
	assert.NoError(t, err)

	clk.Advance(time.Hour)
	removed, err = sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(start)
	repo := repository.NewMemory(clk)
	seedOrder(t, repo, "ORDER_OLD", start.Add(-2*time.Hour), orderdomain.ProvisionNone)

	locker := ratelimit.NewLocalLocker(clk)
	_, ok, err := locker.TryLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	sweeper := newSweeper(t, clk, repo, locker)
	removed, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)

	clk.Advance(2 * time.Minute)
	removed, err = sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestRunOnceWrapsRepositoryError(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	boom := errors.New("boom")
	sweeper := newSweeper(t, clk, failingRepo{err: boom}, nil)

	_, err := sweeper.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobOrderRetention)
}

func TestRunJobTreatsDeadlineAsSoftTimeout(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	sweeper := newSweeper(t, clk, repository.NewMemory(clk), nil)

	err := sweeper.runJob(context.Background(), "slow", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, err)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRegisterSweeperStopsOnShutdown(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := &countingRepo{}
	sweeper, err := New(Params{
		Config: config.Config{Retention: config.RetentionConfig{OrderTTL: time.Hour, Interval: 5 * time.Millisecond}},
		Log:    zap.NewNop(),
		Clock:  clock.NewSystem(),
		Repo:   repo,
		GenID:  node,
	})
	require.NoError(t, err)

	lc := fxtest.NewLifecycle(t)
	RegisterSweeper(lc, sweeper)
	lc.RequireStart()

	require.Eventually(t, func() bool { return repo.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	lc.RequireStop()

	stopped := repo.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, repo.calls.Load(), "sweeper kept running after stop")
}
