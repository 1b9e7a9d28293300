package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedCurator/internal/domain"
	"FeedCurator/internal/infrastructure/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type brokenStore struct{}

func (brokenStore) Usage(context.Context, string, string, string) (int, error) {
	return 0, errors.New("connection refused")
}

func (brokenStore) Increment(context.Context, string, string, string) error {
	return errors.New("connection refused")
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestLedgerDeniesAtLimit(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryRepository()
	now := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	ledger := NewLedger(store, discard, WithClock(fixedClock(now)))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Increment(ctx, "u1", domain.PlatformTwitter, "2024-05-01"))
	}

	decision, err := ledger.CanCall(ctx, "u1", domain.PlatformTwitter)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "3/3")

	remaining, err := ledger.Remaining(ctx, "u1", domain.PlatformTwitter)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestLedgerRecordCallsUntilExhausted(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(storage.NewMemoryRepository(), discard,
		WithClock(fixedClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := ledger.CanCall(ctx, "u1", domain.PlatformTwitter)
		require.NoError(t, err)
		require.True(t, decision.Allowed, "call %d should be allowed", i+1)

		remaining, err := ledger.Remaining(ctx, "u1", domain.PlatformTwitter)
		require.NoError(t, err)
		assert.Equal(t, 3-i, remaining)

		ledger.RecordCall(ctx, "u1", domain.PlatformTwitter)
	}

	decision, err := ledger.CanCall(ctx, "u1", domain.PlatformTwitter)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	other, err := ledger.CanCall(ctx, "u2", domain.PlatformTwitter)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "quotas are per user")
}

func TestLedgerRemainingNeverNegative(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryRepository()
	ledger := NewLedger(store, discard,
		WithClock(fixedClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))),
		WithLimits(map[string]int{domain.PlatformTwitter: 2}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ledger.RecordCall(ctx, "u1", domain.PlatformTwitter)
	}

	remaining, err := ledger.Remaining(ctx, "u1", domain.PlatformTwitter)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	decision, err := ledger.CanCall(ctx, "u1", domain.PlatformTwitter)
	require.NoError(t, err)
	assert.Contains(t, decision.Reason, "5/2")
}

func TestLedgerResetsEachUTCDay(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryRepository()
	now := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	ledger := NewLedger(store, discard, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ledger.RecordCall(ctx, "u1", domain.PlatformTwitter)
	}
	decision, err := ledger.CanCall(ctx, "u1", domain.PlatformTwitter)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	now = now.Add(2 * time.Minute)

	decision, err = ledger.CanCall(ctx, "u1", domain.PlatformTwitter)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestLedgerUnlimitedPlatform(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(brokenStore{}, discard)

	decision, err := ledger.CanCall(context.Background(), "u1", "rss")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	remaining, err := ledger.Remaining(context.Background(), "u1", "rss")
	require.NoError(t, err)
	assert.Equal(t, -1, remaining)
}

func TestLedgerStoreFailures(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(brokenStore{}, discard)
	ctx := context.Background()

	_, err := ledger.CanCall(ctx, "u1", domain.PlatformTwitter)
	assert.Error(t, err)

	_, err = ledger.Remaining(ctx, "u1", domain.PlatformTwitter)
	assert.Error(t, err)

	assert.NotPanics(t, func() { ledger.RecordCall(ctx, "u1", domain.PlatformTwitter) })
}
