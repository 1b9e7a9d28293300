// Package ratelimit tracks per-user daily call quotas for rate-limited platforms.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"FeedCurator/internal/domain"
	"FeedCurator/internal/ports"
)

// DefaultDailyLimits applies when no limits are configured.
var DefaultDailyLimits = map[string]int{domain.PlatformTwitter: 3}

// Ledger answers whether a user may spend another call today and records calls.
// The check and the increment are separate steps, so concurrent runs for the
// same user can overshoot the limit.
type Ledger struct {
	store  ports.UsageStore
	limits map[string]int
	now    func() time.Time
	logger *slog.Logger
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLimits replaces the per-platform daily limits.
func WithLimits(limits map[string]int) Option {
	return func(l *Ledger) {
		if len(limits) > 0 {
			l.limits = limits
		}
	}
}

// NewLedger builds a ledger over store.
func NewLedger(store ports.UsageStore, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		store:  store,
		limits: DefaultDailyLimits,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the daily limit for platform and whether one is configured.
func (l *Ledger) Limit(platform string) (int, bool) {
	limit, ok := l.limits[platform]
	return limit, ok
}

// CanCall reports whether today's usage is below the platform limit.
// Platforms without a limit are always allowed.
func (l *Ledger) CanCall(ctx context.Context, userID, platform string) (domain.QuotaDecision, error) {
	limit, ok := l.limits[platform]
	if !ok {
		return domain.QuotaDecision{Allowed: true}, nil
	}

	used, err := l.store.Usage(ctx, userID, platform, l.today())
	if err != nil {
		return domain.QuotaDecision{}, fmt.Errorf("load usage: %w", err)
	}

	if used >= limit {
		return domain.QuotaDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("daily API limit reached for %s (%d/%d calls used)", platform, used, limit),
		}, nil
	}
	return domain.QuotaDecision{Allowed: true}, nil
}

// Remaining returns max(0, limit - used) for today. Platforms without a limit
// report -1.
func (l *Ledger) Remaining(ctx context.Context, userID, platform string) (int, error) {
	limit, ok := l.limits[platform]
	if !ok {
		return -1, nil
	}

	used, err := l.store.Usage(ctx, userID, platform, l.today())
	if err != nil {
		return 0, fmt.Errorf("load usage: %w", err)
	}
	return max(0, limit-used), nil
}

// RecordCall adds one call to today's counter. Persistence failures are
// logged and swallowed.
func (l *Ledger) RecordCall(ctx context.Context, userID, platform string) {
	date := l.today()
	if err := l.store.Increment(ctx, userID, platform, date); err != nil {
		l.logger.Error("record api call failed",
			"user_id", userID,
			"platform", platform,
			"date", date,
			"error", err,
		)
		return
	}
	l.logger.Debug("api call recorded", "user_id", userID, "platform", platform, "date", date)
}

func (l *Ledger) today() string {
	return domain.UsageDate(l.now())
}

var _ ports.QuotaLedger = (*Ledger)(nil)
