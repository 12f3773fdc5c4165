package guard

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TiltTracker keeps per-player consecutive-loss counters in Redis. The counter
// expires after the configured TTL of inactivity, resets on a win and can be
// cleared by an out-of-band practice action.
type TiltTracker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewTiltTracker(rdb *redis.Client, ttl time.Duration) *TiltTracker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TiltTracker{rdb: rdb, ttl: ttl}
}

func keyLossStreak(playerID string) string { return "arena:tilt:" + strings.TrimSpace(playerID) }

// RecordLoss increments the streak and refreshes its lifetime.
func (t *TiltTracker) RecordLoss(ctx context.Context, playerID string) (int, error) {
	key := keyLossStreak(playerID)
	n, err := t.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = t.rdb.Expire(ctx, key, t.ttl).Err()
	return int(n), nil
}

// RecordWin clears the streak.
func (t *TiltTracker) RecordWin(ctx context.Context, playerID string) error {
	return t.rdb.Del(ctx, keyLossStreak(playerID)).Err()
}

// ClearByPractice is the explicit out-of-band reset (a completed practice
// session lifts tilt protection).
func (t *TiltTracker) ClearByPractice(ctx context.Context, playerID string) error {
	return t.rdb.Del(ctx, keyLossStreak(playerID)).Err()
}

// Streak returns the current consecutive-loss count.
func (t *TiltTracker) Streak(ctx context.Context, playerID string) (int, error) {
	n, err := t.rdb.Get(ctx, keyLossStreak(playerID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Tilted reports whether the player is currently gated.
func (t *TiltTracker) Tilted(ctx context.Context, playerID string, threshold int) (bool, error) {
	n, err := t.Streak(ctx, playerID)
	if err != nil {
		return false, err
	}
	return n >= threshold, nil
}
