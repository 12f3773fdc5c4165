package ratingstore

import (
	"context"
	"time"

	"github.com/Gamechiefx/flashmath-sub004/internal/rating"
)

// Repository is the typed rating-store boundary: named operations only, no
// ad-hoc query dispatch.
type Repository interface {
	// GetOrCreate returns the player's record, creating a default one on
	// first contact.
	GetOrCreate(ctx context.Context, playerID, name string, defaults Defaults) (*PlayerRatingRecord, error)
	Get(ctx context.Context, playerID string) (*PlayerRatingRecord, error)

	// ApplyMatchOutcome updates every participant's aggregate and
	// per-operation ratings with win/loss bookkeeping and appends the
	// immutable history row, all in one transaction.
	ApplyMatchOutcome(ctx context.Context, hist *MatchHistoryRow, outcomes []MatchOutcome, floor int) error

	UpdateTier(ctx context.Context, playerID string, tier int) error
	UpdateConfidence(ctx context.Context, playerID string, confidence float64) error
	UpdateRank(ctx context.Context, playerID string, rank rating.RankState) error
	RecordPracticeSession(ctx context.Context, playerID string) error

	// ListDecayEligible returns players whose last activity predates the
	// cutoff, oldest first.
	ListDecayEligible(ctx context.Context, inactiveSince time.Time, limit int) ([]*PlayerRatingRecord, error)

	// ApplyDailyDecay subtracts amount (respecting the Elo floor) and
	// tierLoss once per calendar day; the second application on the same
	// day is a no-op returning false.
	ApplyDailyDecay(ctx context.Context, playerID string, amount, tierLoss, floor int, day time.Time) (bool, error)

	// ApplySoftReset applies the one-time moderate reduction; returns
	// false when it was already applied.
	ApplySoftReset(ctx context.Context, playerID string, amount, floor int) (bool, error)

	MarkReturning(ctx context.Context, playerID string, placementGames int) error

	Close() error
}

// Defaults seed a freshly created record.
type Defaults struct {
	Elo  int
	Tier int
}
