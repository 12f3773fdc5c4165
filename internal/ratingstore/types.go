package ratingstore

import (
	"time"

	"github.com/Gamechiefx/flashmath-sub004/internal/rating"
)

// PlayerRatingRecord is the durable per-player rating aggregate.
type PlayerRatingRecord struct {
	PlayerID string
	Name     string

	Elo      int
	PeakElo  int
	PerOpElo map[string]int // operation → elo
	ModeElo  map[string]int // team-size mode ("1v1", "2v2") → elo

	Wins       int
	Losses     int
	WinStreak  int
	LossStreak int
	MatchCount int

	Tier       int
	Confidence float64
	Rank       rating.RankState

	PracticeSessions int
	SessionsPerWeek  float64
	LastActivityAt   time.Time

	// decay bookkeeping
	TotalDecayed       int
	LastDecayApplied   *time.Time // calendar day, idempotency marker
	Returning          bool
	PlacementRemaining int
	SoftResetApplied   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MatchHistoryRow is immutable once written.
type MatchHistoryRow struct {
	MatchID    string
	PlayerAID  string
	PlayerBID  string
	WinnerID   string
	LoserID    string
	IsDraw     bool
	Forfeit    bool
	ScoreA     int
	ScoreB     int
	EloDeltas  map[string]int
	Questions  int
	DurationMs int64
	PlayedAt   time.Time
}

// MatchOutcome is one player's side of a finished match, applied together with
// the history row in a single transaction.
type MatchOutcome struct {
	PlayerID   string
	Name       string
	Won        bool
	Draw       bool
	EloDelta   int
	Mode       string
	PerOpDelta map[string]int
	// Placement marks the game as a placement match: decrements the
	// remaining counter and clears the returning flag when it hits zero.
	Placement bool
}
