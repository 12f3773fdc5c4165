package queue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Gamechiefx/flashmath-sub004/internal/rating"
)

var (
	ErrAlreadyQueued = errors.New("player already in queue")
	ErrNotQueued     = errors.New("player not in queue")
)

// Entry is one waiting player. Exists only while waiting; Elo/confidence are
// snapshots taken at join time and travel with the match.
type Entry struct {
	PlayerID   string    `json:"player_id"`
	Name       string    `json:"name"`
	Tier       int       `json:"tier"`
	Elo        int       `json:"elo"`
	Confidence float64   `json:"confidence"`
	MatchCount int       `json:"match_count"`
	Placement  bool      `json:"placement,omitempty"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Proposal is an agreed pairing: both entries are already removed from the
// queue when a Proposal is returned.
type Proposal struct {
	MatchID   string
	Players   []Entry
	Quality   int
	CreatedAt time.Time
}

// Stats summarizes the waiting set per tier bucket of ten.
type Stats struct {
	Waiting int            `json:"waiting"`
	ByTier  map[string]int `json:"by_tier"`
}

// legacyTier mirrors the historical payload shapes still sent by old clients:
// {"tier": n} and {"level": 0..4}.
type legacyTier struct {
	Tier  *int `json:"tier"`
	Level *int `json:"level"`
}

// NormalizeTier resolves every historical tier representation to one canonical
// clamped integer. Upstream callers are inconsistent, so this is the single
// conversion point; fallback is used when the payload carries nothing usable.
func NormalizeTier(raw json.RawMessage, fallback int) int {
	if len(raw) == 0 {
		return rating.ClampTier(fallback)
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return rating.ClampTier(int(n))
	}

	var legacy legacyTier
	if err := json.Unmarshal(raw, &legacy); err == nil {
		if legacy.Tier != nil {
			return rating.ClampTier(*legacy.Tier)
		}
		if legacy.Level != nil {
			// legacy 0-4 levels map to band midpoints
			l := *legacy.Level
			if l < 0 {
				l = 0
			}
			if l > 4 {
				l = 4
			}
			return rating.ClampTier(l*20 + 10)
		}
	}

	return rating.ClampTier(fallback)
}
