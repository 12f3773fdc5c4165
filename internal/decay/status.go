package decay

import (
	"time"

	"github.com/Gamechiefx/flashmath-sub004/internal/ratingstore"
)

// Status is the derived decay view of one player, computed on read and never
// stored.
type Status struct {
	Phase              Phase `json:"phase"`
	DaysInactive       int   `json:"days_inactive"`
	EloAtRisk          int   `json:"elo_at_risk"`
	TierAtRisk         int   `json:"tier_at_risk"`
	TotalDecayed       int   `json:"total_decayed"`
	Returning          bool  `json:"returning"`
	PlacementRemaining int   `json:"placement_remaining"`
}

// StatusFor projects the coming week's losses from the current inactivity
// clock.
func (c Config) StatusFor(rec *ratingstore.PlayerRatingRecord, now time.Time) Status {
	days := DaysInactive(rec.LastActivityAt, now)
	st := Status{
		Phase:              PhaseFor(days),
		DaysInactive:       days,
		TotalDecayed:       rec.TotalDecayed,
		Returning:          rec.Returning,
		PlacementRemaining: rec.PlacementRemaining,
	}
	for d := days + 1; d <= days+7; d++ {
		st.EloAtRisk += c.dailyElo(d)
		st.TierAtRisk += c.tierLossFor(d)
	}
	if floorRoom := rec.Elo - c.EloFloor; st.EloAtRisk > floorRoom {
		if floorRoom < 0 {
			floorRoom = 0
		}
		st.EloAtRisk = floorRoom
	}
	return st
}
