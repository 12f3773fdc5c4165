package rating

// League maps Elo bands to named leagues, each split into three equal
// divisions (3 lowest, 1 highest).
type League struct {
	Name    string
	MinElo  int
	MaxElo  int // exclusive; top league is open-ended
	MinTier int // practice-tier requirement to be promoted into this league
}

var leagues = []League{
	{Name: "bronze", MinElo: 0, MaxElo: 1100, MinTier: 1},
	{Name: "silver", MinElo: 1100, MaxElo: 1300, MinTier: 20},
	{Name: "gold", MinElo: 1300, MaxElo: 1500, MinTier: 40},
	{Name: "platinum", MinElo: 1500, MaxElo: 1700, MinTier: 60},
	{Name: "diamond", MinElo: 1700, MaxElo: 1 << 30, MinTier: 80},
}

// RankState is the stored league position; it only moves through NextRank so
// demotion protection can hold it in place.
type RankState struct {
	League           string `json:"league"`
	Division         int    `json:"division"`
	GamesSinceChange int    `json:"games_since_change"`
}

func leagueIndex(name string) int {
	for i := range leagues {
		if leagues[i].Name == name {
			return i
		}
	}
	return 0
}

// LeagueFor derives league and division straight from Elo.
func LeagueFor(elo int) (League, int) {
	if elo < 0 {
		elo = 0
	}
	for i := range leagues {
		l := leagues[i]
		if elo >= l.MinElo && elo < l.MaxElo {
			return l, divisionFor(l, elo)
		}
	}
	top := leagues[len(leagues)-1]
	return top, 1
}

func divisionFor(l League, elo int) int {
	span := l.MaxElo - l.MinElo
	if span <= 0 || span >= 1<<29 {
		// open-ended top league: fixed width per division
		span = 300
	}
	width := span / 3
	pos := (elo - l.MinElo) / width
	if pos > 2 {
		pos = 2
	}
	if pos < 0 {
		pos = 0
	}
	return 3 - pos
}

// topDivisionCeiling is the Elo needed to sit at the top of division 1.
func topDivisionCeiling(l League) int {
	if l.MaxElo >= 1<<29 {
		return l.MinElo + 900
	}
	return l.MaxElo
}

// NextRank advances the stored rank after a game. Promotion requires both
// clearing the current league's division-1 ceiling and meeting the next
// league's practice-tier minimum. Demotion waits out the protection window
// and never drops below bronze III.
func (p Params) NextRank(cur RankState, elo, tier int) RankState {
	if cur.League == "" {
		l, d := LeagueFor(elo)
		return RankState{League: l.Name, Division: d}
	}

	curIdx := leagueIndex(cur.League)
	curLeague := leagues[curIdx]
	derived, derivedDiv := LeagueFor(elo)
	derivedIdx := leagueIndex(derived.Name)

	next := cur
	next.GamesSinceChange++

	switch {
	case derivedIdx > curIdx:
		// promotion gate: ceiling + practice tier
		target := leagues[curIdx+1]
		if elo >= topDivisionCeiling(curLeague) && tier >= target.MinTier {
			return RankState{League: target.Name, Division: 3}
		}
		// hold at division 1 until the gate clears
		if next.Division != 1 {
			next.Division = 1
			next.GamesSinceChange = 0
		}
	case derivedIdx < curIdx:
		if curIdx == 0 {
			return next // bronze never demotes out
		}
		if next.GamesSinceChange >= p.DemotionProtectGames {
			below := leagues[curIdx-1]
			return RankState{League: below.Name, Division: 1}
		}
	default:
		if derivedDiv != cur.Division {
			// division moves inside a league: demotion still protected
			if derivedDiv > cur.Division && next.GamesSinceChange < p.DemotionProtectGames {
				return next
			}
			return RankState{League: cur.League, Division: derivedDiv}
		}
	}
	return next
}
