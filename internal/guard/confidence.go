package guard

import "math"

// Params holds the anti-abuse tunables.
type Params struct {
	RefSessions      int     // practice volume reference (log scale cap)
	RefPerWeek       float64 // consistency reference rate
	RecencyGraceDays int     // full recency strength within this window
	RecencyZeroDays  int     // recency reaches zero here

	MinJoinConfidence float64
	TiltThreshold     int
	TiltBreakMinutes  int
}

func DefaultParams() Params {
	return Params{
		RefSessions:       50,
		RefPerWeek:        5,
		RecencyGraceDays:  3,
		RecencyZeroDays:   14,
		MinJoinConfidence: 0.3,
		TiltThreshold:     3,
		TiltBreakMinutes:  30,
	}
}

// 가중치: 연습량 40%, 꾸준함 30%, 최근성 30%.
const (
	volumeWeight      = 0.40
	consistencyWeight = 0.30
	recencyWeight     = 0.30
)

// ConfidenceScore combines practice volume (log scale), consistency
// (sessions/week) and recency into [0,1]. Zero sessions always yields the
// minimum score. Used only as a gate and Elo-K dampener, never as a ban.
func (p Params) ConfidenceScore(sessions int, sessionsPerWeek float64, daysSinceLast int) float64 {
	if sessions <= 0 {
		return 0
	}

	volume := math.Log(1+float64(sessions)) / math.Log(1+float64(p.RefSessions))
	if volume > 1 {
		volume = 1
	}

	consistency := sessionsPerWeek / p.RefPerWeek
	if consistency > 1 {
		consistency = 1
	}
	if consistency < 0 {
		consistency = 0
	}

	recency := 1.0
	if daysSinceLast > p.RecencyGraceDays {
		span := float64(p.RecencyZeroDays - p.RecencyGraceDays)
		recency = 1 - float64(daysSinceLast-p.RecencyGraceDays)/span
		if recency < 0 {
			recency = 0
		}
	}

	score := volumeWeight*volume + consistencyWeight*consistency + recencyWeight*recency
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// SessionsNeeded estimates how many more practice sessions reach the join
// gate, for the INSUFFICIENT_PRACTICE remediation hint.
func (p Params) SessionsNeeded(sessions int) int {
	if sessions < 0 {
		sessions = 0
	}
	for add := 1; add <= p.RefSessions; add++ {
		if p.ConfidenceScore(sessions+add, p.RefPerWeek, 0) >= p.MinJoinConfidence {
			return add
		}
	}
	return p.RefSessions
}
