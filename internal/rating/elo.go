package rating

import "math"

// Params holds the rating/progression tunables. Values mirror config defaults;
// tests construct them directly.
type Params struct {
	KFactor        float64
	FullConfidence float64
	MinKConfidence float64
	EloFloor       int
	DefaultElo     int

	StreakCap        int
	AccuracyFloor    float64
	RecommendSamples int

	PlacementKFactor     float64
	DemotionProtectGames int
}

func DefaultParams() Params {
	return Params{
		KFactor:              32,
		FullConfidence:       0.8,
		MinKConfidence:       0.4,
		EloFloor:             100,
		DefaultElo:           1000,
		StreakCap:            10,
		AccuracyFloor:        0.5,
		RecommendSamples:     3,
		PlacementKFactor:     0.5,
		DemotionProtectGames: 5,
	}
}

// Expected returns the logistic expected score of self against other.
func Expected(selfElo, otherElo int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(otherElo-selfElo)/400.0))
}

// KFor scales the base K-factor by confidence: full K at or above
// FullConfidence, half K below MinKConfidence, linear in between.
func (p Params) KFor(confidence float64) float64 {
	switch {
	case confidence >= p.FullConfidence:
		return p.KFactor
	case confidence <= p.MinKConfidence:
		return p.KFactor / 2
	default:
		t := (confidence - p.MinKConfidence) / (p.FullConfidence - p.MinKConfidence)
		return p.KFactor/2 + t*(p.KFactor/2)
	}
}

// EloDelta computes the signed rating change for self given the outcome.
// Winner delta = round(K*(1-E)), loser delta = round(K*(0-E)).
func (p Params) EloDelta(selfElo, otherElo int, confidence float64, won bool) int {
	e := Expected(selfElo, otherElo)
	k := p.KFor(confidence)
	if won {
		return int(math.Round(k * (1 - e)))
	}
	return int(math.Round(k * (0 - e)))
}

// DrawDelta is the half-score update used when a match ends level.
func (p Params) DrawDelta(selfElo, otherElo int, confidence float64) int {
	e := Expected(selfElo, otherElo)
	return int(math.Round(p.KFor(confidence) * (0.5 - e)))
}

// PlacementDelta is EloDelta with the placement dampener applied.
func (p Params) PlacementDelta(selfElo, otherElo int, confidence float64, won bool) int {
	e := Expected(selfElo, otherElo)
	k := p.KFor(confidence) * p.PlacementKFactor
	if won {
		return int(math.Round(k * (1 - e)))
	}
	return int(math.Round(k * (0 - e)))
}

// ApplyFloor clamps an Elo value to the configured floor.
func (p Params) ApplyFloor(elo int) int {
	if elo < p.EloFloor {
		return p.EloFloor
	}
	return elo
}
