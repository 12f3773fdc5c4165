package rating

// OpStats is per-operation answer bookkeeping for one match.
type OpStats struct {
	Correct int
	Total   int
}

func (s OpStats) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// MatchStats is one participant's aggregate line used for APS and recommendations.
type MatchStats struct {
	Correct    int
	Total      int
	BestStreak int
	AvgTimeMs  int64
	MaxTimeMs  int64
	Won        bool
	PerOp      map[string]OpStats
}

func (s MatchStats) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// PerformanceScore is the Arena Performance Score: accuracy 40%, capped
// normalized streak 35%, speed ratio 25%. The speed component is halved when
// accuracy is below the floor.
func (p Params) PerformanceScore(s MatchStats) float64 {
	acc := s.Accuracy()

	streak := float64(s.BestStreak) / float64(p.StreakCap)
	if streak > 1 {
		streak = 1
	}

	speed := 0.0
	if s.MaxTimeMs > 0 {
		speed = 1 - float64(s.AvgTimeMs)/float64(s.MaxTimeMs)
		if speed < 0 {
			speed = 0
		}
		if speed > 1 {
			speed = 1
		}
	}
	if acc < p.AccuracyFloor {
		speed /= 2
	}

	return 0.40*acc + 0.35*streak + 0.25*speed
}

// Recommendation severity tiers.
const (
	SeverityCritical    = "critical"
	SeverityImprovement = "improvement"
	SeveritySuggestion  = "suggestion"
	SeverityNone        = "none"
)

// Recommendation points at the weakest operation after a match. Message text
// is rendered at the transport edge from the catalog.
type Recommendation struct {
	Severity  string
	Operation string
	Accuracy  float64
}

// Recommend finds the operation with the lowest accuracy (minimum sample size
// required) and grades it by outcome and accuracy.
func (p Params) Recommend(s MatchStats) Recommendation {
	op, acc, found := "", 1.0, false
	for name, st := range s.PerOp {
		if st.Total < p.RecommendSamples {
			continue
		}
		a := st.Accuracy()
		if !found || a < acc || (a == acc && name < op) {
			op, acc, found = name, a, true
		}
	}
	if !found {
		return Recommendation{Severity: SeverityNone}
	}

	sev := SeverityNone
	switch {
	case !s.Won && acc < 0.5:
		sev = SeverityCritical
	case acc < 0.7:
		sev = SeverityImprovement
	case acc < 0.9:
		sev = SeveritySuggestion
	}
	if sev == SeverityNone {
		return Recommendation{Severity: SeverityNone}
	}
	return Recommendation{Severity: sev, Operation: op, Accuracy: acc}
}
