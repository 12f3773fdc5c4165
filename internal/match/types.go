package match

import (
	"time"

	"github.com/Gamechiefx/flashmath-sub004/internal/rating"
	"github.com/Gamechiefx/flashmath-sub004/pkg/arenadto"
)

// Phase is the match lifecycle state. Transitions only move forward.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseCountdown Phase = "countdown"
	PhaseActive    Phase = "active"
	PhaseFinished  Phase = "finished"
)

// End reasons recorded on the history row.
const (
	ReasonCompleted  = "completed"
	ReasonLivesOut   = "lives_out"
	ReasonForfeit    = "forfeit"
	ReasonDisconnect = "disconnect"
)

// Config holds the per-match tunables, copied from the app config at service
// construction.
type Config struct {
	QuestionsPerMatch int
	StartingLives     int
	QuestionTime      time.Duration
	CountdownSec      int
	NextQuestionDelay time.Duration
	BasePoints        int
	SpeedBonusMax     int
	WrongAnswerPoints int
	StateTTL          time.Duration
}

// Participant is one player's live state inside a match. EloBefore and
// Confidence are immutable snapshots taken when the match was created; deltas
// are always computed against them.
type Participant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Tier       int    `json:"tier"`
	EloBefore  int    `json:"elo_before"`
	Confidence float64 `json:"confidence"`
	Placement  bool    `json:"placement"`

	Lives      int  `json:"lives"`
	Score      int  `json:"score"`
	Streak     int  `json:"streak"`
	BestStreak int  `json:"best_streak"`
	Correct    int  `json:"correct"`
	Answered   int  `json:"answered"`
	Forfeited  bool `json:"forfeited"`

	answeredThis bool
	totalTimeMs  int64
	perOp        map[string]rating.OpStats
}

func (p *Participant) state() arenadto.ParticipantState {
	return arenadto.ParticipantState{
		ID:       p.ID,
		Name:     p.Name,
		Score:    p.Score,
		Lives:    p.Lives,
		Streak:   p.Streak,
		Answered: p.answeredThis,
	}
}

func (p *Participant) matchStats(won bool, maxTimeMs int64) rating.MatchStats {
	var avg int64
	if p.Answered > 0 {
		avg = p.totalTimeMs / int64(p.Answered)
	}
	return rating.MatchStats{
		Correct:    p.Correct,
		Total:      p.Answered,
		BestStreak: p.BestStreak,
		AvgTimeMs:  avg,
		MaxTimeMs:  maxTimeMs,
		Won:        won,
		PerOp:      p.perOp,
	}
}

// Broadcaster delivers events to every participant of a match. The gateway
// implements it; tests use a recording fake.
type Broadcaster interface {
	Broadcast(matchID string, env arenadto.Envelope)
}

// Snapshot is the redis mirror of a live match, written on every visible
// state change so operators can inspect matches that outlive their process.
type Snapshot struct {
	ID             string                      `json:"id"`
	Phase          Phase                       `json:"phase"`
	QuestionNumber int                         `json:"question_number"`
	TotalQuestions int                         `json:"total_questions"`
	Players        []arenadto.ParticipantState `json:"players"`
	StartedAt      time.Time                   `json:"started_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}
