package match

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gamechiefx/flashmath-sub004/internal/obslog"
	"github.com/Gamechiefx/flashmath-sub004/internal/problem"
	"github.com/Gamechiefx/flashmath-sub004/internal/rating"
	"github.com/Gamechiefx/flashmath-sub004/pkg/arenadto"
)

// Match is the server-authoritative state machine for one live game. Every
// mutation runs behind its mutex; timers are AfterFunc tasks owned by the
// match, each callback re-checks phase and generation before acting.
type Match struct {
	ID string

	cfg Config
	rp  rating.Params
	gen problem.Generator
	bc  Broadcaster

	mu         sync.Mutex
	phase      Phase
	players    map[string]*Participant
	order      []string
	qNum       int
	question   *problem.Problem
	questionID string
	questionAt time.Time
	timerGen   int
	timer      *time.Timer
	startedAt  time.Time

	now      func() time.Time
	mirror   func(*Snapshot)
	onFinish func(*Result)
}

// Result is the immutable outcome handed to the finish hook after GAME_OVER
// is broadcast.
type Result struct {
	MatchID    string
	WinnerID   string
	LoserID    string
	Draw       bool
	Forfeit    bool
	Reason     string
	Questions  int
	DurationMs int64

	Participants []*Participant
	EloDeltas    map[string]int
	PerOpDeltas  map[string]map[string]int
	Performance  map[string]float64
	Recommends   map[string]rating.Recommendation
}

func newMatch(id string, entries []*Participant, cfg Config, rp rating.Params, gen problem.Generator, bc Broadcaster) *Match {
	m := &Match{
		ID:      id,
		cfg:     cfg,
		rp:      rp,
		gen:     gen,
		bc:      bc,
		phase:   PhasePending,
		players: make(map[string]*Participant, len(entries)),
		now:     time.Now,
	}
	for _, p := range entries {
		p.Lives = cfg.StartingLives
		p.perOp = make(map[string]rating.OpStats)
		m.players[p.ID] = p
		m.order = append(m.order, p.ID)
	}
	return m
}

// Start moves the match into countdown and arms the tick chain. A second call
// is a no-op.
func (m *Match) Start(ctx context.Context) {
	m.mu.Lock()
	if m.phase != PhasePending {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseCountdown
	m.startedAt = m.now()
	start := arenadto.MatchStartPayload{
		MatchID:        m.ID,
		Players:        m.briefsLocked(),
		TotalQuestions: m.cfg.QuestionsPerMatch,
		Config: arenadto.MatchConfig{
			StartingLives:     m.cfg.StartingLives,
			QuestionTimeSec:   int(m.cfg.QuestionTime / time.Second),
			CountdownSec:      m.cfg.CountdownSec,
			BasePoints:        m.cfg.BasePoints,
			SpeedBonusMax:     m.cfg.SpeedBonusMax,
			WrongAnswerPoints: m.cfg.WrongAnswerPoints,
		},
	}
	m.mu.Unlock()

	m.bc.Broadcast(m.ID, arenadto.Envelope{Event: arenadto.EventMatchStart, Payload: start})
	m.snapshot()
	m.countdownTick(m.cfg.CountdownSec)
}

func (m *Match) countdownTick(remaining int) {
	m.mu.Lock()
	if m.phase != PhaseCountdown {
		m.mu.Unlock()
		return
	}
	if remaining <= 0 {
		m.phase = PhaseActive
		m.mu.Unlock()
		m.advance()
		return
	}
	gen := m.bumpTimerLocked()
	m.timer = time.AfterFunc(time.Second, func() {
		if m.timerLive(gen, PhaseCountdown) {
			m.countdownTick(remaining - 1)
		}
	})
	m.mu.Unlock()

	m.bc.Broadcast(m.ID, arenadto.Envelope{
		Event:   arenadto.EventCountdownTick,
		Payload: arenadto.CountdownTickPayload{Seconds: remaining},
	})
}

// advance ends the match when the budget is exhausted or a participant is out
// of lives, otherwise pulls the next question and arms its timeout.
func (m *Match) advance() {
	m.mu.Lock()
	if m.phase != PhaseActive {
		m.mu.Unlock()
		return
	}
	if m.qNum >= m.cfg.QuestionsPerMatch || m.anyEliminatedLocked() {
		reason := ReasonCompleted
		if m.anyEliminatedLocked() {
			reason = ReasonLivesOut
		}
		m.mu.Unlock()
		m.End(context.Background(), reason)
		return
	}

	m.qNum++
	p := m.gen.Generate(problem.RandomOperation(), m.avgTierLocked())
	m.question = &p
	m.questionID = uuid.NewString()
	m.questionAt = m.now()
	for _, pl := range m.players {
		pl.answeredThis = false
	}
	qs := arenadto.QuestionStartPayload{
		QuestionID:     m.questionID,
		QuestionNumber: m.qNum,
		TotalQuestions: m.cfg.QuestionsPerMatch,
		Question:       p.Question,
		Operation:      p.Operation,
		MaxTimeSec:     int(m.cfg.QuestionTime / time.Second),
	}
	gen := m.bumpTimerLocked()
	m.timer = time.AfterFunc(m.cfg.QuestionTime, func() { m.questionTimeout(gen) })
	m.mu.Unlock()

	m.bc.Broadcast(m.ID, arenadto.Envelope{Event: arenadto.EventQuestionStart, Payload: qs})
	m.snapshot()
}

// SubmitAnswer grades one participant's answer against the server-held
// question. Elapsed time comes from the server-side question start; the
// client timestamp is informational only.
func (m *Match) SubmitAnswer(ctx context.Context, playerID string, answer int, clientTS int64) error {
	m.mu.Lock()
	p, ok := m.players[playerID]
	if !ok {
		m.mu.Unlock()
		return arenadto.DomainError{Code: arenadto.CodeNotInMatch, Message: "not a participant of this match"}
	}
	if m.phase == PhaseFinished {
		m.mu.Unlock()
		return arenadto.DomainError{Code: arenadto.CodeMatchFinished, Message: "match already finished"}
	}
	if m.phase != PhaseActive || m.question == nil {
		m.mu.Unlock()
		return arenadto.DomainError{Code: arenadto.CodeNoActiveQuestion, Message: "no question in play", Retryable: true}
	}
	if p.answeredThis {
		m.mu.Unlock()
		return arenadto.DomainError{Code: arenadto.CodeAlreadyAnswered, Message: "already answered this question"}
	}

	elapsed := m.now().Sub(m.questionAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > m.cfg.QuestionTime {
		elapsed = m.cfg.QuestionTime
	}

	correct := answer == m.question.Answer
	p.answeredThis = true
	p.Answered++
	p.totalTimeMs += elapsed.Milliseconds()
	st := p.perOp[m.question.Operation]
	st.Total++

	points := 0
	if correct {
		st.Correct++
		p.Correct++
		p.Streak++
		if p.Streak > p.BestStreak {
			p.BestStreak = p.Streak
		}
		ratio := 1 - float64(elapsed)/float64(m.cfg.QuestionTime)
		points = m.cfg.BasePoints + int(math.Round(float64(m.cfg.SpeedBonusMax)*ratio))
		p.Score += points
	} else {
		p.Streak = 0
		p.Lives--
		points = -m.cfg.WrongAnswerPoints
		p.Score += points
		if p.Score < 0 {
			p.Score = 0
		}
	}
	p.perOp[m.question.Operation] = st

	update := arenadto.MatchUpdatePayload{
		Players: m.statesLocked(),
		LastAction: arenadto.LastAction{
			PlayerID: playerID,
			Correct:  correct,
			Points:   points,
			TimeMs:   elapsed.Milliseconds(),
		},
	}
	endNow := false
	if m.allAnsweredLocked() {
		if m.anyEliminatedLocked() {
			// a life ran out: no next question, the match ends now
			endNow = true
			m.bumpTimerLocked()
		} else {
			gen := m.bumpTimerLocked()
			m.timer = time.AfterFunc(m.cfg.NextQuestionDelay, func() {
				if m.timerLive(gen, PhaseActive) {
					m.advance()
				}
			})
		}
	}
	m.mu.Unlock()

	m.bc.Broadcast(m.ID, arenadto.Envelope{Event: arenadto.EventMatchUpdate, Payload: update})
	m.snapshot()
	if endNow {
		m.End(ctx, ReasonLivesOut)
	}
	return nil
}

// questionTimeout marks every silent participant wrong and reveals the
// answer. A stale generation means a newer timer superseded this one.
func (m *Match) questionTimeout(gen int) {
	m.mu.Lock()
	if m.phase != PhaseActive || gen != m.timerGen || m.question == nil {
		m.mu.Unlock()
		return
	}
	answer := m.question.Answer
	op := m.question.Operation
	for _, id := range m.order {
		p := m.players[id]
		if p.answeredThis {
			continue
		}
		p.answeredThis = true
		p.Answered++
		p.totalTimeMs += m.cfg.QuestionTime.Milliseconds()
		st := p.perOp[op]
		st.Total++
		p.perOp[op] = st
		p.Streak = 0
		p.Lives--
		p.Score -= m.cfg.WrongAnswerPoints
		if p.Score < 0 {
			p.Score = 0
		}
	}
	update := arenadto.MatchUpdatePayload{Players: m.statesLocked()}
	endNow := m.anyEliminatedLocked()
	next := m.bumpTimerLocked()
	if !endNow {
		m.timer = time.AfterFunc(m.cfg.NextQuestionDelay, func() {
			if m.timerLive(next, PhaseActive) {
				m.advance()
			}
		})
	}
	m.mu.Unlock()

	m.bc.Broadcast(m.ID, arenadto.Envelope{
		Event:   arenadto.EventQuestionTimeout,
		Payload: arenadto.QuestionTimeoutPayload{CorrectAnswer: answer},
	})
	m.bc.Broadcast(m.ID, arenadto.Envelope{Event: arenadto.EventMatchUpdate, Payload: update})
	m.snapshot()
	if endNow {
		m.End(context.Background(), ReasonLivesOut)
	}
}

// IsOver reports whether any participant is eliminated or the question budget
// is spent.
func (m *Match) IsOver() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == PhaseFinished || m.anyEliminatedLocked() || m.qNum >= m.cfg.QuestionsPerMatch
}

// HandleDisconnect forfeits the leaver and ends the match immediately.
// Pending matches have nothing to forfeit yet.
func (m *Match) HandleDisconnect(ctx context.Context, playerID string) {
	m.mu.Lock()
	p, ok := m.players[playerID]
	if !ok || m.phase == PhasePending || m.phase == PhaseFinished {
		m.mu.Unlock()
		return
	}
	p.Forfeited = true
	p.Lives = 0
	m.mu.Unlock()

	obslog.L().Info("match_forfeit", zap.String("match_id", m.ID), zap.String("player_id", playerID))
	m.End(ctx, ReasonDisconnect)
}

// End finishes the match exactly once: cancels timers, ranks participants,
// computes Elo deltas against the start-of-match snapshots, broadcasts
// GAME_OVER and hands the result to the finish hook.
func (m *Match) End(ctx context.Context, reason string) {
	m.mu.Lock()
	if m.phase == PhaseFinished {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseFinished
	m.bumpTimerLocked()
	m.question = nil
	res := m.computeResultLocked(reason)
	over := m.gameOverLocked(res)
	m.mu.Unlock()

	obslog.L().Info("match_end",
		zap.String("match_id", m.ID),
		zap.String("reason", reason),
		zap.String("winner", res.WinnerID),
		zap.Bool("draw", res.Draw),
		zap.Int("questions", res.Questions),
	)
	m.bc.Broadcast(m.ID, arenadto.Envelope{Event: arenadto.EventGameOver, Payload: over})
	if m.onFinish != nil {
		m.onFinish(res)
	}
}

// computeResultLocked ranks the two participants: a forfeiter loses, zero
// lives ranks below remaining lives, then score, then lives; full ties draw.
func (m *Match) computeResultLocked(reason string) *Result {
	a := m.players[m.order[0]]
	b := m.players[m.order[1]]

	var winner, loser *Participant
	draw := false
	switch {
	case a.Forfeited && !b.Forfeited:
		winner, loser = b, a
	case b.Forfeited && !a.Forfeited:
		winner, loser = a, b
	case a.Lives <= 0 && b.Lives > 0:
		winner, loser = b, a
	case b.Lives <= 0 && a.Lives > 0:
		winner, loser = a, b
	case a.Score != b.Score:
		winner, loser = a, b
		if b.Score > a.Score {
			winner, loser = b, a
		}
	case a.Lives != b.Lives:
		winner, loser = a, b
		if b.Lives > a.Lives {
			winner, loser = b, a
		}
	default:
		draw = true
	}

	res := &Result{
		MatchID:      m.ID,
		Draw:         draw,
		Forfeit:      a.Forfeited || b.Forfeited,
		Reason:       reason,
		Questions:    m.qNum,
		DurationMs:   m.now().Sub(m.startedAt).Milliseconds(),
		Participants: []*Participant{a, b},
		EloDeltas:    make(map[string]int, 2),
		PerOpDeltas:  make(map[string]map[string]int, 2),
		Performance:  make(map[string]float64, 2),
		Recommends:   make(map[string]rating.Recommendation, 2),
	}
	if !draw {
		res.WinnerID = winner.ID
		res.LoserID = loser.ID
	}

	maxMs := m.cfg.QuestionTime.Milliseconds()
	for _, p := range res.Participants {
		other := a
		if p == a {
			other = b
		}
		won := !draw && p.ID == res.WinnerID
		delta := m.deltaFor(p, other, won, draw)
		res.EloDeltas[p.ID] = delta

		perOp := make(map[string]int, len(p.perOp))
		for op, st := range p.perOp {
			if st.Total > 0 {
				perOp[op] = delta
			}
		}
		res.PerOpDeltas[p.ID] = perOp

		stats := p.matchStats(won, maxMs)
		res.Performance[p.ID] = m.rp.PerformanceScore(stats)
		res.Recommends[p.ID] = m.rp.Recommend(stats)
	}
	return res
}

func (m *Match) deltaFor(self, other *Participant, won, draw bool) int {
	if draw {
		d := m.rp.DrawDelta(self.EloBefore, other.EloBefore, self.Confidence)
		if self.Placement {
			d = int(math.Round(float64(d) * m.rp.PlacementKFactor))
		}
		return d
	}
	if self.Placement {
		return m.rp.PlacementDelta(self.EloBefore, other.EloBefore, self.Confidence, won)
	}
	return m.rp.EloDelta(self.EloBefore, other.EloBefore, self.Confidence, won)
}

func (m *Match) gameOverLocked(res *Result) arenadto.GameOverPayload {
	recs := make(map[string]arenadto.Recommend, len(res.Recommends))
	for id, r := range res.Recommends {
		if r.Severity != rating.SeverityNone {
			recs[id] = arenadto.Recommend{
				Severity:   r.Severity,
				Operation:  r.Operation,
				AccuracyPc: int(math.Round(r.Accuracy * 100)),
			}
		}
	}
	return arenadto.GameOverPayload{
		Winner:      res.WinnerID,
		Loser:       res.LoserID,
		IsDraw:      res.Draw,
		Forfeit:     res.Forfeit,
		FinalScores: m.statesLocked(),
		EloDeltas:   res.EloDeltas,
		Performance: res.Performance,
		Recommends:  recs,
		DurationMs:  res.DurationMs,
	}
}

// helpers, caller holds m.mu unless noted

func (m *Match) bumpTimerLocked() int {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
	return m.timerGen
}

func (m *Match) timerLive(gen int, phase Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == phase && gen == m.timerGen
}

func (m *Match) anyEliminatedLocked() bool {
	for _, p := range m.players {
		if p.Lives <= 0 {
			return true
		}
	}
	return false
}

func (m *Match) allAnsweredLocked() bool {
	for _, p := range m.players {
		if !p.answeredThis {
			return false
		}
	}
	return true
}

func (m *Match) avgTierLocked() int {
	sum := 0
	for _, p := range m.players {
		sum += p.Tier
	}
	return sum / len(m.players)
}

func (m *Match) statesLocked() []arenadto.ParticipantState {
	out := make([]arenadto.ParticipantState, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.players[id].state())
	}
	return out
}

func (m *Match) briefsLocked() []arenadto.PlayerBrief {
	out := make([]arenadto.PlayerBrief, 0, len(m.order))
	for _, id := range m.order {
		p := m.players[id]
		out = append(out, arenadto.PlayerBrief{ID: p.ID, Name: p.Name, Tier: p.Tier, Elo: p.EloBefore})
	}
	return out
}

// snapshot publishes the redis mirror outside the lock.
func (m *Match) snapshot() {
	if m.mirror == nil {
		return
	}
	m.mu.Lock()
	snap := &Snapshot{
		ID:             m.ID,
		Phase:          m.phase,
		QuestionNumber: m.qNum,
		TotalQuestions: m.cfg.QuestionsPerMatch,
		Players:        m.statesLocked(),
		StartedAt:      m.startedAt,
		UpdatedAt:      m.now(),
	}
	m.mu.Unlock()
	m.mirror(snap)
}
