package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gamechiefx/flashmath-sub004/internal/problem"
	"github.com/Gamechiefx/flashmath-sub004/internal/queue"
	"github.com/Gamechiefx/flashmath-sub004/internal/rating"
	"github.com/Gamechiefx/flashmath-sub004/internal/ratingstore"
	"github.com/Gamechiefx/flashmath-sub004/pkg/arenadto"
)

type stubGen struct{}

func (stubGen) Generate(operation string, tier int) problem.Problem {
	return problem.Problem{Question: "2 + 2", Answer: 4, Operation: "addition"}
}

type recorder struct {
	mu     sync.Mutex
	events []arenadto.Envelope
}

func (r *recorder) Broadcast(matchID string, env arenadto.Envelope) {
	r.mu.Lock()
	r.events = append(r.events, env)
	r.mu.Unlock()
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

// waitFor polls until at least n events of the given name arrived.
func (r *recorder) waitFor(t *testing.T, event string, n int) arenadto.Envelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		seen := 0
		for _, e := range r.events {
			if e.Event == event {
				seen++
				if seen >= n {
					r.mu.Unlock()
					return e
				}
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event %s (#%d) never arrived", event, n)
	return arenadto.Envelope{}
}

func fastConfig() Config {
	return Config{
		QuestionsPerMatch: 3,
		StartingLives:     2,
		QuestionTime:      2 * time.Second,
		CountdownSec:      0,
		NextQuestionDelay: 20 * time.Millisecond,
		BasePoints:        100,
		SpeedBonusMax:     50,
		WrongAnswerPoints: 25,
		StateTTL:          time.Hour,
	}
}

func twoPlayers() []*Participant {
	return []*Participant{
		{ID: "alice", Name: "alice", Tier: 45, EloBefore: 1000, Confidence: 0.9},
		{ID: "bob", Name: "bob", Tier: 46, EloBefore: 1000, Confidence: 0.9},
	}
}

func startedMatch(t *testing.T, cfg Config) (*Match, *recorder) {
	t.Helper()
	rec := &recorder{}
	m := newMatch("m1", twoPlayers(), cfg, rating.DefaultParams(), stubGen{}, rec)
	m.Start(context.Background())
	rec.waitFor(t, arenadto.EventQuestionStart, 1)
	return m, rec
}

func TestCorrectAnswerScoresAndAdvances(t *testing.T) {
	m, rec := startedMatch(t, fastConfig())
	ctx := context.Background()

	if err := m.SubmitAnswer(ctx, "alice", 4, 0); err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	env := rec.waitFor(t, arenadto.EventMatchUpdate, 1)
	up := env.Payload.(arenadto.MatchUpdatePayload)
	if !up.LastAction.Correct || up.LastAction.Points < 100 {
		t.Fatalf("correct answer must score at least base points, got %+v", up.LastAction)
	}
	if up.Players[0].Streak != 1 || up.Players[0].Lives != 2 {
		t.Fatalf("unexpected state after correct answer: %+v", up.Players[0])
	}

	if err := m.SubmitAnswer(ctx, "bob", 4, 0); err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	q2 := rec.waitFor(t, arenadto.EventQuestionStart, 2)
	if q2.Payload.(arenadto.QuestionStartPayload).QuestionNumber != 2 {
		t.Fatalf("expected question 2 after both answered")
	}
}

func TestWrongAnswerCostsLifeAndFloorsScore(t *testing.T) {
	m, rec := startedMatch(t, fastConfig())

	if err := m.SubmitAnswer(context.Background(), "alice", 99, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	up := rec.waitFor(t, arenadto.EventMatchUpdate, 1).Payload.(arenadto.MatchUpdatePayload)
	if up.Players[0].Lives != 1 {
		t.Fatalf("wrong answer must cost a life, got %d", up.Players[0].Lives)
	}
	if up.Players[0].Score != 0 {
		t.Fatalf("score floors at zero, got %d", up.Players[0].Score)
	}
}

func TestSubmitValidation(t *testing.T) {
	m, _ := startedMatch(t, fastConfig())
	ctx := context.Background()

	var derr arenadto.DomainError
	if err := m.SubmitAnswer(ctx, "ghost", 4, 0); !errors.As(err, &derr) || derr.Code != arenadto.CodeNotInMatch {
		t.Fatalf("expected NOT_IN_MATCH, got %v", err)
	}
	if err := m.SubmitAnswer(ctx, "alice", 4, 0); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := m.SubmitAnswer(ctx, "alice", 4, 0); !errors.As(err, &derr) || derr.Code != arenadto.CodeAlreadyAnswered {
		t.Fatalf("expected ALREADY_ANSWERED, got %v", err)
	}
	m.End(ctx, ReasonCompleted)
	if err := m.SubmitAnswer(ctx, "bob", 4, 0); !errors.As(err, &derr) || derr.Code != arenadto.CodeMatchFinished {
		t.Fatalf("expected MATCH_FINISHED, got %v", err)
	}

	cfg := fastConfig()
	cfg.CountdownSec = 30
	counting := newMatch("m2", twoPlayers(), cfg, rating.DefaultParams(), stubGen{}, &recorder{})
	counting.Start(ctx)
	if err := counting.SubmitAnswer(ctx, "alice", 4, 0); !errors.As(err, &derr) || derr.Code != arenadto.CodeNoActiveQuestion {
		t.Fatalf("expected NO_ACTIVE_QUESTION during countdown, got %v", err)
	}
	counting.End(ctx, ReasonCompleted)
}

func TestQuestionTimeoutMarksSilentWrong(t *testing.T) {
	cfg := fastConfig()
	cfg.QuestionTime = 100 * time.Millisecond
	_, rec := startedMatch(t, cfg)

	env := rec.waitFor(t, arenadto.EventQuestionTimeout, 1)
	if env.Payload.(arenadto.QuestionTimeoutPayload).CorrectAnswer != 4 {
		t.Fatalf("timeout must reveal the answer")
	}
	up := rec.waitFor(t, arenadto.EventMatchUpdate, 1).Payload.(arenadto.MatchUpdatePayload)
	for _, p := range up.Players {
		if p.Lives != 1 {
			t.Fatalf("silent participant keeps lives: %+v", p)
		}
	}
}

func TestAllAnsweredSupersedesTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.QuestionTime = time.Hour // the timeout must never fire on its own
	m, rec := startedMatch(t, cfg)
	ctx := context.Background()

	if err := m.SubmitAnswer(ctx, "alice", 4, 0); err != nil { t.Fatal(err) }
	if err := m.SubmitAnswer(ctx, "bob", 99, 0); err != nil { t.Fatal(err) }

	rec.waitFor(t, arenadto.EventQuestionStart, 2)
	if rec.count(arenadto.EventQuestionTimeout) != 0 {
		t.Fatalf("timeout fired despite all answers being in")
	}
}

func TestLivesOutEndsMatch(t *testing.T) {
	cfg := fastConfig()
	cfg.StartingLives = 1
	cfg.QuestionTime = time.Hour
	m, rec := startedMatch(t, cfg)
	ctx := context.Background()

	if err := m.SubmitAnswer(ctx, "alice", 4, 0); err != nil { t.Fatal(err) }
	if err := m.SubmitAnswer(ctx, "bob", 99, 0); err != nil { t.Fatal(err) }

	over := rec.waitFor(t, arenadto.EventGameOver, 1).Payload.(arenadto.GameOverPayload)
	if over.Winner != "alice" || over.Loser != "bob" || over.IsDraw {
		t.Fatalf("alice must win on lives: %+v", over)
	}
	if over.EloDeltas["alice"]+over.EloDeltas["bob"] != 0 {
		t.Fatalf("equal-elo deltas must be zero-sum: %v", over.EloDeltas)
	}
	if over.EloDeltas["alice"] <= 0 {
		t.Fatalf("winner delta must be positive: %v", over.EloDeltas)
	}
}

func TestEndIdempotent(t *testing.T) {
	m, rec := startedMatch(t, fastConfig())
	ctx := context.Background()

	finished := 0
	m.onFinish = func(*Result) { finished++ }
	m.End(ctx, ReasonCompleted)
	m.End(ctx, ReasonCompleted)

	if n := rec.count(arenadto.EventGameOver); n != 1 {
		t.Fatalf("GAME_OVER broadcast %d times", n)
	}
	if finished != 1 {
		t.Fatalf("finish hook ran %d times", finished)
	}
}

func TestDisconnectForfeits(t *testing.T) {
	m, rec := startedMatch(t, fastConfig())

	m.HandleDisconnect(context.Background(), "bob")
	over := rec.waitFor(t, arenadto.EventGameOver, 1).Payload.(arenadto.GameOverPayload)
	if !over.Forfeit || over.Winner != "alice" {
		t.Fatalf("disconnect must forfeit bob: %+v", over)
	}
}

func TestDrawOnFullTie(t *testing.T) {
	cfg := fastConfig()
	cfg.QuestionsPerMatch = 1
	cfg.QuestionTime = time.Hour
	m, rec := startedMatch(t, cfg)
	ctx := context.Background()

	// identical wrong answers at identical cost leave a full tie
	if err := m.SubmitAnswer(ctx, "alice", 99, 0); err != nil { t.Fatal(err) }
	if err := m.SubmitAnswer(ctx, "bob", 99, 0); err != nil { t.Fatal(err) }

	over := rec.waitFor(t, arenadto.EventGameOver, 1).Payload.(arenadto.GameOverPayload)
	if !over.IsDraw || over.Winner != "" {
		t.Fatalf("expected a draw: %+v", over)
	}
}

func TestServicePersistsOutcome(t *testing.T) {
	repo := ratingstore.NewMemory()
	rec := &recorder{}
	cfg := fastConfig()
	cfg.StartingLives = 1
	cfg.QuestionTime = time.Hour
	svc := NewService(cfg, rating.DefaultParams(), stubGen{}, repo, nil, rec, nil)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob"} {
		if _, err := repo.GetOrCreate(ctx, id, id, ratingstore.Defaults{Elo: 1000, Tier: 45}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	prop := queue.Proposal{
		MatchID: "m-svc",
		Players: []queue.Entry{
			{PlayerID: "alice", Name: "alice", Tier: 45, Elo: 1000, Confidence: 0.9},
			{PlayerID: "bob", Name: "bob", Tier: 45, Elo: 1000, Confidence: 0.9},
		},
	}
	m, err := svc.Launch(ctx, prop)
	if err != nil { t.Fatalf("Launch: %v", err) }
	if !svc.InMatch("alice") || svc.ActiveCount() != 1 {
		t.Fatalf("launch must register both players")
	}

	rec.waitFor(t, arenadto.EventQuestionStart, 1)
	if err := m.SubmitAnswer(ctx, "alice", 4, 0); err != nil { t.Fatal(err) }
	if err := m.SubmitAnswer(ctx, "bob", 99, 0); err != nil { t.Fatal(err) }
	rec.waitFor(t, arenadto.EventGameOver, 1)

	deadline := time.Now().Add(3 * time.Second)
	for svc.ActiveCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if svc.ActiveCount() != 0 {
		t.Fatalf("finished match must be released")
	}

	alice, err := repo.Get(ctx, "alice")
	if err != nil { t.Fatalf("Get alice: %v", err) }
	bob, err := repo.Get(ctx, "bob")
	if err != nil { t.Fatalf("Get bob: %v", err) }
	if alice.Wins != 1 || bob.Losses != 1 || alice.MatchCount != 1 {
		t.Fatalf("bookkeeping wrong: alice=%+v bob=%+v", alice, bob)
	}
	if alice.Elo <= 1000 || bob.Elo >= 1000 {
		t.Fatalf("elo must move toward the winner: alice=%d bob=%d", alice.Elo, bob.Elo)
	}
	if alice.Rank.League == "" {
		t.Fatalf("rank must be derived after the match")
	}
}

func TestEliminationEndsWithoutNextQuestionDelay(t *testing.T) {
	cfg := fastConfig()
	cfg.StartingLives = 1
	cfg.QuestionTime = time.Hour
	cfg.NextQuestionDelay = time.Hour
	m, rec := startedMatch(t, cfg)
	ctx := context.Background()

	if err := m.SubmitAnswer(ctx, "alice", 4, 0); err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if err := m.SubmitAnswer(ctx, "bob", 99, 0); err != nil {
		t.Fatalf("bob submit: %v", err)
	}

	// bob is out of lives; the end must not wait out the question delay
	env := rec.waitFor(t, arenadto.EventGameOver, 1)
	over := env.Payload.(arenadto.GameOverPayload)
	if over.Winner != "alice" || over.Loser != "bob" {
		t.Fatalf("unexpected outcome: %+v", over)
	}
}

func TestTierAdvancesAfterSessionCappedAtCheckpoint(t *testing.T) {
	repo := ratingstore.NewMemory()
	rec := &recorder{}
	cfg := fastConfig()
	cfg.QuestionsPerMatch = 10
	cfg.StartingLives = 20
	cfg.QuestionTime = time.Hour
	svc := NewService(cfg, rating.DefaultParams(), stubGen{}, repo, nil, rec, nil)
	ctx := context.Background()

	if _, err := repo.GetOrCreate(ctx, "alice", "alice", ratingstore.Defaults{Elo: 1000, Tier: 49}); err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	if _, err := repo.GetOrCreate(ctx, "bob", "bob", ratingstore.Defaults{Elo: 1000, Tier: 45}); err != nil {
		t.Fatalf("seed bob: %v", err)
	}

	prop := queue.Proposal{
		MatchID: "m-tier",
		Players: []queue.Entry{
			{PlayerID: "alice", Name: "alice", Tier: 49, Elo: 1000, Confidence: 0.9},
			{PlayerID: "bob", Name: "bob", Tier: 45, Elo: 1000, Confidence: 0.9},
		},
	}
	m, err := svc.Launch(ctx, prop)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	// alice clears every question, bob misses every one
	for q := 1; q <= cfg.QuestionsPerMatch; q++ {
		rec.waitFor(t, arenadto.EventQuestionStart, q)
		if err := m.SubmitAnswer(ctx, "alice", 4, 0); err != nil {
			t.Fatalf("alice q%d: %v", q, err)
		}
		if err := m.SubmitAnswer(ctx, "bob", 99, 0); err != nil {
			t.Fatalf("bob q%d: %v", q, err)
		}
	}
	rec.waitFor(t, arenadto.EventGameOver, 1)

	deadline := time.Now().Add(3 * time.Second)
	for svc.ActiveCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	alice, err := repo.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get alice: %v", err)
	}
	bob, err := repo.Get(ctx, "bob")
	if err != nil {
		t.Fatalf("Get bob: %v", err)
	}
	// perfect accuracy and a 10-streak grade as +3, but 50 is a mastery gate
	if alice.Tier != 50 {
		t.Fatalf("alice tier must stop at the checkpoint, got %d", alice.Tier)
	}
	if bob.Tier != 45 {
		t.Fatalf("bob answered nothing right, tier must hold: got %d", bob.Tier)
	}
}
