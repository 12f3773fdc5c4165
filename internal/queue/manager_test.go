package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Gamechiefx/flashmath-sub004/internal/guard"
	"github.com/Gamechiefx/flashmath-sub004/internal/ratingstore"
	"github.com/Gamechiefx/flashmath-sub004/pkg/arenadto"
)

func testConfig() Config {
	return Config{
		InitialWindow:    100,
		WindowIncrement:  50,
		WindowInterval:   10 * time.Second,
		MaxWindow:        400,
		MaxTierDiff:      20,
		TierWeight:       10,
		NewPlayerGames:   10,
		NewPlayerPenalty: 200,
		MaxWait:          2 * time.Minute,
		DefaultElo:       1000,
		DefaultTier:      1,
	}
}

func newTestManager(t *testing.T) (*Manager, ratingstore.Repository, *guard.TiltTracker) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil { t.Fatalf("miniredis: %v", err) }
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := ratingstore.NewMemory()
	tilt := guard.NewTiltTracker(rdb, 0)
	m := NewManager(testConfig(), guard.DefaultParams(), tilt, repo, NewStore(rdb, 0))
	return m, repo, tilt
}

func seedPlayer(t *testing.T, repo ratingstore.Repository, id string, sessions int) {
	t.Helper()
	ctx := context.Background()
	if _, err := repo.GetOrCreate(ctx, id, id, ratingstore.Defaults{Elo: 1000, Tier: 1}); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	for i := 0; i < sessions; i++ {
		if err := repo.RecordPracticeSession(ctx, id); err != nil { t.Fatalf("RecordPracticeSession: %v", err) }
	}
}

// put injects a waiting entry directly, bypassing the gates, to exercise the
// search logic with controlled snapshots.
func put(m *Manager, e *Entry) {
	m.mu.Lock()
	m.waiting[e.PlayerID] = e
	m.mu.Unlock()
}

func TestJoinConfidenceGate(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()
	seedPlayer(t, repo, "fresh", 0)

	_, _, err := m.Join(ctx, JoinRequest{PlayerID: "fresh", Name: "fresh"})
	var gate arenadto.GateError
	if !errors.As(err, &gate) || gate.Code != arenadto.CodeInsufficientPractice {
		t.Fatalf("expected INSUFFICIENT_PRACTICE, got %v", err)
	}
	if gate.Remediation.SessionsNeeded <= 0 {
		t.Fatalf("expected a sessions-needed hint, got %+v", gate.Remediation)
	}
}

func TestJoinTiltGate(t *testing.T) {
	m, repo, tilt := newTestManager(t)
	ctx := context.Background()
	seedPlayer(t, repo, "tilted", 20)
	for i := 0; i < guard.DefaultParams().TiltThreshold; i++ {
		if _, err := tilt.RecordLoss(ctx, "tilted"); err != nil { t.Fatalf("RecordLoss: %v", err) }
	}

	_, _, err := m.Join(ctx, JoinRequest{PlayerID: "tilted", Name: "tilted"})
	var gate arenadto.GateError
	if !errors.As(err, &gate) || gate.Code != arenadto.CodeTiltProtection {
		t.Fatalf("expected TILT_PROTECTION, got %v", err)
	}
	if gate.Remediation.BreakMinutes <= 0 {
		t.Fatalf("expected a break hint, got %+v", gate.Remediation)
	}
}

func TestJoinDuplicateRejected(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()
	seedPlayer(t, repo, "p1", 20)

	if _, _, err := m.Join(ctx, JoinRequest{PlayerID: "p1", Name: "p1"}); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, _, err := m.Join(ctx, JoinRequest{PlayerID: "p1", Name: "p1"}); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
}

func TestImmediateMatchAndQualityScore(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	put(m, &Entry{PlayerID: "cand", Tier: 46, Elo: 1020, MatchCount: 20, JoinedAt: now})
	put(m, &Entry{PlayerID: "seek", Tier: 45, Elo: 1000, MatchCount: 20, JoinedAt: now})

	p, err := m.FindMatch(ctx, "seek")
	if err != nil || p == nil {
		t.Fatalf("expected immediate match: p=%v err=%v", p, err)
	}
	// |45-46|*10 + |1000-1020| = 30
	if p.Quality != 30 {
		t.Fatalf("quality score = %d, want 30", p.Quality)
	}
	if len(m.waitingIDs()) != 0 {
		t.Fatalf("both entries must leave the queue, still waiting: %v", m.waitingIDs())
	}
}

func TestTierGateNeverMatches(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	old := time.Now().Add(-time.Hour) // far beyond every window cap

	put(m, &Entry{PlayerID: "low", Tier: 10, Elo: 1000, JoinedAt: old})
	put(m, &Entry{PlayerID: "high", Tier: 80, Elo: 1000, JoinedAt: old})

	p, err := m.FindMatch(ctx, "low")
	if err != nil { t.Fatalf("FindMatch: %v", err) }
	if p != nil {
		t.Fatalf("tier gap beyond tolerance must never match, got %+v", p)
	}
}

func TestEloWindowWidensWithWait(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	// 250 apart: outside the initial 100 window, inside 100+3*50=250
	put(m, &Entry{PlayerID: "a", Tier: 50, Elo: 1000, MatchCount: 20, JoinedAt: now})
	put(m, &Entry{PlayerID: "b", Tier: 50, Elo: 1250, MatchCount: 20, JoinedAt: now})

	if p, _ := m.FindMatch(ctx, "a"); p != nil {
		t.Fatalf("fresh entries must not match across 250 elo, got %+v", p)
	}

	m.now = func() time.Time { return now.Add(31 * time.Second) }
	p, err := m.FindMatch(ctx, "a")
	if err != nil || p == nil {
		t.Fatalf("widened window must match: p=%v err=%v", p, err)
	}
}

func TestEloBeyondMaxWindowNeverMatches(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	put(m, &Entry{PlayerID: "a", Tier: 50, Elo: 1000, JoinedAt: now})
	put(m, &Entry{PlayerID: "b", Tier: 50, Elo: 1500, JoinedAt: now})

	m.now = func() time.Time { return now.Add(24 * time.Hour) }
	if p, _ := m.FindMatch(ctx, "a"); p != nil {
		t.Fatalf("elo gap beyond the window cap must never match, got %+v", p)
	}
}

func TestNewPlayerPenaltyPrefersPeers(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	// veteran is numerically closer, but carries the mixed-experience penalty
	put(m, &Entry{PlayerID: "veteran", Tier: 50, Elo: 1010, MatchCount: 100, JoinedAt: now})
	put(m, &Entry{PlayerID: "rookie2", Tier: 50, Elo: 1080, MatchCount: 2, JoinedAt: now.Add(time.Millisecond)})
	put(m, &Entry{PlayerID: "rookie1", Tier: 50, Elo: 1000, MatchCount: 1, JoinedAt: now.Add(2 * time.Millisecond)})

	p, err := m.FindMatch(ctx, "rookie1")
	if err != nil || p == nil {
		t.Fatalf("expected a match: %v", err)
	}
	if p.Players[1].PlayerID != "rookie2" {
		t.Fatalf("rookie must pair with rookie, got %s", p.Players[1].PlayerID)
	}
}

func TestPositionFIFO(t *testing.T) {
	m, _, _ := newTestManager(t)
	now := time.Now()
	put(m, &Entry{PlayerID: "first", Tier: 5, Elo: 5000, JoinedAt: now})
	put(m, &Entry{PlayerID: "second", Tier: 95, Elo: 100, JoinedAt: now.Add(time.Second)})

	if pos, err := m.Position("first"); err != nil || pos != 1 {
		t.Fatalf("first position = %d err=%v", pos, err)
	}
	if pos, err := m.Position("second"); err != nil || pos != 2 {
		t.Fatalf("second position = %d err=%v", pos, err)
	}
	if _, err := m.Position("ghost"); !errors.Is(err, ErrNotQueued) {
		t.Fatalf("expected ErrNotQueued, got %v", err)
	}
}

func TestSweepTimesOutStaleEntries(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	now := time.Now()
	put(m, &Entry{PlayerID: "stale", Tier: 5, Elo: 5000, JoinedAt: now.Add(-3 * time.Minute)})
	put(m, &Entry{PlayerID: "fresh", Tier: 95, Elo: 100, JoinedAt: now})

	expired := m.Sweep(ctx)
	if len(expired) != 1 || expired[0].PlayerID != "stale" {
		t.Fatalf("expected only the stale entry to expire, got %v", expired)
	}
	if _, err := m.Position("fresh"); err != nil {
		t.Fatalf("fresh entry must survive the sweep: %v", err)
	}
}

func TestStatsBuckets(t *testing.T) {
	m, _, _ := newTestManager(t)
	now := time.Now()
	put(m, &Entry{PlayerID: "a", Tier: 45, Elo: 1000, JoinedAt: now})
	put(m, &Entry{PlayerID: "b", Tier: 46, Elo: 9000, JoinedAt: now})
	put(m, &Entry{PlayerID: "c", Tier: 3, Elo: 1000, JoinedAt: now})

	s := m.Stats()
	if s.Waiting != 3 {
		t.Fatalf("waiting = %d, want 3", s.Waiting)
	}
	if s.ByTier["41-50"] != 2 || s.ByTier["1-10"] != 1 {
		t.Fatalf("unexpected buckets: %v", s.ByTier)
	}
}

func TestNormalizeTier(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"45", 45},
		{"0", 1},
		{"250", 100},
		{`{"tier": 62}`, 62},
		{`{"level": 0}`, 10},
		{`{"level": 4}`, 90},
		{`{"level": 9}`, 90},
		{`"garbage"`, 33},
		{"", 33},
	}
	for _, c := range cases {
		var raw json.RawMessage
		if c.raw != "" {
			raw = json.RawMessage(c.raw)
		}
		if got := NormalizeTier(raw, 33); got != c.want {
			t.Fatalf("NormalizeTier(%q) = %d, want %d", c.raw, got, c.want)
		}
	}
}
