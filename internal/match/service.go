package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Gamechiefx/flashmath-sub004/internal/guard"
	"github.com/Gamechiefx/flashmath-sub004/internal/obslog"
	"github.com/Gamechiefx/flashmath-sub004/internal/problem"
	"github.com/Gamechiefx/flashmath-sub004/internal/queue"
	"github.com/Gamechiefx/flashmath-sub004/internal/rating"
	"github.com/Gamechiefx/flashmath-sub004/internal/ratingstore"
	"github.com/Gamechiefx/flashmath-sub004/pkg/arenadto"
)

// Service owns every live match in this process: creation from queue
// proposals, answer routing, disconnect handling and end-of-match
// persistence.
type Service struct {
	cfg   Config
	rp    rating.Params
	gen   problem.Generator
	repo  ratingstore.Repository
	tilt  *guard.TiltTracker
	bc    Broadcaster
	store *Store

	mu       sync.Mutex
	matches  map[string]*Match
	byPlayer map[string]string
}

func NewService(cfg Config, rp rating.Params, gen problem.Generator, repo ratingstore.Repository, tilt *guard.TiltTracker, bc Broadcaster, store *Store) *Service {
	return &Service{
		cfg:      cfg,
		rp:       rp,
		gen:      gen,
		repo:     repo,
		tilt:     tilt,
		bc:       bc,
		store:    store,
		matches:  make(map[string]*Match),
		byPlayer: make(map[string]string),
	}
}

// Launch builds a match from a queue proposal, announces MATCH_FOUND and
// starts the countdown.
func (s *Service) Launch(ctx context.Context, prop queue.Proposal) (*Match, error) {
	if len(prop.Players) != 2 {
		return nil, fmt.Errorf("proposal needs two players, got %d", len(prop.Players))
	}

	parts := make([]*Participant, 0, len(prop.Players))
	for _, e := range prop.Players {
		parts = append(parts, &Participant{
			ID:         e.PlayerID,
			Name:       e.Name,
			Tier:       e.Tier,
			EloBefore:  e.Elo,
			Confidence: e.Confidence,
			Placement:  e.Placement,
		})
	}

	m := newMatch(prop.MatchID, parts, s.cfg, s.rp, s.gen, s.bc)
	m.onFinish = s.finish
	m.mirror = func(snap *Snapshot) {
		if err := s.store.Save(context.Background(), snap); err != nil {
			obslog.L().Warn("match_mirror_error", zap.String("match_id", snap.ID), zap.Error(err))
		}
	}

	s.mu.Lock()
	for _, p := range parts {
		if _, busy := s.byPlayer[p.ID]; busy {
			s.mu.Unlock()
			return nil, fmt.Errorf("player %s already in a live match", p.ID)
		}
	}
	s.matches[m.ID] = m
	for _, p := range parts {
		s.byPlayer[p.ID] = m.ID
	}
	s.mu.Unlock()

	s.bc.Broadcast(m.ID, arenadto.Envelope{
		Event: arenadto.EventMatchFound,
		Payload: arenadto.MatchFoundPayload{
			MatchID: m.ID,
			Players: m.briefs(),
		},
	})
	obslog.L().Info("match_launch",
		zap.String("match_id", m.ID),
		zap.String("p1", parts[0].ID),
		zap.String("p2", parts[1].ID),
		zap.Int("quality", prop.Quality),
	)
	m.Start(ctx)
	return m, nil
}

// SubmitAnswer routes an answer to the player's live match.
func (s *Service) SubmitAnswer(ctx context.Context, playerID string, answer int, clientTS int64) error {
	m := s.byPlayerID(playerID)
	if m == nil {
		return arenadto.DomainError{Code: arenadto.CodeNotInMatch, Message: "no live match for player"}
	}
	return m.SubmitAnswer(ctx, playerID, answer, clientTS)
}

// HandleDisconnect forfeits the player's live match, if any.
func (s *Service) HandleDisconnect(ctx context.Context, playerID string) {
	if m := s.byPlayerID(playerID); m != nil {
		m.HandleDisconnect(ctx, playerID)
	}
}

// InMatch reports whether the player participates in a live match.
func (s *Service) InMatch(playerID string) bool {
	return s.byPlayerID(playerID) != nil
}

func (s *Service) Get(matchID string) *Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches[matchID]
}

func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches)
}

// ActiveSnapshots lists the mirrored live matches for the admin API.
func (s *Service) ActiveSnapshots(ctx context.Context) ([]*Snapshot, error) {
	return s.store.ListActive(ctx)
}

func (s *Service) byPlayerID(playerID string) *Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPlayer[playerID]
	if !ok {
		return nil
	}
	return s.matches[id]
}

// finish persists the result and releases the room. It runs after GAME_OVER
// has already been delivered; persistence failure never touches live state.
func (s *Service) finish(res *Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.mu.Lock()
	delete(s.matches, res.MatchID)
	for _, p := range res.Participants {
		delete(s.byPlayer, p.ID)
	}
	s.mu.Unlock()

	if err := s.store.Remove(ctx, res.MatchID); err != nil {
		obslog.L().Warn("match_mirror_remove_error", zap.String("match_id", res.MatchID), zap.Error(err))
	}

	hist, outcomes := s.buildOutcome(res)
	if err := s.repo.ApplyMatchOutcome(ctx, hist, outcomes, s.rp.EloFloor); err != nil {
		obslog.L().Error("match_persist_error", zap.String("match_id", res.MatchID), zap.Error(err))
		// one out-of-band retry, then give up; the result was already delivered
		go func() {
			time.Sleep(2 * time.Second)
			rctx, rcancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer rcancel()
			if rerr := s.repo.ApplyMatchOutcome(rctx, hist, outcomes, s.rp.EloFloor); rerr != nil {
				obslog.L().Error("match_persist_retry_error", zap.String("match_id", res.MatchID), zap.Error(rerr))
			}
		}()
	}

	s.recordStreaks(ctx, res)
	s.advanceTiers(ctx, res)
	s.refreshRanks(ctx, res)
}

// advanceTiers grades each participant's session: 0-3 levels by
// accuracy+streak thresholds, never past the next mastery checkpoint.
// Forfeiters and silent participants stay where they are.
func (s *Service) advanceTiers(ctx context.Context, res *Result) {
	for _, p := range res.Participants {
		if p.Forfeited || p.Answered == 0 {
			continue
		}
		acc := float64(p.Correct) / float64(p.Answered)
		next := rating.AdvanceTier(p.Tier, acc, p.BestStreak)
		if next == p.Tier {
			continue
		}
		if err := s.repo.UpdateTier(ctx, p.ID, next); err != nil {
			obslog.L().Warn("tier_update_error", zap.String("player_id", p.ID), zap.Error(err))
			continue
		}
		obslog.L().Info("tier_advance",
			zap.String("player_id", p.ID),
			zap.Int("from", p.Tier),
			zap.Int("to", next),
		)
	}
}

func (s *Service) buildOutcome(res *Result) (*ratingstore.MatchHistoryRow, []ratingstore.MatchOutcome) {
	a, b := res.Participants[0], res.Participants[1]
	hist := &ratingstore.MatchHistoryRow{
		MatchID:    res.MatchID,
		PlayerAID:  a.ID,
		PlayerBID:  b.ID,
		WinnerID:   res.WinnerID,
		LoserID:    res.LoserID,
		IsDraw:     res.Draw,
		Forfeit:    res.Forfeit,
		ScoreA:     a.Score,
		ScoreB:     b.Score,
		EloDeltas:  res.EloDeltas,
		Questions:  res.Questions,
		DurationMs: res.DurationMs,
		PlayedAt:   time.Now(),
	}
	outcomes := make([]ratingstore.MatchOutcome, 0, 2)
	for _, p := range res.Participants {
		outcomes = append(outcomes, ratingstore.MatchOutcome{
			PlayerID:   p.ID,
			Name:       p.Name,
			Won:        !res.Draw && p.ID == res.WinnerID,
			Draw:       res.Draw,
			EloDelta:   res.EloDeltas[p.ID],
			Mode:       "1v1",
			PerOpDelta: res.PerOpDeltas[p.ID],
			Placement:  p.Placement,
		})
	}
	return hist, outcomes
}

func (s *Service) recordStreaks(ctx context.Context, res *Result) {
	if s.tilt == nil || res.Draw {
		return
	}
	if err := s.tilt.RecordWin(ctx, res.WinnerID); err != nil {
		obslog.L().Warn("tilt_record_error", zap.String("player_id", res.WinnerID), zap.Error(err))
	}
	if _, err := s.tilt.RecordLoss(ctx, res.LoserID); err != nil {
		obslog.L().Warn("tilt_record_error", zap.String("player_id", res.LoserID), zap.Error(err))
	}
}

// refreshRanks recomputes league/division from the freshly persisted elo.
func (s *Service) refreshRanks(ctx context.Context, res *Result) {
	for _, p := range res.Participants {
		rec, err := s.repo.Get(ctx, p.ID)
		if err != nil || rec == nil {
			continue
		}
		next := s.rp.NextRank(rec.Rank, rec.Elo, rec.Tier)
		if err := s.repo.UpdateRank(ctx, p.ID, next); err != nil {
			obslog.L().Warn("rank_update_error", zap.String("player_id", p.ID), zap.Error(err))
		}
	}
}

// briefs is the unlocked accessor used right after construction.
func (m *Match) briefs() []arenadto.PlayerBrief {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.briefsLocked()
}
