package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gamechiefx/flashmath-sub004/internal/guard"
	"github.com/Gamechiefx/flashmath-sub004/internal/obslog"
	"github.com/Gamechiefx/flashmath-sub004/internal/ratingstore"
	"github.com/Gamechiefx/flashmath-sub004/pkg/arenadto"
)

// Config holds the matchmaking tunables.
type Config struct {
	InitialWindow   int
	WindowIncrement int
	WindowInterval  time.Duration
	MaxWindow       int

	MaxTierDiff      int
	TierWeight       int
	NewPlayerGames   int
	NewPlayerPenalty int

	MaxWait time.Duration

	DefaultElo  int
	DefaultTier int
}

// Manager owns the waiting set. All queue mutation happens behind its mutex;
// the candidate scan and the removal of both matched entries are one critical
// section, so two concurrent seekers can never claim the same candidate.
type Manager struct {
	mu      sync.Mutex
	waiting map[string]*Entry

	cfg   Config
	gp    guard.Params
	tilt  *guard.TiltTracker
	repo  ratingstore.Repository
	store *Store // optional redis mirror

	now func() time.Time
}

func NewManager(cfg Config, gp guard.Params, tilt *guard.TiltTracker, repo ratingstore.Repository, store *Store) *Manager {
	return &Manager{
		waiting: make(map[string]*Entry),
		cfg:     cfg,
		gp:      gp,
		tilt:    tilt,
		repo:    repo,
		store:   store,
		now:     time.Now,
	}
}

// JoinRequest carries the join payload; Tier accepts every historical shape.
type JoinRequest struct {
	PlayerID string
	Name     string
	Tier     json.RawMessage
}

// Join applies the confidence gate, the tilt gate and tier normalization in
// that order, stores the entry and immediately attempts a match. The returned
// Proposal is non-nil when the join paired instantly.
func (m *Manager) Join(ctx context.Context, req JoinRequest) (*Entry, *Proposal, error) {
	if req.PlayerID == "" {
		return nil, nil, fmt.Errorf("player id required")
	}

	rec, err := m.repo.GetOrCreate(ctx, req.PlayerID, req.Name,
		ratingstore.Defaults{Elo: m.cfg.DefaultElo, Tier: m.cfg.DefaultTier})
	if err != nil {
		return nil, nil, fmt.Errorf("load rating record: %w", err)
	}

	days := int(m.now().Sub(rec.LastActivityAt).Hours() / 24)
	conf := m.gp.ConfidenceScore(rec.PracticeSessions, rec.SessionsPerWeek, days)
	if uerr := m.repo.UpdateConfidence(ctx, rec.PlayerID, conf); uerr != nil {
		obslog.L().Warn("queue_confidence_persist_error", zap.String("player_id", rec.PlayerID), zap.Error(uerr))
	}
	if conf < m.gp.MinJoinConfidence {
		return nil, nil, arenadto.GateError{
			DomainError: arenadto.DomainError{Code: arenadto.CodeInsufficientPractice, Message: "confidence below arena minimum"},
			Remediation: arenadto.Remediation{SessionsNeeded: m.gp.SessionsNeeded(rec.PracticeSessions)},
		}
	}

	if m.tilt != nil {
		tilted, terr := m.tilt.Tilted(ctx, req.PlayerID, m.gp.TiltThreshold)
		if terr != nil {
			return nil, nil, fmt.Errorf("tilt lookup: %w", terr)
		}
		if tilted {
			return nil, nil, arenadto.GateError{
				DomainError: arenadto.DomainError{Code: arenadto.CodeTiltProtection, Message: "loss streak protection active"},
				Remediation: arenadto.Remediation{BreakMinutes: m.gp.TiltBreakMinutes},
			}
		}
	}

	entry := &Entry{
		PlayerID:   req.PlayerID,
		Name:       req.Name,
		Tier:       NormalizeTier(req.Tier, rec.Tier),
		Elo:        rec.Elo,
		Confidence: conf,
		MatchCount: rec.MatchCount,
		Placement:  rec.Returning && rec.PlacementRemaining > 0,
		JoinedAt:   m.now(),
	}

	m.mu.Lock()
	if _, dup := m.waiting[entry.PlayerID]; dup {
		m.mu.Unlock()
		return nil, nil, ErrAlreadyQueued
	}
	m.waiting[entry.PlayerID] = entry
	proposal := m.findMatchLocked(entry)
	m.mu.Unlock()

	m.mirror(ctx, entry, proposal)

	obslog.L().Info("queue_join",
		zap.String("player_id", entry.PlayerID),
		zap.Int("tier", entry.Tier),
		zap.Int("elo", entry.Elo),
		zap.Bool("matched", proposal != nil),
	)
	return entry, proposal, nil
}

// FindMatch retries the search for an already waiting seeker (called
// periodically while the window widens).
func (m *Manager) FindMatch(ctx context.Context, seekerID string) (*Proposal, error) {
	m.mu.Lock()
	seeker, ok := m.waiting[seekerID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotQueued
	}
	proposal := m.findMatchLocked(seeker)
	m.mu.Unlock()

	if proposal != nil {
		m.mirror(ctx, nil, proposal)
		obslog.L().Info("queue_match",
			zap.String("match_id", proposal.MatchID),
			zap.String("p1", proposal.Players[0].PlayerID),
			zap.String("p2", proposal.Players[1].PlayerID),
			zap.Int("quality", proposal.Quality),
		)
	}
	return proposal, nil
}

// window widens with wait time: initial + increment per interval, capped.
func (m *Manager) window(e *Entry, now time.Time) int {
	waited := now.Sub(e.JoinedAt)
	if waited < 0 {
		waited = 0
	}
	steps := int(waited / m.cfg.WindowInterval)
	w := m.cfg.InitialWindow + steps*m.cfg.WindowIncrement
	if w > m.cfg.MaxWindow {
		w = m.cfg.MaxWindow
	}
	return w
}

// findMatchLocked scans the waiting set and removes both sides on success.
// Caller holds m.mu.
func (m *Manager) findMatchLocked(seeker *Entry) *Proposal {
	now := m.now()
	seekerWindow := m.window(seeker, now)
	seekerNew := seeker.MatchCount < m.cfg.NewPlayerGames

	// FIFO order keeps "first found" deterministic on score ties.
	ids := make([]string, 0, len(m.waiting))
	for id := range m.waiting {
		if id != seeker.PlayerID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.waiting[ids[i]].JoinedAt.Before(m.waiting[ids[j]].JoinedAt)
	})

	var best *Entry
	bestScore := 0
	for _, id := range ids {
		cand := m.waiting[id]

		tierDiff := abs(seeker.Tier - cand.Tier)
		if tierDiff > m.cfg.MaxTierDiff {
			continue
		}

		// 더 "급한" 쪽의 창을 사용한다.
		window := seekerWindow
		if cw := m.window(cand, now); cw > window {
			window = cw
		}
		eloDiff := abs(seeker.Elo - cand.Elo)
		if eloDiff > window {
			continue
		}

		score := tierDiff*m.cfg.TierWeight + eloDiff
		candNew := cand.MatchCount < m.cfg.NewPlayerGames
		if seekerNew != candNew {
			score += m.cfg.NewPlayerPenalty
		}

		if best == nil || score < bestScore {
			best, bestScore = cand, score
		}
	}
	if best == nil {
		return nil
	}

	delete(m.waiting, seeker.PlayerID)
	delete(m.waiting, best.PlayerID)

	return &Proposal{
		MatchID:   uuid.NewString(),
		Players:   []Entry{*seeker, *best},
		Quality:   bestScore,
		CreatedAt: now,
	}
}

// Leave removes the player's entry; `WAITING → MATCHED/TIMED_OUT` removals go
// through findMatchLocked and Sweep instead.
func (m *Manager) Leave(ctx context.Context, playerID string) error {
	m.mu.Lock()
	_, ok := m.waiting[playerID]
	if ok {
		delete(m.waiting, playerID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotQueued
	}
	if m.store != nil {
		if err := m.store.RemoveEntry(ctx, playerID); err != nil {
			obslog.L().Warn("queue_mirror_remove_error", zap.String("player_id", playerID), zap.Error(err))
		}
	}
	obslog.L().Info("queue_leave", zap.String("player_id", playerID))
	return nil
}

// Position is 1-based FIFO order by join time.
func (m *Manager) Position(playerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	me, ok := m.waiting[playerID]
	if !ok {
		return 0, ErrNotQueued
	}
	pos := 1
	for id, e := range m.waiting {
		if id != playerID && e.JoinedAt.Before(me.JoinedAt) {
			pos++
		}
	}
	return pos, nil
}

// Stats buckets the waiting set per ten tiers.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Waiting: len(m.waiting), ByTier: make(map[string]int)}
	for _, e := range m.waiting {
		lo := (e.Tier-1)/10*10 + 1
		s.ByTier[fmt.Sprintf("%d-%d", lo, lo+9)]++
	}
	return s
}

// MirroredEntries lists the redis-mirrored waiting set. Unlike Stats this
// survives a process restart, so operators see entries a crashed instance
// left behind until their TTL clears them.
func (m *Manager) MirroredEntries(ctx context.Context) ([]*Entry, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.ListEntries(ctx)
}

// Sweep removes entries that waited past MaxWait and returns them.
func (m *Manager) Sweep(ctx context.Context) []*Entry {
	now := m.now()
	m.mu.Lock()
	var expired []*Entry
	for id, e := range m.waiting {
		if now.Sub(e.JoinedAt) >= m.cfg.MaxWait {
			expired = append(expired, e)
			delete(m.waiting, id)
		}
	}
	m.mu.Unlock()

	for _, e := range expired {
		if m.store != nil {
			_ = m.store.RemoveEntry(ctx, e.PlayerID)
		}
		obslog.L().Info("queue_timeout", zap.String("player_id", e.PlayerID), zap.Duration("waited", now.Sub(e.JoinedAt)))
	}
	return expired
}

// RunSweeper periodically expires stale entries and retries the search for
// everyone still waiting, so widening windows take effect without client
// polling.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration, onTimeout func(Entry), onMatch func(Proposal)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, e := range m.Sweep(ctx) {
				if onTimeout != nil {
					onTimeout(*e)
				}
			}
			for _, id := range m.waitingIDs() {
				p, err := m.FindMatch(ctx, id)
				if err != nil || p == nil {
					continue
				}
				if onMatch != nil {
					onMatch(*p)
				}
			}
		}
	}
}

func (m *Manager) waitingIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.waiting))
	for id := range m.waiting {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// mirror applies redis side effects outside the mutex, best effort.
func (m *Manager) mirror(ctx context.Context, joined *Entry, matched *Proposal) {
	if m.store == nil {
		return
	}
	if joined != nil && matched == nil {
		if err := m.store.SaveEntry(ctx, joined); err != nil {
			obslog.L().Warn("queue_mirror_save_error", zap.String("player_id", joined.PlayerID), zap.Error(err))
		}
	}
	if matched != nil {
		for i := range matched.Players {
			_ = m.store.RemoveEntry(ctx, matched.Players[i].PlayerID)
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
