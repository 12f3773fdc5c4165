package ratingstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Gamechiefx/flashmath-sub004/internal/rating"
)

// memrepo is the in-memory Repository used in tests and when no DATABASE_URL
// is configured.
type memrepo struct {
	mu sync.RWMutex

	records map[string]*PlayerRatingRecord
	history map[string]*MatchHistoryRow
}

func NewMemory() Repository {
	return &memrepo{
		records: make(map[string]*PlayerRatingRecord),
		history: make(map[string]*MatchHistoryRow),
	}
}

func (m *memrepo) Close() error { return nil }

func (m *memrepo) Get(ctx context.Context, playerID string) (*PlayerRatingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[playerID]
	if !ok {
		return nil, nil
	}
	cp := cloneRecord(rec)
	return &cp, nil
}

func (m *memrepo) GetOrCreate(ctx context.Context, playerID, name string, defaults Defaults) (*PlayerRatingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[playerID]; ok {
		cp := cloneRecord(rec)
		return &cp, nil
	}
	now := time.Now()
	rec := &PlayerRatingRecord{
		PlayerID:       playerID,
		Name:           name,
		Elo:            defaults.Elo,
		PeakElo:        defaults.Elo,
		PerOpElo:       map[string]int{},
		ModeElo:        map[string]int{},
		Tier:           defaults.Tier,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.records[playerID] = rec
	cp := cloneRecord(rec)
	return &cp, nil
}

func (m *memrepo) ApplyMatchOutcome(ctx context.Context, hist *MatchHistoryRow, outcomes []MatchOutcome, floor int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.history[hist.MatchID]; !dup {
		cp := *hist
		m.history[hist.MatchID] = &cp
	}

	now := time.Now()
	for i := range outcomes {
		o := outcomes[i]
		rec, ok := m.records[o.PlayerID]
		if !ok {
			continue
		}
		applyOutcome(rec, o, floor)
		rec.LastActivityAt = now
		rec.UpdatedAt = now
	}
	return nil
}

func (m *memrepo) UpdateTier(ctx context.Context, playerID string, tier int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[playerID]; ok {
		rec.Tier = tier
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (m *memrepo) UpdateConfidence(ctx context.Context, playerID string, confidence float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[playerID]; ok {
		rec.Confidence = confidence
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (m *memrepo) UpdateRank(ctx context.Context, playerID string, rank rating.RankState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[playerID]; ok {
		rec.Rank = rank
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (m *memrepo) RecordPracticeSession(ctx context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[playerID]; ok {
		rec.PracticeSessions++
		rec.LastActivityAt = time.Now()
		rec.UpdatedAt = rec.LastActivityAt
	}
	return nil
}

func (m *memrepo) ListDecayEligible(ctx context.Context, inactiveSince time.Time, limit int) ([]*PlayerRatingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PlayerRatingRecord
	for _, rec := range m.records {
		if rec.LastActivityAt.Before(inactiveSince) {
			cp := cloneRecord(rec)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.Before(out[j].LastActivityAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memrepo) ApplyDailyDecay(ctx context.Context, playerID string, amount, tierLoss, floor int, day time.Time) (bool, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[playerID]
	if !ok {
		return false, nil
	}
	if rec.LastDecayApplied != nil && !rec.LastDecayApplied.Before(day) {
		return false, nil
	}
	next := rec.Elo - amount
	if next < floor {
		next = floor
	}
	rec.TotalDecayed += rec.Elo - next
	rec.Elo = next
	rec.Tier -= tierLoss
	if rec.Tier < rating.MinTier {
		rec.Tier = rating.MinTier
	}
	d := day
	rec.LastDecayApplied = &d
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (m *memrepo) ApplySoftReset(ctx context.Context, playerID string, amount, floor int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[playerID]
	if !ok || rec.SoftResetApplied {
		return false, nil
	}
	next := rec.Elo - amount
	if next < floor {
		next = floor
	}
	rec.TotalDecayed += rec.Elo - next
	rec.Elo = next
	rec.SoftResetApplied = true
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (m *memrepo) MarkReturning(ctx context.Context, playerID string, placementGames int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[playerID]; ok && !rec.Returning {
		rec.Returning = true
		rec.PlacementRemaining = placementGames
		rec.UpdatedAt = time.Now()
	}
	return nil
}

// ActivityRewinder is implemented by the in-memory repository so tests can
// rewind a record's activity clock.
type ActivityRewinder interface {
	SetLastActivity(playerID string, at time.Time)
}

func (m *memrepo) SetLastActivity(playerID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[playerID]; ok {
		rec.LastActivityAt = at
	}
}

func cloneRecord(rec *PlayerRatingRecord) PlayerRatingRecord {
	cp := *rec
	cp.PerOpElo = make(map[string]int, len(rec.PerOpElo))
	for k, v := range rec.PerOpElo {
		cp.PerOpElo[k] = v
	}
	cp.ModeElo = make(map[string]int, len(rec.ModeElo))
	for k, v := range rec.ModeElo {
		cp.ModeElo[k] = v
	}
	if rec.LastDecayApplied != nil {
		d := *rec.LastDecayApplied
		cp.LastDecayApplied = &d
	}
	return cp
}
