package decay

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/Gamechiefx/flashmath-sub004/internal/obslog"
	"github.com/Gamechiefx/flashmath-sub004/internal/ratingstore"
)

// Phase buckets days of inactivity.
type Phase string

const (
	PhaseGrace     Phase = "grace"
	PhaseWarning   Phase = "warning"
	PhaseDecaying  Phase = "decaying"
	PhaseSevere    Phase = "severe"
	PhaseReturning Phase = "returning"
)

const (
	graceDays    = 7
	warningDays  = 14
	decayingDays = 30
	severeDays   = 60
)

type Config struct {
	Interval          time.Duration
	WarningEloPerDay  int
	DecayingEloPerDay int
	SevereEloPerDay   int
	SevereTierPerWeek int
	SoftResetElo      int
	PlacementGames    int
	EloFloor          int
	BatchSize         int
}

// Engine is the periodic inactivity-decay job. It only talks to the rating
// store; idempotency per player per calendar day lives in the repository so
// overlapping runs are harmless.
type Engine struct {
	cfg  Config
	repo ratingstore.Repository
	now  func() time.Time
}

func NewEngine(cfg Config, repo ratingstore.Repository) *Engine {
	return &Engine{cfg: cfg, repo: repo, now: time.Now}
}

// PhaseFor maps days of inactivity to a decay phase.
func PhaseFor(days int) Phase {
	switch {
	case days <= graceDays:
		return PhaseGrace
	case days <= warningDays:
		return PhaseWarning
	case days <= decayingDays:
		return PhaseDecaying
	case days <= severeDays:
		return PhaseSevere
	default:
		return PhaseReturning
	}
}

// DaysInactive counts whole days since the last activity.
func DaysInactive(last, now time.Time) int {
	if last.IsZero() || !last.Before(now) {
		return 0
	}
	return int(now.Sub(last) / (24 * time.Hour))
}

func (c Config) dailyElo(days int) int {
	switch PhaseFor(days) {
	case PhaseWarning:
		return c.WarningEloPerDay
	case PhaseDecaying:
		return c.DecayingEloPerDay
	case PhaseSevere:
		return c.SevereEloPerDay
	default:
		return 0
	}
}

// tierLossFor charges the severe-phase weekly tier loss on every seventh day
// inside the phase.
func (c Config) tierLossFor(days int) int {
	if PhaseFor(days) != PhaseSevere {
		return 0
	}
	if (days-(decayingDays+1))%7 == 0 {
		return c.SevereTierPerWeek
	}
	return 0
}

// Run executes sweeps until the context is cancelled. A random fraction of
// the interval staggers replicas started at the same moment.
func (e *Engine) Run(ctx context.Context) {
	jitter := time.Duration(rand.Int63n(int64(e.cfg.Interval) / 10))
	select {
	case <-ctx.Done():
		return
	case <-time.After(jitter):
	}

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		if n, err := e.Sweep(ctx); err != nil {
			obslog.L().Error("decay_sweep_error", zap.Error(err))
		} else if n > 0 {
			obslog.L().Info("decay_sweep", zap.Int("applied", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep processes one batch of inactive players and returns how many received
// a decay application today.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	now := e.now()
	cutoff := now.Add(-time.Duration(graceDays+1) * 24 * time.Hour)
	recs, err := e.repo.ListDecayEligible(ctx, cutoff, e.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, rec := range recs {
		ok, aerr := e.applyOne(ctx, rec, now)
		if aerr != nil {
			obslog.L().Warn("decay_apply_error", zap.String("player_id", rec.PlayerID), zap.Error(aerr))
			continue
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

func (e *Engine) applyOne(ctx context.Context, rec *ratingstore.PlayerRatingRecord, now time.Time) (bool, error) {
	days := DaysInactive(rec.LastActivityAt, now)
	phase := PhaseFor(days)

	if phase == PhaseReturning {
		if rec.Returning {
			return false, nil
		}
		if err := e.repo.MarkReturning(ctx, rec.PlayerID, e.cfg.PlacementGames); err != nil {
			return false, err
		}
		obslog.L().Info("decay_mark_returning",
			zap.String("player_id", rec.PlayerID),
			zap.Int("days_inactive", days),
			zap.Int("placement_games", e.cfg.PlacementGames),
		)
		return true, nil
	}

	// one-time soft reset for the 30-60 day band, independent of daily decay
	if days >= decayingDays && !rec.SoftResetApplied && !rec.Returning {
		if ok, err := e.repo.ApplySoftReset(ctx, rec.PlayerID, e.cfg.SoftResetElo, e.cfg.EloFloor); err != nil {
			return false, err
		} else if ok {
			obslog.L().Info("decay_soft_reset", zap.String("player_id", rec.PlayerID), zap.Int("days_inactive", days))
		}
	}

	amount := e.cfg.dailyElo(days)
	tierLoss := e.cfg.tierLossFor(days)
	if amount == 0 && tierLoss == 0 {
		return false, nil
	}

	day := now.UTC().Truncate(24 * time.Hour)
	ok, err := e.repo.ApplyDailyDecay(ctx, rec.PlayerID, amount, tierLoss, e.cfg.EloFloor, day)
	if err != nil {
		return false, err
	}
	if ok {
		obslog.L().Debug("decay_applied",
			zap.String("player_id", rec.PlayerID),
			zap.String("phase", string(phase)),
			zap.Int("days_inactive", days),
			zap.Int("elo", amount),
			zap.Int("tier", tierLoss),
		)
	}
	return ok, nil
}
