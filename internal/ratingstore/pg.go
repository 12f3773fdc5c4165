package ratingstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/Gamechiefx/flashmath-sub004/internal/rating"
)

// pgRepository is the Postgres-backed Repository. Expects the arena_ratings
// and arena_match_history tables to be provisioned.
type pgRepository struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &pgRepository{db: db}, nil
}

func (r *pgRepository) Close() error {
	if r == nil || r.db == nil { return nil }
	return r.db.Close()
}

const recordColumns = `player_id, name, elo, peak_elo, per_op_elo, mode_elo,
	wins, losses, win_streak, loss_streak, match_count,
	tier, confidence, league, division, games_since_change,
	practice_sessions, sessions_per_week, last_activity_at,
	total_decayed, last_decay_applied, returning, placement_remaining, soft_reset_applied,
	created_at, updated_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanRecord(row rowScanner) (*PlayerRatingRecord, error) {
	var rec PlayerRatingRecord
	var perOp, modeElo []byte
	var lastDecay sql.NullTime
	err := row.Scan(
		&rec.PlayerID, &rec.Name, &rec.Elo, &rec.PeakElo, &perOp, &modeElo,
		&rec.Wins, &rec.Losses, &rec.WinStreak, &rec.LossStreak, &rec.MatchCount,
		&rec.Tier, &rec.Confidence, &rec.Rank.League, &rec.Rank.Division, &rec.Rank.GamesSinceChange,
		&rec.PracticeSessions, &rec.SessionsPerWeek, &rec.LastActivityAt,
		&rec.TotalDecayed, &lastDecay, &rec.Returning, &rec.PlacementRemaining, &rec.SoftResetApplied,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(perOp) > 0 {
		if err := json.Unmarshal(perOp, &rec.PerOpElo); err != nil { return nil, fmt.Errorf("unmarshal per_op_elo: %w", err) }
	}
	if len(modeElo) > 0 {
		if err := json.Unmarshal(modeElo, &rec.ModeElo); err != nil { return nil, fmt.Errorf("unmarshal mode_elo: %w", err) }
	}
	if rec.PerOpElo == nil {
		rec.PerOpElo = map[string]int{}
	}
	if rec.ModeElo == nil {
		rec.ModeElo = map[string]int{}
	}
	if lastDecay.Valid {
		d := lastDecay.Time
		rec.LastDecayApplied = &d
	}
	return &rec, nil
}

func (r *pgRepository) Get(ctx context.Context, playerID string) (*PlayerRatingRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM arena_ratings WHERE player_id = $1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, playerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (r *pgRepository) GetOrCreate(ctx context.Context, playerID, name string, defaults Defaults) (*PlayerRatingRecord, error) {
	rec, err := r.Get(ctx, playerID)
	if err != nil || rec != nil {
		return rec, err
	}
	q := `INSERT INTO arena_ratings (
		player_id, name, elo, peak_elo, per_op_elo, mode_elo, tier, confidence,
		league, division, games_since_change, last_activity_at, created_at, updated_at
	) VALUES ($1,$2,$3,$3,'{}','{}',$4,0,'',0,0,now(),now(),now())
	ON CONFLICT (player_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, q, playerID, name, defaults.Elo, defaults.Tier); err != nil {
		return nil, err
	}
	return r.Get(ctx, playerID)
}

// ApplyMatchOutcome locks every participant row, folds each outcome in Go and
// writes the rows plus the immutable history entry inside one transaction.
// A failed transaction leaves every rating untouched.
func (r *pgRepository) ApplyMatchOutcome(ctx context.Context, hist *MatchHistoryRow, outcomes []MatchOutcome, floor int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for i := range outcomes {
		o := outcomes[i]
		rec, err := scanRecord(tx.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM arena_ratings WHERE player_id = $1 FOR UPDATE`, o.PlayerID))
		if err != nil {
			return fmt.Errorf("lock rating row %s: %w", o.PlayerID, err)
		}

		applyOutcome(rec, o, floor)

		perOp, _ := json.Marshal(rec.PerOpElo)
		modeElo, _ := json.Marshal(rec.ModeElo)
		_, err = tx.ExecContext(ctx, `UPDATE arena_ratings SET
			elo=$2, peak_elo=$3, per_op_elo=$4, mode_elo=$5,
			wins=$6, losses=$7, win_streak=$8, loss_streak=$9, match_count=$10,
			returning=$11, placement_remaining=$12,
			last_activity_at=now(), updated_at=now()
			WHERE player_id=$1`,
			o.PlayerID, rec.Elo, rec.PeakElo, perOp, modeElo,
			rec.Wins, rec.Losses, rec.WinStreak, rec.LossStreak, rec.MatchCount,
			rec.Returning, rec.PlacementRemaining,
		)
		if err != nil {
			return fmt.Errorf("update rating row %s: %w", o.PlayerID, err)
		}
	}

	deltas, _ := json.Marshal(hist.EloDeltas)
	_, err = tx.ExecContext(ctx, `INSERT INTO arena_match_history (
		match_id, player_a, player_b, winner_id, loser_id, is_draw, forfeit,
		score_a, score_b, elo_deltas, questions, duration_ms, played_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	ON CONFLICT (match_id) DO NOTHING`,
		hist.MatchID, hist.PlayerAID, hist.PlayerBID, hist.WinnerID, hist.LoserID,
		hist.IsDraw, hist.Forfeit, hist.ScoreA, hist.ScoreB, deltas,
		hist.Questions, hist.DurationMs, hist.PlayedAt,
	)
	if err != nil {
		return fmt.Errorf("append match history: %w", err)
	}

	return tx.Commit()
}

// applyOutcome folds one finished match into a record. Shared with memrepo so
// both implementations stay in lockstep.
func applyOutcome(rec *PlayerRatingRecord, o MatchOutcome, floor int) {
	rec.Elo += o.EloDelta
	if rec.Elo < floor {
		rec.Elo = floor
	}
	if rec.Elo > rec.PeakElo {
		rec.PeakElo = rec.Elo
	}
	rec.MatchCount++

	switch {
	case o.Draw:
		// draws break neither streak
	case o.Won:
		rec.Wins++
		rec.WinStreak++
		rec.LossStreak = 0
	default:
		rec.Losses++
		rec.LossStreak++
		rec.WinStreak = 0
	}

	if rec.PerOpElo == nil {
		rec.PerOpElo = map[string]int{}
	}
	for op, d := range o.PerOpDelta {
		v := rec.PerOpElo[op]
		if v == 0 {
			v = rec.Elo - o.EloDelta // seed from aggregate before this match
		}
		v += d
		if v < floor {
			v = floor
		}
		rec.PerOpElo[op] = v
	}

	if o.Mode != "" {
		if rec.ModeElo == nil {
			rec.ModeElo = map[string]int{}
		}
		rec.ModeElo[o.Mode] = rec.Elo
	}

	if o.Placement && rec.PlacementRemaining > 0 {
		rec.PlacementRemaining--
		if rec.PlacementRemaining == 0 {
			rec.Returning = false
		}
	}
}

func (r *pgRepository) UpdateTier(ctx context.Context, playerID string, tier int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE arena_ratings SET tier=$2, updated_at=now() WHERE player_id=$1`, playerID, tier)
	return err
}

func (r *pgRepository) UpdateConfidence(ctx context.Context, playerID string, confidence float64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE arena_ratings SET confidence=$2, updated_at=now() WHERE player_id=$1`, playerID, confidence)
	return err
}

func (r *pgRepository) UpdateRank(ctx context.Context, playerID string, rank rating.RankState) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE arena_ratings SET league=$2, division=$3, games_since_change=$4, updated_at=now()
		 WHERE player_id=$1`, playerID, rank.League, rank.Division, rank.GamesSinceChange)
	return err
}

func (r *pgRepository) RecordPracticeSession(ctx context.Context, playerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE arena_ratings SET practice_sessions = practice_sessions + 1,
		 last_activity_at = now(), updated_at = now() WHERE player_id=$1`, playerID)
	return err
}

func (r *pgRepository) ListDecayEligible(ctx context.Context, inactiveSince time.Time, limit int) ([]*PlayerRatingRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM arena_ratings
		WHERE last_activity_at < $1 ORDER BY last_activity_at ASC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, inactiveSince, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*PlayerRatingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ApplyDailyDecay is idempotent per calendar day: the predicate on
// last_decay_applied makes overlapping job runs harmless.
func (r *pgRepository) ApplyDailyDecay(ctx context.Context, playerID string, amount, tierLoss, floor int, day time.Time) (bool, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	res, err := r.db.ExecContext(ctx, `UPDATE arena_ratings SET
		total_decayed = total_decayed + (elo - GREATEST($3, elo - $2)),
		elo = GREATEST($3, elo - $2),
		tier = GREATEST(1, tier - $4),
		last_decay_applied = $5,
		updated_at = now()
		WHERE player_id = $1 AND (last_decay_applied IS NULL OR last_decay_applied < $5)`,
		playerID, amount, floor, tierLoss, day)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *pgRepository) ApplySoftReset(ctx context.Context, playerID string, amount, floor int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE arena_ratings SET
		total_decayed = total_decayed + (elo - GREATEST($3, elo - $2)),
		elo = GREATEST($3, elo - $2),
		soft_reset_applied = TRUE,
		updated_at = now()
		WHERE player_id = $1 AND NOT soft_reset_applied`,
		playerID, amount, floor)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *pgRepository) MarkReturning(ctx context.Context, playerID string, placementGames int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE arena_ratings SET
		returning = TRUE, placement_remaining = $2, updated_at = now()
		WHERE player_id = $1 AND NOT returning`,
		playerID, placementGames)
	return err
}
