package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig carries every arena tunable. Values come from the environment with
// sane defaults; only the store URLs are validated here.
type AppConfig struct {
	RedisURL    string
	DatabaseURL string // empty → in-memory repository (dev/test)

	ListenAddr string // realtime websocket endpoint
	AdminAddr  string // fasthttp admin/stats API

	MsgOverrideDir string

	// Match
	QuestionsPerMatch int
	StartingLives     int
	QuestionTime      time.Duration
	CountdownSec      int
	NextQuestionDelay time.Duration
	BasePoints        int
	SpeedBonusMax     int
	WrongAnswerPoints int
	MatchStateTTL     time.Duration

	// Matchmaking
	QueueInitialWindow    int
	QueueWindowIncrement  int
	QueueWindowInterval   time.Duration
	QueueMaxWindow        int
	QueueMaxTierDiff      int
	QueueTierWeight       int
	QueueNewPlayerGames   int
	QueueNewPlayerPenalty int
	QueueMaxWait          time.Duration
	QueueSweepInterval    time.Duration
	QueueEntryTTL         time.Duration

	// Rating
	DefaultElo         int
	EloFloor           int
	EloKFactor         float64
	FullConfidence     float64
	MinKConfidence     float64
	StreakCap          int
	AccuracyFloor      float64
	RecommendSamples   int
	LeagueProtectGames int

	// Guard
	MinJoinConfidence  float64
	TiltThreshold      int
	TiltBreakMinutes   int
	TiltStreakTTL      time.Duration
	ConfRefSessions    int
	ConfRefPerWeek     float64
	ConfRecencyGrace   int // days at full strength
	ConfRecencyZero    int // days until recency hits zero
	PlacementGames     int
	PlacementKFactor   float64

	// Decay
	DecayInterval     time.Duration
	WarningEloPerDay  int
	DecayingEloPerDay int
	SevereEloPerDay   int
	SevereTierPerWeek int
	SoftResetElo      int
	DecayBatchSize    int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr: ":8080",
		AdminAddr:  ":8081",

		QuestionsPerMatch: 10,
		StartingLives:     3,
		QuestionTime:      30 * time.Second,
		CountdownSec:      3,
		NextQuestionDelay: 2 * time.Second,
		BasePoints:        100,
		SpeedBonusMax:     50,
		WrongAnswerPoints: 25,
		MatchStateTTL:     time.Hour,

		QueueInitialWindow:    100,
		QueueWindowIncrement:  50,
		QueueWindowInterval:   10 * time.Second,
		QueueMaxWindow:        400,
		QueueMaxTierDiff:      20,
		QueueTierWeight:       10,
		QueueNewPlayerGames:   10,
		QueueNewPlayerPenalty: 200,
		QueueMaxWait:          2 * time.Minute,
		QueueSweepInterval:    5 * time.Second,
		QueueEntryTTL:         10 * time.Minute,

		DefaultElo:         1000,
		EloFloor:           100,
		EloKFactor:         32,
		FullConfidence:     0.8,
		MinKConfidence:     0.4,
		StreakCap:          10,
		AccuracyFloor:      0.5,
		RecommendSamples:   3,
		LeagueProtectGames: 5,

		MinJoinConfidence: 0.3,
		TiltThreshold:     3,
		TiltBreakMinutes:  30,
		TiltStreakTTL:     24 * time.Hour,
		ConfRefSessions:   50,
		ConfRefPerWeek:    5,
		ConfRecencyGrace:  3,
		ConfRecencyZero:   14,
		PlacementGames:    5,
		PlacementKFactor:  0.5,

		DecayInterval:     time.Hour,
		WarningEloPerDay:  5,
		DecayingEloPerDay: 10,
		SevereEloPerDay:   15,
		SevereTierPerWeek: 1,
		SoftResetElo:      100,
		DecayBatchSize:    500,
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))

	envStr("LISTEN_ADDR", &cfg.ListenAddr)
	envStr("ADMIN_ADDR", &cfg.AdminAddr)

	envInt("ARENA_QUESTIONS_PER_MATCH", &cfg.QuestionsPerMatch)
	envInt("ARENA_STARTING_LIVES", &cfg.StartingLives)
	envDur("ARENA_QUESTION_TIME", &cfg.QuestionTime)
	envInt("ARENA_COUNTDOWN_SEC", &cfg.CountdownSec)
	envDur("ARENA_NEXT_QUESTION_DELAY", &cfg.NextQuestionDelay)
	envInt("ARENA_BASE_POINTS", &cfg.BasePoints)
	envInt("ARENA_SPEED_BONUS_MAX", &cfg.SpeedBonusMax)
	envInt("ARENA_WRONG_ANSWER_POINTS", &cfg.WrongAnswerPoints)
	envDur("ARENA_MATCH_STATE_TTL", &cfg.MatchStateTTL)

	envInt("QUEUE_INITIAL_WINDOW", &cfg.QueueInitialWindow)
	envInt("QUEUE_WINDOW_INCREMENT", &cfg.QueueWindowIncrement)
	envDur("QUEUE_WINDOW_INTERVAL", &cfg.QueueWindowInterval)
	envInt("QUEUE_MAX_WINDOW", &cfg.QueueMaxWindow)
	// 의도된 허용치는 운영 설정으로 확정한다(기본 한 밴드 = 20).
	envInt("QUEUE_MAX_TIER_DIFF", &cfg.QueueMaxTierDiff)
	envInt("QUEUE_TIER_WEIGHT", &cfg.QueueTierWeight)
	envInt("QUEUE_NEW_PLAYER_GAMES", &cfg.QueueNewPlayerGames)
	envInt("QUEUE_NEW_PLAYER_PENALTY", &cfg.QueueNewPlayerPenalty)
	envDur("QUEUE_MAX_WAIT", &cfg.QueueMaxWait)
	envDur("QUEUE_SWEEP_INTERVAL", &cfg.QueueSweepInterval)
	envDur("QUEUE_ENTRY_TTL", &cfg.QueueEntryTTL)

	envInt("RATING_DEFAULT_ELO", &cfg.DefaultElo)
	envInt("RATING_ELO_FLOOR", &cfg.EloFloor)
	envFloat("RATING_K_FACTOR", &cfg.EloKFactor)
	envFloat("RATING_FULL_CONFIDENCE", &cfg.FullConfidence)
	envFloat("RATING_MIN_K_CONFIDENCE", &cfg.MinKConfidence)
	envInt("RATING_STREAK_CAP", &cfg.StreakCap)
	envFloat("RATING_ACCURACY_FLOOR", &cfg.AccuracyFloor)
	envInt("RATING_RECOMMEND_SAMPLES", &cfg.RecommendSamples)
	envInt("RATING_LEAGUE_PROTECT_GAMES", &cfg.LeagueProtectGames)

	envFloat("GUARD_MIN_JOIN_CONFIDENCE", &cfg.MinJoinConfidence)
	envInt("GUARD_TILT_THRESHOLD", &cfg.TiltThreshold)
	envInt("GUARD_TILT_BREAK_MINUTES", &cfg.TiltBreakMinutes)
	envDur("GUARD_TILT_STREAK_TTL", &cfg.TiltStreakTTL)
	envInt("GUARD_CONF_REF_SESSIONS", &cfg.ConfRefSessions)
	envFloat("GUARD_CONF_REF_PER_WEEK", &cfg.ConfRefPerWeek)
	envInt("GUARD_CONF_RECENCY_GRACE_DAYS", &cfg.ConfRecencyGrace)
	envInt("GUARD_CONF_RECENCY_ZERO_DAYS", &cfg.ConfRecencyZero)
	envInt("GUARD_PLACEMENT_GAMES", &cfg.PlacementGames)
	envFloat("GUARD_PLACEMENT_K_FACTOR", &cfg.PlacementKFactor)

	envDur("DECAY_INTERVAL", &cfg.DecayInterval)
	envInt("DECAY_WARNING_ELO_PER_DAY", &cfg.WarningEloPerDay)
	envInt("DECAY_DECAYING_ELO_PER_DAY", &cfg.DecayingEloPerDay)
	envInt("DECAY_SEVERE_ELO_PER_DAY", &cfg.SevereEloPerDay)
	envInt("DECAY_SEVERE_TIER_PER_WEEK", &cfg.SevereTierPerWeek)
	envInt("DECAY_SOFT_RESET_ELO", &cfg.SoftResetElo)
	envInt("DECAY_BATCH_SIZE", &cfg.DecayBatchSize)

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

func envStr(key string, out *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*out = v
	}
}

func envInt(key string, out *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*out = n
		}
	}
}

func envFloat(key string, out *float64) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*out = f
		}
	}
}

func envDur(key string, out *time.Duration) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*out = d
		}
	}
}
