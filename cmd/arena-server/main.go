package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	appcfg "github.com/Gamechiefx/flashmath-sub004/internal/config"
	"github.com/Gamechiefx/flashmath-sub004/internal/decay"
	"github.com/Gamechiefx/flashmath-sub004/internal/gateway"
	"github.com/Gamechiefx/flashmath-sub004/internal/guard"
	"github.com/Gamechiefx/flashmath-sub004/internal/match"
	"github.com/Gamechiefx/flashmath-sub004/internal/msgcat"
	"github.com/Gamechiefx/flashmath-sub004/internal/obslog"
	"github.com/Gamechiefx/flashmath-sub004/internal/problem"
	"github.com/Gamechiefx/flashmath-sub004/internal/queue"
	"github.com/Gamechiefx/flashmath-sub004/internal/rating"
	"github.com/Gamechiefx/flashmath-sub004/internal/ratingstore"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("redis ping error: %v", err)
	}
	pingCancel()

	var repo ratingstore.Repository
	if cfg.DatabaseURL != "" {
		repo, err = ratingstore.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("rating repo init error: %v", err)
		}
	} else {
		repo = ratingstore.NewMemory()
		obslog.L().Warn("rating_repo_memory", zap.String("reason", "DATABASE_URL not set"))
	}

	tilt := guard.NewTiltTracker(rdb, cfg.TiltStreakTTL)
	gp := guard.Params{
		RefSessions:       cfg.ConfRefSessions,
		RefPerWeek:        cfg.ConfRefPerWeek,
		RecencyGraceDays:  cfg.ConfRecencyGrace,
		RecencyZeroDays:   cfg.ConfRecencyZero,
		MinJoinConfidence: cfg.MinJoinConfidence,
		TiltThreshold:     cfg.TiltThreshold,
		TiltBreakMinutes:  cfg.TiltBreakMinutes,
	}
	rp := rating.Params{
		KFactor:              cfg.EloKFactor,
		FullConfidence:       cfg.FullConfidence,
		MinKConfidence:       cfg.MinKConfidence,
		EloFloor:             cfg.EloFloor,
		DefaultElo:           cfg.DefaultElo,
		StreakCap:            cfg.StreakCap,
		AccuracyFloor:        cfg.AccuracyFloor,
		RecommendSamples:     cfg.RecommendSamples,
		PlacementKFactor:     cfg.PlacementKFactor,
		DemotionProtectGames: cfg.LeagueProtectGames,
	}

	qm := queue.NewManager(queue.Config{
		InitialWindow:    cfg.QueueInitialWindow,
		WindowIncrement:  cfg.QueueWindowIncrement,
		WindowInterval:   cfg.QueueWindowInterval,
		MaxWindow:        cfg.QueueMaxWindow,
		MaxTierDiff:      cfg.QueueMaxTierDiff,
		TierWeight:       cfg.QueueTierWeight,
		NewPlayerGames:   cfg.QueueNewPlayerGames,
		NewPlayerPenalty: cfg.QueueNewPlayerPenalty,
		MaxWait:          cfg.QueueMaxWait,
		DefaultElo:       cfg.DefaultElo,
		DefaultTier:      1,
	}, gp, tilt, repo, queue.NewStore(rdb, cfg.QueueEntryTTL))

	cat, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	dcfg := decay.Config{
		Interval:          cfg.DecayInterval,
		WarningEloPerDay:  cfg.WarningEloPerDay,
		DecayingEloPerDay: cfg.DecayingEloPerDay,
		SevereEloPerDay:   cfg.SevereEloPerDay,
		SevereTierPerWeek: cfg.SevereTierPerWeek,
		SoftResetElo:      cfg.SoftResetElo,
		PlacementGames:    cfg.PlacementGames,
		EloFloor:          cfg.EloFloor,
		BatchSize:         cfg.DecayBatchSize,
	}

	gw := gateway.New(qm, repo, dcfg, cat, cfg.QueueSweepInterval)
	matches := match.NewService(match.Config{
		QuestionsPerMatch: cfg.QuestionsPerMatch,
		StartingLives:     cfg.StartingLives,
		QuestionTime:      cfg.QuestionTime,
		CountdownSec:      cfg.CountdownSec,
		NextQuestionDelay: cfg.NextQuestionDelay,
		BasePoints:        cfg.BasePoints,
		SpeedBonusMax:     cfg.SpeedBonusMax,
		WrongAnswerPoints: cfg.WrongAnswerPoints,
		StateTTL:          cfg.MatchStateTTL,
	}, rp, problem.NewArithmetic(), repo, tilt, gw.Hub(), match.NewStore(rdb, cfg.MatchStateTTL))
	gw.AttachMatches(matches)

	engine := decay.NewEngine(dcfg, repo)

	ctx, cancel := context.WithCancel(context.Background())
	go gw.Run(ctx)
	go engine.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.ServeWS)
	wsSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		obslog.L().Info("ws_listen", zap.String("addr", cfg.ListenAddr))
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ws server error: %v", err)
		}
	}()

	adminSrv := &fasthttp.Server{Handler: gw.AdminHandler()}
	go func() {
		obslog.L().Info("admin_listen", zap.String("addr", cfg.AdminAddr))
		if err := adminSrv.ListenAndServe(cfg.AdminAddr); err != nil {
			log.Fatalf("admin server error: %v", err)
		}
	}()

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancel()
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = wsSrv.Shutdown(shutCtx)
	shutCancel()
	_ = adminSrv.Shutdown()
	_ = repo.Close()
	_ = rdb.Close()
	_ = obslog.L().Sync()
}
