package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"

	"github.com/Gamechiefx/flashmath-sub004/internal/decay"
	"github.com/Gamechiefx/flashmath-sub004/internal/guard"
	"github.com/Gamechiefx/flashmath-sub004/internal/match"
	"github.com/Gamechiefx/flashmath-sub004/internal/msgcat"
	"github.com/Gamechiefx/flashmath-sub004/internal/problem"
	"github.com/Gamechiefx/flashmath-sub004/internal/queue"
	"github.com/Gamechiefx/flashmath-sub004/internal/rating"
	"github.com/Gamechiefx/flashmath-sub004/internal/ratingstore"
	"github.com/Gamechiefx/flashmath-sub004/pkg/arenadto"
)

func newTestGateway(t *testing.T) (*Gateway, ratingstore.Repository) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil { t.Fatalf("miniredis: %v", err) }
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := ratingstore.NewMemory()
	tilt := guard.NewTiltTracker(rdb, 0)
	qm := queue.NewManager(queue.Config{
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
	}, guard.DefaultParams(), tilt, repo, queue.NewStore(rdb, 0))

	cat, err := msgcat.New("")
	if err != nil { t.Fatalf("msgcat: %v", err) }

	dcfg := decay.Config{
		WarningEloPerDay:  5,
		DecayingEloPerDay: 10,
		SevereEloPerDay:   15,
		SevereTierPerWeek: 1,
		PlacementGames:    5,
		EloFloor:          100,
	}

	g := New(qm, repo, dcfg, cat, time.Second)
	svc := match.NewService(match.Config{
		QuestionsPerMatch: 3,
		StartingLives:     2,
		QuestionTime:      2 * time.Second,
		CountdownSec:      0,
		NextQuestionDelay: 20 * time.Millisecond,
		BasePoints:        100,
		SpeedBonusMax:     50,
		WrongAnswerPoints: 25,
		StateTTL:          time.Hour,
	}, rating.DefaultParams(), problem.NewArithmetic(), repo, tilt, g.Hub(), match.NewStore(rdb, time.Hour))
	g.AttachMatches(svc)
	return g, repo
}

func connect(g *Gateway, id string) *client {
	c := newClient(id, id)
	g.hub.register(c)
	return c
}

func recv(t *testing.T, c *client, event string) arenadto.Envelope {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case env := <-c.send:
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s frame for %s", event, c.playerID)
		}
	}
}

func practice(t *testing.T, repo ratingstore.Repository, id string, sessions int) {
	t.Helper()
	ctx := context.Background()
	if _, err := repo.GetOrCreate(ctx, id, id, ratingstore.Defaults{Elo: 1000, Tier: 1}); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	for i := 0; i < sessions; i++ {
		if err := repo.RecordPracticeSession(ctx, id); err != nil { t.Fatal(err) }
	}
}

func TestJoinQueueGateRendersHint(t *testing.T) {
	g, repo := newTestGateway(t)
	practice(t, repo, "fresh", 0)
	c := connect(g, "fresh")

	g.dispatch(context.Background(), c, arenadto.Command{Type: arenadto.CmdJoinQueue})

	env := recv(t, c, arenadto.EventError)
	pl := env.Payload.(arenadto.ErrorPayload)
	if pl.Code != arenadto.CodeInsufficientPractice {
		t.Fatalf("expected practice gate, got %+v", pl)
	}
	if pl.Remediation == nil || pl.Remediation.Hint == "" {
		t.Fatalf("gate must carry a rendered hint: %+v", pl)
	}
}

func TestJoinLeaveQueueFlow(t *testing.T) {
	g, repo := newTestGateway(t)
	practice(t, repo, "p1", 20)
	c := connect(g, "p1")
	ctx := context.Background()

	g.dispatch(ctx, c, arenadto.Command{Type: arenadto.CmdJoinQueue})
	env := recv(t, c, arenadto.EventQueueUpdate)
	if env.Payload.(arenadto.QueueUpdatePayload).Position != 1 {
		t.Fatalf("expected position 1: %+v", env.Payload)
	}

	g.dispatch(ctx, c, arenadto.Command{Type: arenadto.CmdJoinQueue})
	if pl := recv(t, c, arenadto.EventError).Payload.(arenadto.ErrorPayload); pl.Code != arenadto.CodeAlreadyInQueue {
		t.Fatalf("expected ALREADY_IN_QUEUE, got %+v", pl)
	}

	g.dispatch(ctx, c, arenadto.Command{Type: arenadto.CmdLeaveQueue})
	recv(t, c, arenadto.EventQueueUpdate)

	g.dispatch(ctx, c, arenadto.Command{Type: arenadto.CmdLeaveQueue})
	if pl := recv(t, c, arenadto.EventError).Payload.(arenadto.ErrorPayload); pl.Code != arenadto.CodeNotInQueue {
		t.Fatalf("expected NOT_IN_QUEUE, got %+v", pl)
	}
}

func TestSecondJoinLaunchesMatch(t *testing.T) {
	g, repo := newTestGateway(t)
	practice(t, repo, "p1", 20)
	practice(t, repo, "p2", 20)
	c1 := connect(g, "p1")
	c2 := connect(g, "p2")
	ctx := context.Background()

	g.dispatch(ctx, c1, arenadto.Command{Type: arenadto.CmdJoinQueue})
	recv(t, c1, arenadto.EventQueueUpdate)
	g.dispatch(ctx, c2, arenadto.Command{Type: arenadto.CmdJoinQueue})

	found := recv(t, c1, arenadto.EventMatchFound).Payload.(arenadto.MatchFoundPayload)
	if len(found.Players) != 2 {
		t.Fatalf("match found payload: %+v", found)
	}
	recv(t, c2, arenadto.EventMatchFound)
	recv(t, c1, arenadto.EventMatchStart)
	recv(t, c1, arenadto.EventQuestionStart)

	if !g.matches.InMatch("p1") || !g.matches.InMatch("p2") {
		t.Fatalf("both players must be in a live match")
	}
}

func TestSubmitWithoutMatch(t *testing.T) {
	g, _ := newTestGateway(t)
	c := connect(g, "lonely")

	raw, _ := json.Marshal(arenadto.SubmitAnswerRequest{Answer: 4})
	g.dispatch(context.Background(), c, arenadto.Command{Type: arenadto.CmdSubmitAnswer, Payload: raw})
	if pl := recv(t, c, arenadto.EventError).Payload.(arenadto.ErrorPayload); pl.Code != arenadto.CodeNotInMatch {
		t.Fatalf("expected NOT_IN_MATCH, got %+v", pl)
	}
}

func adminGET(t *testing.T, g *Gateway, uri string) (int, []byte) {
	t.Helper()
	var req fasthttp.Request
	req.SetRequestURI(uri)
	var rctx fasthttp.RequestCtx
	rctx.Init(&req, nil, nil)
	g.AdminHandler()(&rctx)
	return rctx.Response.StatusCode(), append([]byte(nil), rctx.Response.Body()...)
}

func TestAdminEndpoints(t *testing.T) {
	g, repo := newTestGateway(t)
	practice(t, repo, "p1", 20)

	status, body := adminGET(t, g, "/healthz")
	if status != fasthttp.StatusOK || !strings.Contains(string(body), `"status"`) {
		t.Fatalf("healthz: %d %s", status, body)
	}

	status, body = adminGET(t, g, "/api/queue/stats")
	if status != fasthttp.StatusOK || !strings.Contains(string(body), "waiting") {
		t.Fatalf("queue stats: %d %s", status, body)
	}

	c := connect(g, "p1")
	g.dispatch(context.Background(), c, arenadto.Command{Type: arenadto.CmdJoinQueue})
	recv(t, c, arenadto.EventQueueUpdate)
	status, body = adminGET(t, g, "/api/queue/entries")
	if status != fasthttp.StatusOK || !strings.Contains(string(body), `"count":1`) || !strings.Contains(string(body), "p1") {
		t.Fatalf("queue entries must list the mirrored waiter: %d %s", status, body)
	}

	status, _ = adminGET(t, g, "/api/players/ghost/league")
	if status != fasthttp.StatusNotFound {
		t.Fatalf("missing player must 404, got %d", status)
	}

	status, body = adminGET(t, g, "/api/players/p1/league")
	if status != fasthttp.StatusOK || !strings.Contains(string(body), `"elo":1000`) {
		t.Fatalf("league: %d %s", status, body)
	}

	status, body = adminGET(t, g, "/api/players/p1/decay-status")
	if status != fasthttp.StatusOK || !strings.Contains(string(body), `"phase":"grace"`) {
		t.Fatalf("decay status: %d %s", status, body)
	}
}

func TestGameOverRecommendsAreLocalized(t *testing.T) {
	g, _ := newTestGateway(t)
	c := connect(g, "p1")
	g.hub.CreateRoom("m1", "p1")

	g.hub.Broadcast("m1", arenadto.Envelope{
		Event: arenadto.EventGameOver,
		Payload: arenadto.GameOverPayload{
			Winner: "p1",
			Recommends: map[string]arenadto.Recommend{
				"p1": {Severity: "critical", Operation: "division", AccuracyPc: 40},
			},
		},
	})

	over := recv(t, c, arenadto.EventGameOver).Payload.(arenadto.GameOverPayload)
	rec, ok := over.Recommends["p1"]
	if !ok {
		t.Fatalf("recommend lost in broadcast: %+v", over)
	}
	if rec.Message == "" || !strings.Contains(rec.Message, "division") || !strings.Contains(rec.Message, "40") {
		t.Fatalf("recommend must carry rendered catalog text: %+v", rec)
	}
}
