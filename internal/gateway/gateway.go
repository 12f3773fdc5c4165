package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Gamechiefx/flashmath-sub004/internal/decay"
	"github.com/Gamechiefx/flashmath-sub004/internal/match"
	"github.com/Gamechiefx/flashmath-sub004/internal/msgcat"
	"github.com/Gamechiefx/flashmath-sub004/internal/obslog"
	"github.com/Gamechiefx/flashmath-sub004/internal/queue"
	"github.com/Gamechiefx/flashmath-sub004/internal/ratingstore"
	"github.com/Gamechiefx/flashmath-sub004/pkg/arenadto"
)

// Gateway is the realtime edge: one websocket hub for players plus the
// fasthttp admin surface.
type Gateway struct {
	hub      *Hub
	qm       *queue.Manager
	matches  *match.Service
	repo     ratingstore.Repository
	decayCfg decay.Config
	cat      *msgcat.Catalog

	sweepInterval time.Duration
}

func New(qm *queue.Manager, repo ratingstore.Repository, decayCfg decay.Config, cat *msgcat.Catalog, sweepInterval time.Duration) *Gateway {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Second
	}
	return &Gateway{
		hub:           NewHub(cat),
		qm:            qm,
		repo:          repo,
		decayCfg:      decayCfg,
		cat:           cat,
		sweepInterval: sweepInterval,
	}
}

// Hub exposes the broadcaster for wiring the match service.
func (g *Gateway) Hub() *Hub { return g.hub }

// AttachMatches wires the match service after the hub exists. The service
// needs the hub as its broadcaster, so construction happens in two steps.
func (g *Gateway) AttachMatches(s *match.Service) { g.matches = s }

// Run drives the queue sweeper: expired entries get told, found pairs launch.
func (g *Gateway) Run(ctx context.Context) {
	g.qm.RunSweeper(ctx, g.sweepInterval, g.onQueueTimeout, g.onMatchFound)
}

func (g *Gateway) onQueueTimeout(e queue.Entry) {
	msg := "no opponent found, please try again"
	if g.cat != nil {
		if s, err := g.cat.Render("arena.queue.timeout", map[string]any{}); err == nil {
			msg = s
		}
	}
	g.hub.Send(e.PlayerID, arenadto.Envelope{
		Event:   arenadto.EventError,
		Payload: arenadto.ErrorPayload{Code: arenadto.CodeNotInQueue, Message: msg},
	})
}

func (g *Gateway) onMatchFound(prop queue.Proposal) {
	g.launch(context.Background(), prop)
}

func (g *Gateway) launch(ctx context.Context, prop queue.Proposal) {
	ids := make([]string, 0, len(prop.Players))
	for _, e := range prop.Players {
		ids = append(ids, e.PlayerID)
	}
	g.hub.CreateRoom(prop.MatchID, ids...)
	if _, err := g.matches.Launch(ctx, prop); err != nil {
		obslog.L().Error("match_launch_error", zap.String("match_id", prop.MatchID), zap.Error(err))
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *client, cmd arenadto.Command) {
	switch cmd.Type {
	case arenadto.CmdJoinQueue:
		var req arenadto.JoinQueueRequest
		if len(cmd.Payload) > 0 {
			if err := json.Unmarshal(cmd.Payload, &req); err != nil {
				g.sendError(c, err)
				return
			}
		}
		// identity always comes from the connection, not the payload
		_, prop, err := g.qm.Join(ctx, queue.JoinRequest{PlayerID: c.playerID, Name: c.name, Tier: req.Tier})
		if err != nil {
			g.sendError(c, err)
			return
		}
		if prop != nil {
			g.launch(ctx, *prop)
			return
		}
		if pos, perr := g.qm.Position(c.playerID); perr == nil {
			c.enqueue(arenadto.Envelope{
				Event:   arenadto.EventQueueUpdate,
				Payload: arenadto.QueueUpdatePayload{Position: pos},
			})
		}

	case arenadto.CmdLeaveQueue:
		if err := g.qm.Leave(ctx, c.playerID); err != nil {
			g.sendError(c, err)
			return
		}
		c.enqueue(arenadto.Envelope{
			Event:   arenadto.EventQueueUpdate,
			Payload: arenadto.QueueUpdatePayload{Position: 0},
		})

	case arenadto.CmdSubmitAnswer:
		var req arenadto.SubmitAnswerRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			g.sendError(c, err)
			return
		}
		if err := g.matches.SubmitAnswer(ctx, c.playerID, req.Answer, req.ClientTS); err != nil {
			g.sendError(c, err)
		}

	default:
		g.sendError(c, arenadto.DomainError{Message: "unknown command: " + cmd.Type})
	}
}

// handleGone runs after a connection closes. A fast reconnect keeps queue and
// match state; otherwise the player leaves the queue and forfeits any live
// match.
func (g *Gateway) handleGone(ctx context.Context, c *client) {
	if g.hub.connected(c.playerID) {
		return
	}
	if err := g.qm.Leave(ctx, c.playerID); err != nil && !errors.Is(err, queue.ErrNotQueued) {
		obslog.L().Warn("queue_leave_error", zap.String("player_id", c.playerID), zap.Error(err))
	}
	g.matches.HandleDisconnect(ctx, c.playerID)
}

func (g *Gateway) sendError(c *client, err error) {
	var gate arenadto.GateError
	if errors.As(err, &gate) {
		rem := gate.Remediation
		rem.Hint = g.renderGateHint(gate.Code, rem)
		c.enqueue(arenadto.Envelope{
			Event:   arenadto.EventError,
			Payload: arenadto.ErrorPayload{Code: gate.Code, Message: gate.Message, Remediation: &rem},
		})
		return
	}

	var derr arenadto.DomainError
	if errors.As(err, &derr) {
		c.enqueue(arenadto.Envelope{
			Event:   arenadto.EventError,
			Payload: arenadto.ErrorPayload{Code: derr.Code, Message: derr.Error()},
		})
		return
	}

	switch {
	case errors.Is(err, queue.ErrAlreadyQueued):
		c.enqueue(arenadto.Envelope{
			Event:   arenadto.EventError,
			Payload: arenadto.ErrorPayload{Code: arenadto.CodeAlreadyInQueue, Message: "already waiting in queue"},
		})
	case errors.Is(err, queue.ErrNotQueued):
		c.enqueue(arenadto.Envelope{
			Event:   arenadto.EventError,
			Payload: arenadto.ErrorPayload{Code: arenadto.CodeNotInQueue, Message: "not in queue"},
		})
	default:
		obslog.L().Error("gateway_error", zap.String("player_id", c.playerID), zap.Error(err))
		c.enqueue(arenadto.Envelope{
			Event:   arenadto.EventError,
			Payload: arenadto.ErrorPayload{Message: "internal error"},
		})
	}
}

func (g *Gateway) renderGateHint(code string, rem arenadto.Remediation) string {
	if g.cat == nil {
		return rem.Hint
	}
	var (
		key  string
		data map[string]any
	)
	switch code {
	case arenadto.CodeInsufficientPractice:
		key, data = "arena.gate.insufficient_practice", map[string]any{"Needed": rem.SessionsNeeded}
	case arenadto.CodeTiltProtection:
		key, data = "arena.gate.tilt_protection", map[string]any{"Minutes": rem.BreakMinutes}
	default:
		return rem.Hint
	}
	s, err := g.cat.Render(key, data)
	if err != nil {
		return rem.Hint
	}
	return s
}
