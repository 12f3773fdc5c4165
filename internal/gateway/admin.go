package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/Gamechiefx/flashmath-sub004/internal/decay"
)

// AdminHandler serves the operational read-only API.
func (g *Gateway) AdminHandler() fasthttp.RequestHandler {
	started := time.Now()
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		switch {
		case path == "/healthz":
			writeJSON(ctx, fasthttp.StatusOK, map[string]any{
				"status":         "ok",
				"uptime_sec":     int(time.Since(started).Seconds()),
				"active_matches": g.matches.ActiveCount(),
			})

		case path == "/api/queue/stats":
			writeJSON(ctx, fasthttp.StatusOK, g.qm.Stats())

		case path == "/api/queue/entries":
			entries, err := g.qm.MirroredEntries(ctx)
			if err != nil {
				writeJSON(ctx, fasthttp.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(ctx, fasthttp.StatusOK, map[string]any{"count": len(entries), "entries": entries})

		case path == "/api/matches/active":
			snaps, err := g.matches.ActiveSnapshots(ctx)
			if err != nil {
				writeJSON(ctx, fasthttp.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(ctx, fasthttp.StatusOK, map[string]any{"count": len(snaps), "matches": snaps})

		case strings.HasPrefix(path, "/api/players/"):
			g.handlePlayer(ctx, strings.TrimPrefix(path, "/api/players/"))

		default:
			writeJSON(ctx, fasthttp.StatusNotFound, map[string]string{"error": "not found"})
		}
	}
}

func (g *Gateway) handlePlayer(ctx *fasthttp.RequestCtx, rest string) {
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		writeJSON(ctx, fasthttp.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	playerID, resource := parts[0], parts[1]

	rec, err := g.repo.Get(context.Background(), playerID)
	if err != nil {
		writeJSON(ctx, fasthttp.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rec == nil {
		writeJSON(ctx, fasthttp.StatusNotFound, map[string]string{"error": "player not found"})
		return
	}

	switch resource {
	case "decay-status":
		st := g.decayCfg.StatusFor(rec, time.Now())
		writeJSON(ctx, fasthttp.StatusOK, decayStatusResponse{
			PlayerID: playerID,
			Status:   st,
			Message:  g.decayMessage(st),
		})
	case "league":
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"player_id":          playerID,
			"elo":                rec.Elo,
			"peak_elo":           rec.PeakElo,
			"tier":               rec.Tier,
			"league":             rec.Rank.League,
			"division":           rec.Rank.Division,
			"games_since_change": rec.Rank.GamesSinceChange,
		})
	default:
		writeJSON(ctx, fasthttp.StatusNotFound, map[string]string{"error": "not found"})
	}
}

type decayStatusResponse struct {
	PlayerID string       `json:"player_id"`
	Status   decay.Status `json:"status"`
	Message  string       `json:"message,omitempty"`
}

func (g *Gateway) decayMessage(st decay.Status) string {
	if g.cat == nil {
		return ""
	}
	switch st.Phase {
	case decay.PhaseWarning, decay.PhaseDecaying, decay.PhaseSevere:
		s, err := g.cat.Render("arena.decay.warning", map[string]any{
			"Days":      st.DaysInactive,
			"EloAtRisk": st.EloAtRisk,
		})
		if err == nil {
			return s
		}
	case decay.PhaseReturning:
		s, err := g.cat.Render("arena.decay.returning", map[string]any{
			"Placement": st.PlacementRemaining,
		})
		if err == nil {
			return s
		}
	}
	return ""
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	_ = json.NewEncoder(ctx).Encode(v)
}
