package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Gamechiefx/flashmath-sub004/internal/msgcat"
	"github.com/Gamechiefx/flashmath-sub004/internal/obslog"
	"github.com/Gamechiefx/flashmath-sub004/pkg/arenadto"
)

const sendBuffer = 32

// client is one connected player. Outbound frames go through the buffered
// send channel; a slow consumer gets dropped rather than blocking a match.
type client struct {
	playerID string
	name     string
	conn     *websocket.Conn
	send     chan arenadto.Envelope
	done     chan struct{}
	once     sync.Once
}

func newClient(playerID, name string) *client {
	return &client{
		playerID: playerID,
		name:     name,
		send:     make(chan arenadto.Envelope, sendBuffer),
		done:     make(chan struct{}),
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// enqueue drops the frame when the client's buffer is full.
func (c *client) enqueue(env arenadto.Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Hub keys live connections by player id and groups them into per-match
// rooms. It implements the match broadcaster and localizes outbound
// recommendation text from the catalog.
type Hub struct {
	cat *msgcat.Catalog

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]*client
}

func NewHub(cat *msgcat.Catalog) *Hub {
	return &Hub{
		cat:     cat,
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
	}
}

// CreateRoom binds the given players' connections to a match before its first
// broadcast. Missing connections are tolerated; those players simply get no
// frames.
func (h *Hub) CreateRoom(matchID string, playerIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := make(map[string]*client, len(playerIDs))
	for _, id := range playerIDs {
		if c, ok := h.clients[id]; ok {
			room[id] = c
		}
	}
	h.rooms[matchID] = room
}

// Broadcast fans an event out to the match room. GAME_OVER releases the room
// after delivery.
func (h *Hub) Broadcast(matchID string, env arenadto.Envelope) {
	if over, ok := env.Payload.(arenadto.GameOverPayload); ok {
		env.Payload = h.localizeRecommends(over)
	}

	h.mu.RLock()
	room := h.rooms[matchID]
	targets := make([]*client, 0, len(room))
	for _, c := range room {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(env) {
			obslog.L().Warn("ws_send_drop", zap.String("player_id", c.playerID), zap.String("event", env.Event))
		}
	}

	if env.Event == arenadto.EventGameOver {
		h.mu.Lock()
		delete(h.rooms, matchID)
		h.mu.Unlock()
	}
}

// localizeRecommends renders each practice pointer into catalog text. A
// missing catalog or template leaves the structured fields as-is.
func (h *Hub) localizeRecommends(over arenadto.GameOverPayload) arenadto.GameOverPayload {
	if h.cat == nil || len(over.Recommends) == 0 {
		return over
	}
	recs := make(map[string]arenadto.Recommend, len(over.Recommends))
	for id, r := range over.Recommends {
		msg, err := h.cat.Render("arena.recommend."+r.Severity, map[string]any{
			"Operation": r.Operation,
			"Accuracy":  r.AccuracyPc,
		})
		if err != nil {
			obslog.L().Warn("recommend_render_error", zap.String("severity", r.Severity), zap.Error(err))
		} else {
			r.Message = msg
		}
		recs[id] = r
	}
	over.Recommends = recs
	return over
}

// Send delivers an event to one player, if connected.
func (h *Hub) Send(playerID string, env arenadto.Envelope) {
	h.mu.RLock()
	c, ok := h.clients[playerID]
	h.mu.RUnlock()
	if ok {
		c.enqueue(env)
	}
}

// register replaces any previous connection for the same player.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	prev := h.clients[c.playerID]
	h.clients[c.playerID] = c
	// keep existing room slots pointed at the fresh connection
	for _, room := range h.rooms {
		if _, ok := room[c.playerID]; ok {
			room[c.playerID] = c
		}
	}
	h.mu.Unlock()
	if prev != nil {
		prev.close()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if h.clients[c.playerID] == c {
		delete(h.clients, c.playerID)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[playerID]
	return ok
}

// ServeWS upgrades the request and runs the read loop until the connection
// drops. Identity comes from query parameters; authentication sits in front
// of this service.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID := strings.TrimSpace(r.URL.Query().Get("player_id"))
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if playerID == "" {
		http.Error(w, "player_id required", http.StatusBadRequest)
		return
	}
	if name == "" {
		name = playerID
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}

	c := newClient(playerID, name)
	c.conn = conn
	g.hub.register(c)
	obslog.L().Info("ws_connect", zap.String("player_id", playerID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go g.writePump(ctx, c)
	g.readPump(ctx, c)

	g.hub.unregister(c)
	g.handleGone(context.Background(), c)
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	obslog.L().Info("ws_disconnect", zap.String("player_id", playerID))
}

func (g *Gateway) writePump(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case env := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, c.conn, env)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (g *Gateway) readPump(ctx context.Context, c *client) {
	for {
		select {
		case <-c.done:
			return
		default:
		}
		var cmd arenadto.Command
		if err := wsjson.Read(ctx, c.conn, &cmd); err != nil {
			return
		}
		g.dispatch(ctx, c, cmd)
	}
}
