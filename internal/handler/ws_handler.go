package handler

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/neetpg/battle-backend/internal/broadcast"
	"github.com/neetpg/battle-backend/internal/response"
	ws "github.com/neetpg/battle-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// BattleFeed is the subscriber side of the battle broadcaster.
type BattleFeed interface {
	Snapshot(ctx context.Context, battleID uuid.UUID) ([]byte, error)
	Subscribe(ctx context.Context, battleID uuid.UUID) (*broadcast.Subscription, error)
}

// WSHandler streams battle events to players.
type WSHandler struct {
	feed     BattleFeed
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(feed BattleFeed, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		feed:     feed,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// BattleRoom godoc
// WS /ws/battle/:battle_id
// Sends the last phase event, then every event broadcast for the battle.
func (h *WSHandler) BattleRoom(c *gin.Context) {
	battleID, err := uuid.Parse(c.Param("battle_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribe before reading the snapshot so nothing published in between is lost.
	sub, err := h.feed.Subscribe(ctx, battleID)
	if err != nil {
		h.log.Error().Err(err).Str("battle_id", battleID.String()).Msg("Subscribe failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("battle_id", battleID.String()).Logger()
	wsLog.Debug().Msg("Player connected")

	// Single writer: readLoop hands its replies to this goroutine.
	out := make(chan reply, 8)
	ws.KeepAlive(conn)
	go h.readLoop(conn, out, cancel, wsLog)

	snap, err := h.feed.Snapshot(ctx, battleID)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Snapshot read failed")
	} else if snap != nil {
		if err := ws.WriteRaw(conn, snap); err != nil {
			return
		}
	}

	pinger := time.NewTicker(ws.PingPeriod)
	defer pinger.Stop()

	for {
		select {
		case <-ctx.Done():
			wsLog.Debug().Msg("Player disconnected")
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			// An event published between Subscribe and Snapshot arrives twice.
			if snap != nil && bytes.Equal(msg, snap) {
				snap = nil
				continue
			}
			snap = nil
			if err := ws.WriteRaw(conn, msg); err != nil {
				return
			}
		case write := <-out:
			if err := write(conn); err != nil {
				return
			}
		case <-pinger.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		}
	}
}

type reply func(*websocket.Conn) error

// readLoop answers client actions until the connection closes.
func (h *WSHandler) readLoop(conn *websocket.Conn, out chan<- reply, done context.CancelFunc, log zerolog.Logger) {
	defer done()
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		var r reply
		switch msg.Action {
		case ws.ActionPing:
			r = func(c *websocket.Conn) error {
				return ws.WriteTyped(c, ws.PongResponse{Type: ws.EventPong})
			}
		default:
			errMsg := "unknown action: " + string(msg.Action)
			r = func(c *websocket.Conn) error { return ws.WriteError(c, errMsg) }
		}
		select {
		case out <- r:
		default:
			log.Warn().Msg("Reply dropped, writer busy")
		}
	}
}
