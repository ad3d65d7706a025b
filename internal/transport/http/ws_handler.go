package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type WSHandler struct {
	session  *app.Session
	gateway  *Gateway
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(session *app.Session, gateway *Gateway, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		session: session,
		gateway: gateway,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	Name string `json:"name"`
}

type rejoinPayload struct {
	PlayerID string `json:"player_id"`
}

type answerPayload struct {
	Answer     string `json:"answer"`
	QuestionID string `json:"question_id"`
}

// ServeWS upgrades the request and attaches the connection to the gateway.
// Query: role=host for the host display, player_id=<id> to resume a player.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	host := query.Get("role") == "host"
	resumeID := query.Get("player_id")

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := h.gateway.Register(host)
	log := h.logger.With(zap.String("conn_id", conn.ID()), zap.Bool("host", host))
	log.Debug("connection opened")

	writerDone := make(chan struct{})
	go h.writePump(ws, conn, writerDone)

	ctx := r.Context()
	if resumeID != "" {
		if _, err := h.session.Rejoin(ctx, conn.ID(), resumeID); err != nil {
			h.gateway.SendError(conn, err)
		}
	}
	if err := h.session.Resync(ctx, conn.ID()); err != nil {
		h.gateway.SendError(conn, err)
	}

	h.readPump(ctx, ws, conn, log)

	playerID, last := h.gateway.Unregister(conn)
	<-writerDone
	if last {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.session.Disconnect(dctx, playerID); err != nil {
			log.Warn("mark player disconnected", zap.String("player_id", playerID), zap.Error(err))
		}
		cancel()
	}
	log.Debug("connection closed")
}

func (h *WSHandler) readPump(ctx context.Context, ws *websocket.Conn, conn *Conn, log *zap.Logger) {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}
		if err := h.dispatch(ctx, conn, msg); err != nil {
			log.Debug("command rejected", zap.String("type", msg.Type), zap.Error(err))
			h.gateway.SendError(conn, err)
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, conn *Conn, msg inboundMessage) error {
	switch msg.Type {
	case "join_player":
		var p joinPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		// One player per connection, otherwise the first one could never be marked gone.
		if bound := conn.PlayerID(); bound != "" {
			return fmt.Errorf("connection already joined as %s: %w", bound, domain.ErrInvalidState)
		}
		_, err := h.session.Join(ctx, conn.ID(), p.Name)
		return err
	case "rejoin":
		var p rejoinPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		if bound := conn.PlayerID(); bound != "" && bound != p.PlayerID {
			return fmt.Errorf("connection already joined as %s: %w", bound, domain.ErrInvalidState)
		}
		if _, err := h.session.Rejoin(ctx, conn.ID(), p.PlayerID); err != nil {
			return err
		}
		return h.session.Resync(ctx, conn.ID())
	case "submit_answer":
		var p answerPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		playerID := conn.PlayerID()
		if playerID == "" {
			return fmt.Errorf("join before answering: %w", domain.ErrNotFound)
		}
		_, err := h.session.Submit(ctx, playerID, p.QuestionID, p.Answer)
		return err
	case "sync":
		return h.session.Resync(ctx, conn.ID())
	case "start", "pause", "resume", "next", "finish", "reset":
		if !conn.host {
			return fmt.Errorf("%s is reserved for the host: %w", msg.Type, domain.ErrInvalidState)
		}
		return h.hostCommand(ctx, msg.Type)
	default:
		return &domain.ValidationError{Field: "type", Reason: "unsupported message type " + msg.Type}
	}
}

func (h *WSHandler) hostCommand(ctx context.Context, action string) error {
	switch action {
	case "start":
		return h.session.Start(ctx)
	case "pause":
		return h.session.Pause(ctx)
	case "resume":
		return h.session.Resume(ctx)
	case "next":
		return h.session.Next(ctx)
	case "finish":
		return h.session.Finish(ctx)
	case "reset":
		return h.session.Reset(ctx)
	}
	return fmt.Errorf("unknown host action %q: %w", action, domain.ErrInvalidState)
}

func (h *WSHandler) writePump(ws *websocket.Conn, conn *Conn, done chan<- struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
		close(done)
	}()

	for {
		select {
		case <-conn.Wake():
			for _, msg := range conn.Drain() {
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &domain.ValidationError{Field: "payload", Reason: "malformed: " + err.Error()}
	}
	return nil
}
