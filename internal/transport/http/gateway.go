package http

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type scope int

const (
	scopeAll scope = iota
	scopeHost
	scopePlayer
	scopeConn
)

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Conn is one client connection as seen by the gateway. Messages queue in a
// FIFO outbox drained by the connection's writer goroutine.
type Conn struct {
	id   string
	host bool

	mu       sync.Mutex
	playerID string
	queue    [][]byte
	closed   bool

	wake chan struct{}
	done chan struct{}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Done is closed when the gateway drops the connection.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Wake signals that the outbox has messages.
func (c *Conn) Wake() <-chan struct{} { return c.wake }

// Drain takes every queued message.
func (c *Conn) Drain() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queue
	c.queue = nil
	return q
}

func (c *Conn) enqueue(msg []byte, limit int) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return true
	}
	if limit > 0 && len(c.queue) >= limit {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, msg)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.queue = nil
	close(c.done)
}

// Gateway fans domain events out to connections. Publish never blocks: a
// connection whose outbox overflows is dropped and has to reconnect and resync.
type Gateway struct {
	logger      *zap.Logger
	outboxLimit int

	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewGateway(outboxLimit int, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		logger:      logger,
		outboxLimit: outboxLimit,
		conns:       make(map[string]*Conn),
	}
}

// Register adds a connection. Host connections receive host-only messages.
func (g *Gateway) Register(host bool) *Conn {
	c := &Conn{
		id:   uuid.NewString(),
		host: host,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()
	return c
}

// Unregister removes c. It returns the bound player id and whether no other
// connection is still bound to that player.
func (g *Gateway) Unregister(c *Conn) (playerID string, last bool) {
	g.mu.Lock()
	delete(g.conns, c.id)
	playerID = c.PlayerID()
	last = playerID != ""
	for _, other := range g.conns {
		if playerID != "" && other.PlayerID() == playerID {
			last = false
			break
		}
	}
	g.mu.Unlock()
	c.close()
	return playerID, last
}

// Send queues a message for a single connection.
func (g *Gateway) Send(c *Conn, typ string, payload any) {
	msg, err := json.Marshal(outboundMessage[any]{Type: typ, Payload: payload})
	if err != nil {
		g.logger.Error("marshal message", zap.String("type", typ), zap.Error(err))
		return
	}
	if !c.enqueue(msg, g.outboxLimit) {
		g.drop(c)
	}
}

// SendError replies to a single connection with the error's wire code.
func (g *Gateway) SendError(c *Conn, err error) {
	g.Send(c, "error", errorPayload{Code: domain.Code(err), Message: err.Error()})
}

// Publish implements app.Publisher. It is called by the session authority only,
// which keeps per-connection delivery in commit order.
func (g *Gateway) Publish(ev app.Event) {
	if joined, ok := ev.(app.PlayerJoined); ok {
		g.bind(joined.ConnID, joined.Player.ID)
		g.deliver(scopeConn, joined.ConnID, "joined", map[string]any{"player": joined.Player})
	}
	sc, target, payload := route(ev)
	g.deliver(sc, target, app.EventName(ev), payload)
}

func (g *Gateway) bind(connID, playerID string) {
	g.mu.RLock()
	c, ok := g.conns[connID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	c.mu.Lock()
	c.playerID = playerID
	c.mu.Unlock()
}

func (g *Gateway) deliver(sc scope, target, typ string, payload any) {
	msg, err := json.Marshal(outboundMessage[any]{Type: typ, Payload: payload})
	if err != nil {
		g.logger.Error("marshal message", zap.String("type", typ), zap.Error(err))
		return
	}

	g.mu.RLock()
	recipients := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		switch sc {
		case scopeAll:
		case scopeHost:
			if !c.host {
				continue
			}
		case scopePlayer:
			if c.PlayerID() != target {
				continue
			}
		case scopeConn:
			if c.id != target {
				continue
			}
		}
		recipients = append(recipients, c)
	}
	g.mu.RUnlock()

	for _, c := range recipients {
		if !c.enqueue(msg, g.outboxLimit) {
			g.drop(c)
		}
	}
}

func (g *Gateway) drop(c *Conn) {
	g.logger.Warn("outbox full, dropping connection",
		zap.String("conn_id", c.id),
		zap.String("player_id", c.PlayerID()),
		zap.Int("limit", g.outboxLimit))
	c.close()
}

func route(ev app.Event) (scope, string, any) {
	switch e := ev.(type) {
	case app.QuestionsLoaded:
		return scopeAll, "", map[string]any{"set_id": e.SetID, "title": e.Title, "count": e.Count}
	case app.PlayerJoined:
		return scopeAll, "", map[string]any{"player": e.Player, "players": e.Players, "rejoined": e.Rejoined}
	case app.PlayerLeft:
		return scopeAll, "", map[string]any{"player_id": e.PlayerID, "players": e.Players}
	case app.QuizStarted:
		return scopeAll, "", map[string]any{"session_id": e.SessionID, "total_questions": e.Total}
	case app.QuestionOpened:
		return scopeAll, "", map[string]any{"question": e.Question}
	case app.TimerTicked:
		return scopeAll, "", map[string]any{"question_id": e.QuestionID, "remaining": e.Remaining}
	case app.QuestionClosed:
		return scopeAll, "", map[string]any{"question_id": e.QuestionID, "correct_answer": e.CorrectAnswer}
	case app.QuizPaused:
		return scopeAll, "", map[string]any{"question_id": e.QuestionID, "remaining": e.Remaining}
	case app.QuizResumed:
		return scopeAll, "", map[string]any{"question_id": e.QuestionID, "remaining": e.Remaining}
	case app.AnswerAccepted:
		return scopePlayer, e.PlayerID, e.Feedback
	case app.AnswerProgress:
		return scopeHost, "", map[string]any{"question_id": e.QuestionID, "answered": e.Answered, "connected": e.Connected}
	case app.LeaderboardChanged:
		return scopeAll, "", map[string]any{"leaderboard": e.Leaderboard}
	case app.QuizFinished:
		return scopeAll, "", map[string]any{"leaderboard": e.Leaderboard}
	case app.QuizReset:
		return scopeAll, "", map[string]any{"session_id": e.SessionID}
	case app.StateSynced:
		return scopeConn, e.ConnID, map[string]any{"snapshot": e.Snapshot}
	default:
		return scopeAll, "", ev
	}
}
