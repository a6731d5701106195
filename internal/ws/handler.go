package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
	"github.com/DoyleJ11/quiz-live-backend/internal/hub"
	"github.com/DoyleJ11/quiz-live-backend/internal/session"
	"github.com/DoyleJ11/quiz-live-backend/internal/store"
	"github.com/DoyleJ11/quiz-live-backend/internal/ticket"
	"github.com/DoyleJ11/quiz-live-backend/pkg/types"
)

// Transport-level error codes. Game rule violations use engine.ErrorCode.
const (
	CodeUnauthenticated      = "unauthenticated"
	CodeAlreadyAuthenticated = "already_authenticated"
	CodeInvalidTicket        = "invalid_ticket"
	CodeTicketExpired        = "ticket_expired"
	CodeTicketUsed           = "ticket_used"
	CodeBadJSON              = "bad_json"
	CodeUnknownType          = "unknown_type"
	CodeGameNotFound         = "game_not_found"
	CodeForbidden            = "forbidden"
	CodeNotInGame            = "not_in_game"
	CodeAlreadyInGame        = "already_in_game"
	CodeInternal             = "internal"
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
	pingInterval = 30 * time.Second
)

type Handler struct {
	hub      *hub.Hub
	catalog  store.Catalog
	tickets  *ticket.Issuer
	defaults engine.Settings
	log      *zap.Logger

	// OriginPatterns is passed to websocket.Accept; empty means same-origin only.
	OriginPatterns []string
}

func NewHandler(h *hub.Hub, catalog store.Catalog, tickets *ticket.Issuer, defaults engine.Settings, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{hub: h, catalog: catalog, tickets: tickets, defaults: defaults, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		h.log.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer ws.CloseNow()

	c := &conn{
		h:      h,
		ws:     ws,
		id:     uuid.NewString(),
		out:    make(chan types.ServerMessage, outboxSize),
		direct: make(chan types.ServerMessage, 8),
	}
	c.log = h.log.With(zap.String("client_id", c.id))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		c.writeLoop(ctx)
	}()

	c.readLoop(ctx)
	cancel()
	<-writerDone
	c.detach()
	ws.Close(websocket.StatusNormalClosure, "bye")
}

type conn struct {
	h      *Handler
	ws     *websocket.Conn
	id     string
	log    *zap.Logger
	ident  *ticket.Identity
	sess   *session.Session
	out    chan types.ServerMessage // owned by the session once attached
	direct chan types.ServerMessage // replies that never go through a session
}

func (c *conn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					c.log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			c.reply(ctx, types.NewError(CodeBadJSON, "message is not valid JSON", err.Error()))
			continue
		}
		c.dispatch(ctx, cm)
	}
}

func (c *conn) writeLoop(ctx context.Context) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-c.direct:
			if err := c.write(ctx, msg); err != nil {
				return
			}

		case msg, ok := <-c.out:
			if !ok {
				// The session let go of us: kicked, too slow or shut down.
				c.ws.Close(websocket.StatusPolicyViolation, "removed from session")
				return
			}
			if err := c.write(ctx, msg); err != nil {
				return
			}

		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (c *conn) write(ctx context.Context, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("marshal server message", zap.String("type", msg.Type), zap.Error(err))
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(wctx, websocket.MessageText, payload)
}

func (c *conn) reply(ctx context.Context, msg types.ServerMessage) {
	select {
	case c.direct <- msg:
	case <-ctx.Done():
	}
}

func (c *conn) dispatch(ctx context.Context, cm types.ClientMessage) {
	if cm.Type == types.ClientAuthenticate {
		c.authenticate(ctx, cm.Data)
		return
	}
	if c.ident == nil {
		c.reply(ctx, types.NewError(CodeUnauthenticated, "authenticate first", cm.Type))
		return
	}

	switch cm.Type {
	case types.ClientTeacherCreateGame:
		c.teacherCreateGame(ctx, cm.Data)
	case types.ClientPlayerJoin:
		c.playerJoin(ctx, cm.Data)
	default:
		cmd, err := toEngineCommand(cm)
		if err != nil {
			c.reply(ctx, types.NewError(codeFor(err), err.Error(), cm.Type))
			return
		}
		c.forward(ctx, cm.Type, cmd)
	}
}

func (c *conn) authenticate(ctx context.Context, data json.RawMessage) {
	if c.ident != nil {
		c.reply(ctx, types.NewError(CodeAlreadyAuthenticated, "connection is already authenticated", ""))
		return
	}
	var p types.AuthenticatePayload
	if err := decode(data, &p); err != nil {
		c.reply(ctx, types.NewError(CodeBadJSON, "invalid authenticate payload", err.Error()))
		return
	}

	id, err := c.h.tickets.Redeem(ctx, p.Ticket)
	if err != nil {
		code := CodeInvalidTicket
		switch {
		case errors.Is(err, ticket.ErrTicketExpired):
			code = CodeTicketExpired
		case errors.Is(err, ticket.ErrTicketUsed):
			code = CodeTicketUsed
		case !errors.Is(err, ticket.ErrInvalidTicket):
			code = CodeInternal
			c.log.Error("redeem ticket", zap.Error(err))
		}
		c.reply(ctx, types.NewError(code, "authentication failed", ""))
		return
	}

	c.ident = &id
	c.log = c.log.With(zap.String("game_id", id.GameID), zap.String("role", string(id.Role)))
	c.reply(ctx, types.ServerMessage{Type: types.ServerAuthenticated, Data: types.Authenticated{
		Role:     string(id.Role),
		GameID:   id.GameID,
		PlayerID: id.PlayerID,
	}})
}

func (c *conn) teacherCreateGame(ctx context.Context, data json.RawMessage) {
	if c.ident.Role != engine.RoleTeacher {
		c.reply(ctx, types.NewError(engine.ErrorCode(engine.ErrNotTeacher), engine.ErrNotTeacher.Error(), types.ClientTeacherCreateGame))
		return
	}
	var p types.CreateGamePayload
	if err := decode(data, &p); err != nil {
		c.reply(ctx, types.NewError(CodeBadJSON, "invalid teacher-create-game payload", err.Error()))
		return
	}
	if p.GameID == "" {
		p.GameID = c.ident.GameID
	}
	if p.GameID != c.ident.GameID {
		c.reply(ctx, types.NewError(CodeForbidden, "ticket was issued for another game", ""))
		return
	}
	if c.sess != nil {
		c.reply(ctx, types.NewError(CodeAlreadyInGame, "connection already joined a game", ""))
		return
	}

	sess, err := c.h.hub.Get(ctx, p.GameID)
	if err != nil {
		return
	}
	if sess == nil {
		state, err := c.h.loadState(ctx, p.GameID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.reply(ctx, types.NewError(CodeGameNotFound, "game does not exist", p.GameID))
				return
			}
			c.log.Error("load game", zap.Error(err))
			c.reply(ctx, types.NewError(CodeInternal, "could not load game", ""))
			return
		}
		if sess, err = c.h.hub.Ensure(ctx, state); err != nil {
			return
		}
	}

	c.attach(ctx, sess, nil)
}

func (c *conn) playerJoin(ctx context.Context, data json.RawMessage) {
	var p types.PlayerJoinPayload
	if err := decode(data, &p); err != nil {
		c.reply(ctx, types.NewError(CodeBadJSON, "invalid player-join payload", err.Error()))
		return
	}
	if c.ident.Role != engine.RoleStudent {
		c.reply(ctx, types.NewError(CodeForbidden, "only students can join as players", ""))
		return
	}

	join := engine.Command{Type: engine.CmdJoin, Name: p.Name, Animal: p.Animal}
	if c.sess != nil {
		c.forward(ctx, types.ClientPlayerJoin, join)
		return
	}

	sess, err := c.h.hub.Get(ctx, c.ident.GameID)
	if err != nil {
		return
	}
	if sess == nil {
		c.reply(ctx, types.NewError(CodeGameNotFound, "game is not running", c.ident.GameID))
		return
	}
	c.attach(ctx, sess, &join)
}

// attach hands the outbox to sess. A student joins in the same step so a rejected join
// never leaves the connection listening to the game.
func (c *conn) attach(ctx context.Context, sess *session.Session, join *engine.Command) {
	reply := make(chan error, 1)
	err := sess.Send(ctx, session.Attach{
		ClientID: c.id,
		Role:     c.ident.Role,
		PlayerID: c.ident.PlayerID,
		Outbox:   c.out,
		Join:     join,
		Reply:    reply,
	})
	if err != nil {
		c.reply(ctx, types.NewError(CodeGameNotFound, "game is not running", c.ident.GameID))
		return
	}

	select {
	case err = <-reply:
	case <-sess.Done():
		c.reply(ctx, types.NewError(CodeGameNotFound, "game is not running", c.ident.GameID))
		return
	case <-ctx.Done():
		// the attach may still land; let detach clean it up
		c.sess = sess
		return
	}
	if err != nil {
		c.reply(ctx, types.NewError(engine.ErrorCode(err), err.Error(), types.ClientPlayerJoin))
		return
	}
	c.sess = sess
}

func (c *conn) forward(ctx context.Context, event string, cmd engine.Command) {
	if c.sess == nil {
		c.reply(ctx, types.NewError(CodeNotInGame, "join a game first", event))
		return
	}
	if err := c.sess.Send(ctx, session.FromClient{ClientID: c.id, Cmd: cmd}); err != nil {
		c.reply(ctx, types.NewError(CodeGameNotFound, "game is no longer running", event))
	}
}

func (c *conn) detach() {
	if c.sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_ = c.sess.Send(ctx, session.Detach{ClientID: c.id})
}

func (h *Handler) loadState(ctx context.Context, gameID string) (engine.State, error) {
	g, err := h.catalog.Game(ctx, gameID)
	if err != nil {
		return engine.State{}, err
	}
	qs, err := h.catalog.Questions(ctx, gameID)
	if err != nil {
		return engine.State{}, err
	}
	return engine.NewState(g.ID, g.Code, g.Mode, MergeSettings(h.defaults, g.Settings), qs), nil
}

// MergeSettings fills unset per-game values from the server defaults.
func MergeSettings(defaults, game engine.Settings) engine.Settings {
	out := game
	if out.TimePerQuestionSec <= 0 {
		out.TimePerQuestionSec = defaults.TimePerQuestionSec
	}
	if out.MaxPlayers <= 0 {
		out.MaxPlayers = defaults.MaxPlayers
	}
	if out.MaxNameLength <= 0 {
		out.MaxNameLength = defaults.MaxNameLength
	}
	if out.PointsPerCorrect <= 0 {
		out.PointsPerCorrect = defaults.PointsPerCorrect
	}
	if out.SpeedBonus <= 0 {
		out.SpeedBonus = defaults.SpeedBonus
	}
	out.AutoReveal = out.AutoReveal || defaults.AutoReveal
	return out
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
