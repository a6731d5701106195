package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
	"github.com/DoyleJ11/quiz-live-backend/internal/store"
	"github.com/DoyleJ11/quiz-live-backend/pkg/types"
)

var ErrClosed = errors.New("session closed")

type Msg interface{ isSessionMsg() }

// Attach registers a connection. Students carry the player id from their ticket;
// teachers leave it empty.
//
// When Join is set the client only stays attached if the join is accepted. A rejected
// client is forgotten without closing Outbox, and the error is sent on Reply. Reply, if
// set, needs room for one value.
type Attach struct {
	ClientID string
	Role     engine.Role
	PlayerID string
	Outbox   chan types.ServerMessage
	Join     *engine.Command
	Reply    chan error
}

func (Attach) isSessionMsg() {}

type Detach struct{ ClientID string }

func (Detach) isSessionMsg() {}

type FromClient struct {
	ClientID string
	Cmd      engine.Command
}

func (FromClient) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type timerTick struct{ gen uint64 }

func (timerTick) isSessionMsg() {}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

type Options struct {
	Logger         *zap.Logger
	TickInterval   time.Duration
	Archive        store.Archive
	ArchiveTimeout time.Duration
	// OnEnded runs on the session goroutine once the game reaches ended.
	OnEnded func(*Session)
	// Pending, if set, counts archive writes still in flight.
	Pending *sync.WaitGroup
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.ArchiveTimeout <= 0 {
		o.ArchiveTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type client struct {
	role     engine.Role
	playerID string
	out      chan types.ServerMessage
}

// Session owns one game. All state lives on its goroutine; everything else talks to it
// through the inbox.
type Session struct {
	id      string
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]client
	opts    Options
	log     *zap.Logger

	timerGen  uint64
	timerStop chan struct{}

	idleSince atomic.Int64 // unix nanos, 0 while a teacher is attached

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

func New(parent context.Context, initial engine.State, opts Options) *Session {
	ctx, cancel := context.WithCancel(parent)
	opts = opts.withDefaults()

	s := &Session{
		id:      initial.ID,
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]client),
		opts:    opts,
		log:     opts.Logger.With(zap.String("game_id", initial.ID)),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	s.idleSince.Store(opts.Now().UnixNano())

	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

// Inbox is exposed for tests; the transport goes through Send.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Stopped is closed once the session goroutine has returned. Done fires earlier, as
// soon as the session is asked to stop.
func (s *Session) Stopped() <-chan struct{} { return s.stopped }

// Send delivers m unless the session or ctx is finished first.
func (s *Session) Send(ctx context.Context, m Msg) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot asks the session for its current view.
func (s *Session) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.ctx.Done():
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (s *Session) Stop() { s.cancel() }

// IdleSince reports when the last teacher connection went away.
func (s *Session) IdleSince() (time.Time, bool) {
	n := s.idleSince.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

func (s *Session) loop() {
	defer s.shutdown()

	for {
		select {
		case <-s.ctx.Done():
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Attach:
				s.attach(msg)

			case Detach:
				s.detach(msg.ClientID)
				if s.state.Phase == engine.PhaseEnded && len(s.clients) == 0 {
					s.log.Debug("ended session has no clients left, stopping")
					return
				}

			case FromClient:
				c, ok := s.clients[msg.ClientID]
				if !ok {
					s.log.Debug("command from unknown client", zap.String("client_id", msg.ClientID))
					break
				}
				cmd := msg.Cmd
				cmd.Role = c.role
				if c.role == engine.RoleStudent {
					cmd.PlayerID = c.playerID
				}
				cmd.At = s.opts.Now()
				if err := s.apply(cmd); err != nil {
					s.reject(msg.ClientID, cmd, err)
				}

			case timerTick:
				if msg.gen != s.timerGen || s.timerStop == nil {
					break
				}
				err := s.apply(engine.Command{Type: engine.CmdTimerTick, Role: engine.RoleSystem, At: s.opts.Now()})
				if err != nil && !errors.Is(err, engine.ErrStaleTransition) {
					s.log.Warn("timer tick rejected", zap.Error(err))
				}

			case GetState:
				msg.Reply <- View{
					Version:    s.version,
					NumClients: len(s.clients),
					State:      s.state,
				}

			case Shutdown:
				return
			}
		}
	}
}

func (s *Session) shutdown() {
	s.disarmTimer()
	for id, c := range s.clients {
		close(c.out)
		delete(s.clients, id)
	}
	s.cancel()
	s.log.Debug("session stopped")
	close(s.stopped)
}

func (s *Session) attach(msg Attach) {
	if old, ok := s.clients[msg.ClientID]; ok {
		close(old.out)
	}
	s.clients[msg.ClientID] = client{role: msg.Role, playerID: msg.PlayerID, out: msg.Outbox}

	if msg.Join != nil {
		cmd := *msg.Join
		cmd.Type = engine.CmdJoin
		cmd.Role = msg.Role
		cmd.PlayerID = msg.PlayerID
		cmd.At = s.opts.Now()
		if err := s.apply(cmd); err != nil {
			delete(s.clients, msg.ClientID)
			s.log.Debug("join rejected",
				zap.String("client_id", msg.ClientID),
				zap.String("player_id", msg.PlayerID),
				zap.Error(err))
			replyAttach(msg, err)
			return
		}
	}

	if msg.Role == engine.RoleTeacher {
		s.idleSince.Store(0)
		s.deliver(msg.ClientID, gameCreated(s.state))
		s.deliver(msg.ClientID, playersSync(s.state))
	}
	s.log.Debug("client attached",
		zap.String("client_id", msg.ClientID),
		zap.String("role", string(msg.Role)),
		zap.String("player_id", msg.PlayerID))
	replyAttach(msg, nil)
}

func replyAttach(msg Attach, err error) {
	if msg.Reply != nil {
		msg.Reply <- err
	}
}

func (s *Session) detach(clientID string) {
	c, ok := s.clients[clientID]
	if !ok {
		return
	}
	close(c.out)
	delete(s.clients, clientID)
	s.afterLeave(c)
}

// afterLeave marks the player disconnected once its last connection is gone and tracks
// teacher absence for idle eviction.
func (s *Session) afterLeave(c client) {
	switch c.role {
	case engine.RoleTeacher:
		if !s.hasRole(engine.RoleTeacher) {
			s.idleSince.Store(s.opts.Now().UnixNano())
		}
	case engine.RoleStudent:
		if s.playerAttached(c.playerID) {
			return
		}
		if _, known := s.state.Players[c.playerID]; !known {
			return
		}
		err := s.apply(engine.Command{
			Type:     engine.CmdDisconnect,
			Role:     engine.RoleSystem,
			PlayerID: c.playerID,
			At:       s.opts.Now(),
		})
		if err != nil && !errors.Is(err, engine.ErrGameEnded) {
			s.log.Warn("disconnect rejected", zap.String("player_id", c.playerID), zap.Error(err))
		}
	}
}

// apply runs cmd through the engine and fans the resulting events out.
func (s *Session) apply(cmd engine.Command) error {
	prev := s.state
	events, next, err := engine.Apply(prev, cmd)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	s.state = next
	s.version++
	s.syncTimer(prev, next)

	for _, ev := range events {
		msg, ok := project(next, ev)
		if ok {
			s.broadcast(msg)
		}
		s.afterEvent(ev)
	}
	return nil
}

func (s *Session) afterEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EvtPlayerJoined, engine.EvtPlayerReconnected:
		snap := playersSync(s.state)
		for id, c := range s.clients {
			if c.playerID == ev.PlayerID {
				s.deliver(id, snap)
			}
		}

	case engine.EvtPlayerKicked:
		for id, c := range s.clients {
			if c.playerID == ev.PlayerID {
				close(c.out)
				delete(s.clients, id)
			}
		}

	case engine.EvtGameEnded:
		s.log.Info("game ended", zap.Int("players", len(s.state.Players)))
		if s.opts.OnEnded != nil {
			s.opts.OnEnded(s)
		}
		if s.opts.Archive != nil {
			if s.opts.Pending != nil {
				s.opts.Pending.Add(1)
			}
			go s.archive(resultsOf(s.state))
		}
	}
}

func (s *Session) archive(res store.GameResult) {
	if s.opts.Pending != nil {
		defer s.opts.Pending.Done()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ArchiveTimeout)
	defer cancel()
	if err := s.opts.Archive.SaveResults(ctx, res); err != nil {
		s.log.Error("archive results", zap.Error(err))
	}
}

func (s *Session) reject(clientID string, cmd engine.Command, err error) {
	if errors.Is(err, engine.ErrStaleTransition) {
		return
	}
	s.log.Debug("command rejected",
		zap.String("client_id", clientID),
		zap.String("command", string(cmd.Type)),
		zap.Error(err))
	s.deliver(clientID, types.NewError(engine.ErrorCode(err), err.Error(), string(cmd.Type)))
}

func (s *Session) broadcast(msg types.ServerMessage) {
	var dropped []client
	for id, c := range s.clients {
		select {
		case c.out <- msg:
		default:
			// Client is slow/full - drop them.
			close(c.out)
			delete(s.clients, id)
			dropped = append(dropped, c)
		}
	}
	for _, c := range dropped {
		s.log.Info("dropped slow client", zap.String("player_id", c.playerID))
		s.afterLeave(c)
	}
}

// deliver sends to a single client with the same drop rule as broadcast.
func (s *Session) deliver(clientID string, msg types.ServerMessage) {
	c, ok := s.clients[clientID]
	if !ok {
		return
	}
	select {
	case c.out <- msg:
	default:
		close(c.out)
		delete(s.clients, clientID)
		s.afterLeave(c)
	}
}

func (s *Session) hasRole(role engine.Role) bool {
	for _, c := range s.clients {
		if c.role == role {
			return true
		}
	}
	return false
}

func (s *Session) playerAttached(playerID string) bool {
	for _, c := range s.clients {
		if c.playerID == playerID {
			return true
		}
	}
	return false
}

func resultsOf(st engine.State) store.GameResult {
	res := store.GameResult{GameID: st.ID, StartedAt: st.StartedAt}
	if st.EndedAt != nil {
		res.EndedAt = *st.EndedAt
	}
	if st.FinalLeaderboard != nil {
		for _, e := range st.FinalLeaderboard.Individual {
			res.Entries = append(res.Entries, store.ResultEntry{
				PlayerID: e.PlayerID,
				Name:     e.Name,
				Animal:   e.Animal,
				Score:    e.Score,
				Rank:     e.Rank,
			})
		}
	}
	return res
}
