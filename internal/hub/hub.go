package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
	"github.com/DoyleJ11/quiz-live-backend/internal/session"
)

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	State engine.State
	Reply chan *session.Session
}

type GetSession struct {
	GameID string
	Reply  chan *session.Session
}

type EnsureSession struct {
	State engine.State // only used if creation happens
	Reply chan *session.Session
}

// RemoveSession drops the entry only while it still points at Session, so a late
// removal never evicts a newer session for the same game.
type RemoveSession struct {
	GameID  string
	Session *session.Session
}

type CountSessions struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (EnsureSession) isHubMsg() {}
func (RemoveSession) isHubMsg() {}
func (CountSessions) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

type Options struct {
	Logger  *zap.Logger
	Session session.Options
	// Sessions without a teacher for IdleTimeout are stopped. Zero disables eviction.
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	opts     Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc

	// running counts live session goroutines and their archive writes.
	running sync.WaitGroup
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		opts:     opts,
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	sweep := time.NewTicker(h.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-sweep.C:
			h.sweep()

		case m := <-h.inbox:
			if h.ctx.Err() != nil {
				h.shutdown()
				return
			}
			switch msg := m.(type) {
			case CreateSession:
				msg.Reply <- h.ensure(msg.State)

			case GetSession:
				s := h.sessions[msg.GameID]
				if s != nil && isDone(s) {
					delete(h.sessions, msg.GameID)
					s = nil
				}
				msg.Reply <- s // May be nil

			case EnsureSession:
				msg.Reply <- h.ensure(msg.State)

			case RemoveSession:
				if cur, ok := h.sessions[msg.GameID]; ok && cur == msg.Session {
					delete(h.sessions, msg.GameID)
					h.log.Debug("session removed", zap.String("game_id", msg.GameID))
				}

			case CountSessions:
				msg.Reply <- len(h.sessions)

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) ensure(state engine.State) *session.Session {
	if s := h.sessions[state.ID]; s != nil && !isDone(s) {
		return s
	}

	opts := h.opts.Session
	opts.Logger = h.log.Named("session")
	opts.Pending = &h.running
	userOnEnded := opts.OnEnded
	opts.OnEnded = func(s *session.Session) {
		if userOnEnded != nil {
			userOnEnded(s)
		}
		h.remove(s)
	}

	s := session.New(h.ctx, state, opts)
	h.running.Add(1)
	go func() {
		<-s.Stopped()
		h.running.Done()
	}()
	h.sessions[state.ID] = s
	h.log.Info("session created", zap.String("game_id", state.ID), zap.String("code", state.Code))
	return s
}

// remove is called from session goroutines; the hub never waits on a session so the
// send cannot deadlock.
func (h *Hub) remove(s *session.Session) {
	select {
	case h.inbox <- RemoveSession{GameID: s.ID(), Session: s}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) sweep() {
	now := h.opts.Now()
	for id, s := range h.sessions {
		if isDone(s) {
			delete(h.sessions, id)
			continue
		}
		if h.opts.IdleTimeout <= 0 {
			continue
		}
		if since, idle := s.IdleSince(); idle && now.Sub(since) >= h.opts.IdleTimeout {
			s.Stop()
			delete(h.sessions, id)
			h.log.Info("idle session evicted", zap.String("game_id", id), zap.Duration("idle", now.Sub(since)))
		}
	}
}

func (h *Hub) shutdown() {
	for id, s := range h.sessions {
		s.Stop()
		delete(h.sessions, id)
	}
}

func isDone(s *session.Session) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

func (h *Hub) request(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) await(ctx context.Context, reply chan *session.Session) (*session.Session, error) {
	select {
	case s := <-reply:
		return s, nil
	case <-h.ctx.Done():
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the running session for a game, or nil.
func (h *Hub) Get(ctx context.Context, gameID string) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	if err := h.request(ctx, GetSession{GameID: gameID, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

// Ensure returns the running session for state.ID, starting one from state if needed.
func (h *Hub) Ensure(ctx context.Context, state engine.State) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	if err := h.request(ctx, EnsureSession{State: state, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

func (h *Hub) Count(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := h.request(ctx, CountSessions{Reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-h.ctx.Done():
		return 0, context.Canceled
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Shutdown stops every session and returns once their goroutines and any pending
// result archiving have finished.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
	<-h.ctx.Done()
	h.running.Wait()
}
