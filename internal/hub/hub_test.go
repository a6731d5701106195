package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
	"github.com/DoyleJ11/quiz-live-backend/internal/session"
	"github.com/DoyleJ11/quiz-live-backend/internal/store"
	"github.com/DoyleJ11/quiz-live-backend/pkg/types"
)

// slowArchive holds SaveResults until release is closed.
type slowArchive struct {
	release chan struct{}
	mu      sync.Mutex
	saved   []string
}

func (a *slowArchive) SaveResults(ctx context.Context, res store.GameResult) error {
	select {
	case <-a.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, res.GameID)
	return nil
}

func (a *slowArchive) Saved() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.saved...)
}

func testState(id string) engine.State {
	qs := []engine.Question{{Text: "2+2?", Options: map[string]string{"A": "4", "B": "5"}, CorrectAnswer: "A"}}
	return engine.NewState(id, "CODE"+id, engine.ModeIndividual, engine.DefaultSettings(), qs)
}

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, opts)
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newTestHub(t, Options{})
	reply := make(chan *session.Session, 1)

	h.Inbox() <- CreateSession{State: testState("g1"), Reply: reply}
	s1 := <-reply

	h.Inbox() <- GetSession{GameID: "g1", Reply: reply}
	s2 := <-reply

	require.NotNil(t, s1)
	assert.Same(t, s1, s2)
}

func TestHub_EnsureIsIdempotent(t *testing.T) {
	h := newTestHub(t, Options{})
	ctx := context.Background()

	s1, err := h.Ensure(ctx, testState("g1"))
	require.NoError(t, err)
	s2, err := h.Ensure(ctx, testState("g1"))
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	n, err := h.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHub_GetUnknownReturnsNil(t *testing.T) {
	h := newTestHub(t, Options{})
	s, err := h.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestHub_RemoveChecksPointer(t *testing.T) {
	h := newTestHub(t, Options{})
	ctx := context.Background()

	old, err := h.Ensure(ctx, testState("g1"))
	require.NoError(t, err)
	old.Stop()

	// a stopped session is replaced on the next ensure
	fresh, err := h.Ensure(ctx, testState("g1"))
	require.NoError(t, err)
	require.NotSame(t, old, fresh)

	h.Inbox() <- RemoveSession{GameID: "g1", Session: old}
	got, err := h.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Same(t, fresh, got)

	h.Inbox() <- RemoveSession{GameID: "g1", Session: fresh}
	got, err = h.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHub_EndedSessionIsRemoved(t *testing.T) {
	var ended atomic.Bool
	h := newTestHub(t, Options{Session: session.Options{
		OnEnded: func(*session.Session) { ended.Store(true) },
	}})
	ctx := context.Background()

	s, err := h.Ensure(ctx, testState("g1"))
	require.NoError(t, err)

	out := make(chan types.ServerMessage, 16)
	s.Inbox() <- session.Attach{ClientID: "t", Role: engine.RoleTeacher, Outbox: out}
	s.Inbox() <- session.FromClient{ClientID: "t", Cmd: engine.Command{Type: engine.CmdEndGame}}

	require.Eventually(t, func() bool {
		got, err := h.Get(ctx, "g1")
		return err == nil && got == nil
	}, time.Second, 10*time.Millisecond)
	assert.True(t, ended.Load())
}

func TestHub_SweepEvictsIdleSessions(t *testing.T) {
	h := newTestHub(t, Options{
		IdleTimeout:   30 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})
	ctx := context.Background()

	idle, err := h.Ensure(ctx, testState("idle"))
	require.NoError(t, err)

	busy, err := h.Ensure(ctx, testState("busy"))
	require.NoError(t, err)
	out := make(chan types.ServerMessage, 16)
	busy.Inbox() <- session.Attach{ClientID: "t", Role: engine.RoleTeacher, Outbox: out}

	select {
	case <-idle.Done():
	case <-time.After(time.Second):
		t.Fatal("idle session was not evicted")
	}

	got, err := h.Get(ctx, "busy")
	require.NoError(t, err)
	assert.Same(t, busy, got)
}

func TestHub_ShutdownStopsSessions(t *testing.T) {
	h := newTestHub(t, Options{})
	s, err := h.Ensure(context.Background(), testState("g1"))
	require.NoError(t, err)

	h.Shutdown()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session still running after hub shutdown")
	}
	<-h.Done()

	_, err = h.Get(context.Background(), "g1")
	assert.Error(t, err)
}

func TestHub_ShutdownWaitsForArchive(t *testing.T) {
	archive := &slowArchive{release: make(chan struct{})}
	h := newTestHub(t, Options{Session: session.Options{Archive: archive, ArchiveTimeout: 5 * time.Second}})

	s, err := h.Ensure(context.Background(), testState("g1"))
	require.NoError(t, err)
	out := make(chan types.ServerMessage, 16)
	s.Inbox() <- session.Attach{ClientID: "t", Role: engine.RoleTeacher, Outbox: out}
	s.Inbox() <- session.FromClient{ClientID: "t", Cmd: engine.Command{Type: engine.CmdEndGame}}

	require.Eventually(t, func() bool {
		got, err := h.Get(context.Background(), "g1")
		return err == nil && got == nil
	}, time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		h.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shutdown returned while results were still being written")
	case <-time.After(50 * time.Millisecond):
	}

	close(archive.release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not return after archive finished")
	}
	assert.Equal(t, []string{"g1"}, archive.Saved())
}
