package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
	"github.com/DoyleJ11/quiz-live-backend/internal/hub"
	"github.com/DoyleJ11/quiz-live-backend/internal/session"
	"github.com/DoyleJ11/quiz-live-backend/internal/store"
	"github.com/DoyleJ11/quiz-live-backend/internal/ticket"
)

const teacherKey = "teacher-key"

type fixture struct {
	router  http.Handler
	hub     *hub.Hub
	store   *store.Memory
	tickets *ticket.Issuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{
		hub:     hub.NewHub(ctx, hub.Options{Logger: log, Session: session.Options{TickInterval: time.Hour}}),
		store:   store.NewMemory(),
		tickets: ticket.NewIssuer("secret", time.Minute, ticket.NewMemoryStore()),
	}
	api := New(Deps{
		Hub:        f.hub,
		Store:      f.store,
		Tickets:    f.tickets,
		TeacherKey: teacherKey,
		PublicURL:  "https://quiz.example.com",
		Log:        log,
	})
	f.router = SetupRoutes(api, http.NotFoundHandler())
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, teacher bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if teacher {
		req.Header.Set("Authorization", "Bearer "+teacherKey)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func validGame() map[string]any {
	return map[string]any{
		"title": "Week 3",
		"mode":  "team",
		"settings": map[string]any{
			"timePerQuestionSeconds": 15,
		},
		"questions": []map[string]any{
			{"text": "2+2?", "options": map[string]string{"A": "4", "B": "5"}, "correctAnswer": "A"},
		},
	}
}

func (f *fixture) createGame(t *testing.T) createGameResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/games", validGame(), true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp createGameResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
}

func TestCreateGame(t *testing.T) {
	f := newFixture(t)
	resp := f.createGame(t)

	assert.Len(t, resp.Code, 6)
	assert.Equal(t, "https://quiz.example.com/join?code="+resp.Code, resp.JoinURL)

	g, err := f.store.Game(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ModeTeam, g.Mode)
	assert.Equal(t, 15, g.Settings.TimePerQuestionSec)

	qs, err := f.store.Questions(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "A", qs[0].CorrectAnswer)
}

func TestCreateGame_RequiresTeacherKey(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/games", validGame(), false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateGame_Validation(t *testing.T) {
	f := newFixture(t)

	cases := map[string]func(map[string]any){
		"no questions": func(g map[string]any) { g["questions"] = []map[string]any{} },
		"bad mode":     func(g map[string]any) { g["mode"] = "duo" },
		"answer not an option": func(g map[string]any) {
			g["questions"] = []map[string]any{{"text": "x", "options": map[string]string{"A": "1", "B": "2"}, "correctAnswer": "C"}}
		},
		"single option": func(g map[string]any) {
			g["questions"] = []map[string]any{{"text": "x", "options": map[string]string{"A": "1"}, "correctAnswer": "A"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			body := validGame()
			mutate(body)
			rec := f.do(t, http.MethodPost, "/api/games", body, true)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		})
	}
}

func TestGetGame_LiveRoster(t *testing.T) {
	f := newFixture(t)
	created := f.createGame(t)

	rec := f.do(t, http.MethodGet, "/api/games/"+created.ID, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp gameResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Live)
	assert.Equal(t, "lobby", resp.Phase)

	g, err := f.store.Game(context.Background(), created.ID)
	require.NoError(t, err)
	qs, err := f.store.Questions(context.Background(), created.ID)
	require.NoError(t, err)
	_, err = f.hub.Ensure(context.Background(), engine.NewState(g.ID, g.Code, g.Mode, g.Settings, qs))
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/api/games/"+created.ID, nil, false)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Live)
	assert.Empty(t, resp.Players)

	rec = f.do(t, http.MethodGet, "/api/games/missing", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTeacherTicket(t *testing.T) {
	f := newFixture(t)
	created := f.createGame(t)

	rec := f.do(t, http.MethodPost, "/api/games/"+created.ID+"/tickets", nil, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp ticketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	id, err := f.tickets.Redeem(context.Background(), resp.Ticket)
	require.NoError(t, err)
	assert.Equal(t, engine.RoleTeacher, id.Role)
	assert.Equal(t, created.ID, id.GameID)
}

func TestJoin(t *testing.T) {
	f := newFixture(t)
	created := f.createGame(t)

	// not opened by the teacher yet
	rec := f.do(t, http.MethodPost, "/api/join", map[string]string{"code": created.Code}, false)
	assert.Equal(t, http.StatusConflict, rec.Code)

	g, err := f.store.Game(context.Background(), created.ID)
	require.NoError(t, err)
	qs, err := f.store.Questions(context.Background(), created.ID)
	require.NoError(t, err)
	_, err = f.hub.Ensure(context.Background(), engine.NewState(g.ID, g.Code, g.Mode, g.Settings, qs))
	require.NoError(t, err)

	rec = f.do(t, http.MethodPost, "/api/join", map[string]string{"code": " " + created.Code + " "}, false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp ticketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err = uuid.Parse(resp.PlayerID)
	require.NoError(t, err)

	id, err := f.tickets.Redeem(context.Background(), resp.Ticket)
	require.NoError(t, err)
	assert.Equal(t, resp.PlayerID, id.PlayerID)
	assert.Equal(t, engine.RoleStudent, id.Role)

	// returning player keeps its id when it shows its rejoin token
	require.NotEmpty(t, resp.RejoinToken)
	rec = f.do(t, http.MethodPost, "/api/join", map[string]string{"code": created.Code, "rejoinToken": resp.RejoinToken}, false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var again ticketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, resp.PlayerID, again.PlayerID)

	rec = f.do(t, http.MethodPost, "/api/join", map[string]string{"code": "ZZZZZZ"}, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/join", map[string]string{"code": "abc"}, false)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestJoin_ReclaimNeedsRejoinToken(t *testing.T) {
	f := newFixture(t)
	created := f.createGame(t)
	g, err := f.store.Game(context.Background(), created.ID)
	require.NoError(t, err)
	qs, err := f.store.Questions(context.Background(), created.ID)
	require.NoError(t, err)
	_, err = f.hub.Ensure(context.Background(), engine.NewState(g.ID, g.Code, g.Mode, g.Settings, qs))
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/join", map[string]string{"code": created.Code}, false)
	require.Equal(t, http.StatusCreated, rec.Code)
	var victim ticketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &victim))

	// player ids are broadcast to the room, so a bare id is not proof of ownership
	rec = f.do(t, http.MethodPost, "/api/join", map[string]string{"code": created.Code, "playerId": victim.PlayerID}, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "rejoin_required")

	rec = f.do(t, http.MethodPost, "/api/join", map[string]string{"code": created.Code}, false)
	require.Equal(t, http.StatusCreated, rec.Code)
	var other ticketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &other))

	rec = f.do(t, http.MethodPost, "/api/join", map[string]string{
		"code": created.Code, "playerId": victim.PlayerID, "rejoinToken": other.RejoinToken,
	}, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_rejoin")

	foreign, err := f.tickets.IssueRejoin("another-game", victim.PlayerID)
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/api/join", map[string]string{"code": created.Code, "rejoinToken": foreign}, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// a session ticket cannot stand in for the rejoin token
	rec = f.do(t, http.MethodPost, "/api/join", map[string]string{"code": created.Code, "rejoinToken": victim.Ticket}, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJoinQR(t *testing.T) {
	f := newFixture(t)
	created := f.createGame(t)

	rec := f.do(t, http.MethodGet, "/api/games/"+created.ID+"/qr.png", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}
