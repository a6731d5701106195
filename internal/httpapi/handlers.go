package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
	"github.com/DoyleJ11/quiz-live-backend/internal/hub"
	"github.com/DoyleJ11/quiz-live-backend/internal/session"
	"github.com/DoyleJ11/quiz-live-backend/internal/store"
	"github.com/DoyleJ11/quiz-live-backend/internal/ticket"
	"github.com/DoyleJ11/quiz-live-backend/pkg/types"
)

const codeAttempts = 5

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type Deps struct {
	Hub        *hub.Hub
	Store      store.Store
	Tickets    *ticket.Issuer
	TeacherKey string
	PublicURL  string
	Log        *zap.Logger
	Now        func() time.Time
}

type API struct {
	Deps
	validate *validator.Validate
}

func New(d Deps) *API {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &API{Deps: d, validate: newValidator()}
}

type questionRequest struct {
	Text          string            `json:"text" validate:"notblank"`
	Options       map[string]string `json:"options" validate:"min=2,dive,keys,notblank,endkeys,notblank"`
	CorrectAnswer string            `json:"correctAnswer" validate:"notblank"`
}

type settingsRequest struct {
	QuestionCount          int  `json:"questionCount" validate:"gte=0"`
	TimePerQuestionSeconds int  `json:"timePerQuestionSeconds" validate:"gte=0,lte=600"`
	MaxPlayers             int  `json:"maxPlayers" validate:"gte=0"`
	PointsPerCorrect       int  `json:"pointsPerCorrect" validate:"gte=0"`
	SpeedBonus             int  `json:"speedBonus" validate:"gte=0"`
	AutoReveal             bool `json:"autoReveal"`
}

type createGameRequest struct {
	Title     string            `json:"title" validate:"max=120"`
	Mode      string            `json:"mode" validate:"omitempty,oneof=individual team"`
	Settings  settingsRequest   `json:"settings"`
	Questions []questionRequest `json:"questions" validate:"min=1,dive"`
}

type createGameResponse struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	JoinURL string `json:"joinUrl"`
}

func (a *API) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "request body is not valid JSON")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", validationMessage(err))
		return
	}

	questions := make([]engine.Question, 0, len(req.Questions))
	for i, q := range req.Questions {
		answer := strings.TrimSpace(q.CorrectAnswer)
		if _, ok := q.Options[answer]; !ok {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed",
				fmt.Sprintf("questions[%d]: correctAnswer %q is not one of the options", i, answer))
			return
		}
		questions = append(questions, engine.Question{Text: q.Text, Options: q.Options, CorrectAnswer: answer})
	}

	mode := engine.Mode(req.Mode)
	if mode == "" {
		mode = engine.ModeIndividual
	}
	g := store.Game{
		ID:    uuid.NewString(),
		Title: req.Title,
		Mode:  mode,
		Settings: engine.Settings{
			QuestionCount:      req.Settings.QuestionCount,
			TimePerQuestionSec: req.Settings.TimePerQuestionSeconds,
			MaxPlayers:         req.Settings.MaxPlayers,
			PointsPerCorrect:   req.Settings.PointsPerCorrect,
			SpeedBonus:         req.Settings.SpeedBonus,
			AutoReveal:         req.Settings.AutoReveal,
		},
		CreatedAt: a.Now().UTC(),
	}

	for attempt := 0; ; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "failed to generate code")
			return
		}
		g.Code = code

		err = a.Store.CreateGame(r.Context(), g, questions)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrCodeTaken) && attempt+1 < codeAttempts {
			a.Log.Debug("collision on code, regenerating", zap.String("code", code))
			continue
		}
		a.Log.Error("create game", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to create game")
		return
	}

	a.Log.Info("game created", zap.String("game_id", g.ID), zap.String("code", g.Code), zap.Int("questions", len(questions)))
	writeJSON(w, http.StatusCreated, createGameResponse{ID: g.ID, Code: g.Code, JoinURL: a.joinURL(g.Code)})
}

type gameResponse struct {
	ID       string             `json:"id"`
	Code     string             `json:"code"`
	Title    string             `json:"title,omitempty"`
	Mode     string             `json:"mode"`
	Settings types.SettingsView `json:"settings"`
	Live     bool               `json:"live"`
	Phase    string             `json:"phase"`
	Players  []types.PlayerView `json:"players"`
}

func (a *API) GetGame(w http.ResponseWriter, r *http.Request) {
	g, ok := a.findGame(w, r)
	if !ok {
		return
	}

	resp := gameResponse{
		ID:       g.ID,
		Code:     g.Code,
		Title:    g.Title,
		Mode:     string(g.Mode),
		Settings: session.SettingsView(g.Settings),
		Phase:    string(engine.PhaseLobby),
		Players:  []types.PlayerView{},
	}

	if sess, err := a.Hub.Get(r.Context(), g.ID); err == nil && sess != nil {
		if v, err := sess.Snapshot(r.Context()); err == nil {
			resp.Live = true
			resp.Phase = string(v.State.Phase)
			resp.Players = session.Roster(v.State)
			resp.Settings = session.SettingsView(v.State.Settings)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type ticketResponse struct {
	Ticket      string `json:"ticket"`
	GameID      string `json:"gameId"`
	PlayerID    string `json:"playerId,omitempty"`
	RejoinToken string `json:"rejoinToken,omitempty"`
}

func (a *API) TeacherTicket(w http.ResponseWriter, r *http.Request) {
	g, ok := a.findGame(w, r)
	if !ok {
		return
	}
	raw, err := a.Tickets.Issue(ticket.Identity{GameID: g.ID, Role: engine.RoleTeacher})
	if err != nil {
		a.Log.Error("issue teacher ticket", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to issue ticket")
		return
	}
	writeJSON(w, http.StatusCreated, ticketResponse{Ticket: raw, GameID: g.ID})
}

type joinRequest struct {
	Code        string `json:"code" validate:"notblank,len=6"`
	PlayerID    string `json:"playerId" validate:"omitempty,uuid"`
	RejoinToken string `json:"rejoinToken"`
}

// Join trades a join code for a student ticket. Returning players send back the
// rejoin token from their first join to reclaim their roster entry.
func (a *API) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "request body is not valid JSON")
		return
	}
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", validationMessage(err))
		return
	}

	g, err := a.Store.GameByCode(r.Context(), req.Code)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "game_not_found", "no game with that code")
		return
	}
	if err != nil {
		a.Log.Error("find game by code", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to look up game")
		return
	}

	sess, err := a.Hub.Get(r.Context(), g.ID)
	if err != nil || sess == nil {
		writeError(w, http.StatusConflict, "game_not_open", "the teacher has not opened this game yet")
		return
	}

	playerID, ok := a.claimPlayer(w, req, g.ID)
	if !ok {
		return
	}
	raw, err := a.Tickets.Issue(ticket.Identity{GameID: g.ID, PlayerID: playerID, Role: engine.RoleStudent})
	if err != nil {
		a.Log.Error("issue student ticket", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to issue ticket")
		return
	}
	rejoin, err := a.Tickets.IssueRejoin(g.ID, playerID)
	if err != nil {
		a.Log.Error("issue rejoin token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to issue ticket")
		return
	}
	writeJSON(w, http.StatusCreated, ticketResponse{Ticket: raw, GameID: g.ID, PlayerID: playerID, RejoinToken: rejoin})
}

func (a *API) claimPlayer(w http.ResponseWriter, req joinRequest, gameID string) (string, bool) {
	if req.RejoinToken == "" {
		if req.PlayerID != "" {
			writeError(w, http.StatusForbidden, "rejoin_required", "reclaiming a player needs its rejoin token")
			return "", false
		}
		return uuid.NewString(), true
	}

	id, err := a.Tickets.VerifyRejoin(req.RejoinToken)
	if errors.Is(err, ticket.ErrTicketExpired) {
		writeError(w, http.StatusForbidden, "rejoin_expired", "rejoin token has expired, join as a new player")
		return "", false
	}
	if err != nil || id.GameID != gameID || (req.PlayerID != "" && req.PlayerID != id.PlayerID) {
		writeError(w, http.StatusForbidden, "invalid_rejoin", "rejoin token does not match this game or player")
		return "", false
	}
	return id.PlayerID, true
}

func (a *API) JoinQR(w http.ResponseWriter, r *http.Request) {
	g, ok := a.findGame(w, r)
	if !ok {
		return
	}
	png, err := qrcode.Encode(a.joinURL(g.Code), qrcode.Medium, 256)
	if err != nil {
		a.Log.Error("encode qr", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.Ping(r.Context()); err != nil {
		a.Log.Warn("health check: store unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
		return
	}
	n, _ := a.Hub.Count(r.Context())
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: n})
}

func (a *API) findGame(w http.ResponseWriter, r *http.Request) (store.Game, bool) {
	g, err := a.Store.Game(r.Context(), chi.URLParam(r, "gameId"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "game_not_found", "game does not exist")
		return store.Game{}, false
	}
	if err != nil {
		a.Log.Error("find game", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to look up game")
		return store.Game{}, false
	}
	return g, true
}

func (a *API) joinURL(code string) string {
	return a.PublicURL + "/join?code=" + code
}

// RequireTeacher guards teacher-only endpoints with the shared API key.
func (a *API) RequireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(key), []byte(a.TeacherKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid teacher key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, types.ErrorPayload{Code: code, Message: message})
}
