package types

import "encoding/json"

// Client -> Server event names.
const (
	ClientAuthenticate      = "authenticate"
	ClientTeacherCreateGame = "teacher-create-game"
	ClientStartGame         = "start-game"
	ClientShowAnswer        = "show-answer"
	ClientSkipTimer         = "skip-timer"
	ClientNextQuestion      = "next-question"
	ClientEndGame           = "end-game"
	ClientKickPlayer        = "kick-player"
	ClientPlayerJoin        = "player-join"
	ClientPlayerUpdate      = "player-update"
	ClientPlayerReady       = "player-ready"
	ClientPlayerAnswer      = "player-answer"
)

// Server -> Client event names. Everything is broadcast to the whole session except
// authenticated, game-created, players-sync and error, which go to one client.
const (
	ServerAuthenticated      = "authenticated"
	ServerGameCreated        = "game-created"
	ServerPlayersSync        = "players-sync"
	ServerPlayerJoined       = "player-joined"
	ServerPlayerReconnected  = "player-reconnected"
	ServerPlayerUpdated      = "player-updated"
	ServerPlayerDisconnected = "player-disconnected"
	ServerPlayerRemoved      = "player-removed"
	ServerPlayerReady        = "player-ready"
	ServerPlayerAnswered     = "player-answered"
	ServerGameStarted        = "game-started"
	ServerNextQuestion       = "next-question"
	ServerTimerUpdate        = "timer-update"
	ServerShowAnswer         = "show-answer"
	ServerGameEnded          = "game-ended"
	ServerError              = "error"
)

type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type AuthenticatePayload struct {
	Ticket string `json:"ticket"`
}

type CreateGamePayload struct {
	GameID string `json:"gameId"`
}

type KickPlayerPayload struct {
	PlayerID string `json:"playerId"`
}

type PlayerJoinPayload struct {
	Name   string `json:"name"`
	Animal string `json:"animal"`
}

type PlayerUpdatePayload struct {
	Animal string `json:"animal"`
}

type PlayerAnswerPayload struct {
	Answer string `json:"answer"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func NewError(code, message, details string) ServerMessage {
	return ServerMessage{Type: ServerError, Data: ErrorPayload{Code: code, Message: message, Details: details}}
}
