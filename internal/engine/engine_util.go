package engine

import (
	"errors"
	"maps"
)

const (
	DefaultTimePerQuestionSec = 20
	DefaultMaxNameLength      = 20
	DefaultPointsPerCorrect   = 100
)

func DefaultSettings() Settings {
	return Settings{
		TimePerQuestionSec: DefaultTimePerQuestionSec,
		MaxNameLength:      DefaultMaxNameLength,
		PointsPerCorrect:   DefaultPointsPerCorrect,
	}
}

// NewState builds a lobby for the given questions. QuestionCount is clamped to the
// number of questions available; zero means "all of them".
func NewState(id, code string, mode Mode, settings Settings, questions []Question) State {
	if mode == "" {
		mode = ModeIndividual
	}
	if settings.QuestionCount <= 0 || settings.QuestionCount > len(questions) {
		settings.QuestionCount = len(questions)
	}
	if settings.TimePerQuestionSec <= 0 {
		settings.TimePerQuestionSec = DefaultTimePerQuestionSec
	}
	if settings.MaxNameLength <= 0 {
		settings.MaxNameLength = DefaultMaxNameLength
	}

	return State{
		ID:        id,
		Code:      code,
		Mode:      mode,
		Settings:  settings,
		Phase:     PhaseLobby,
		Questions: questions,
		Players:   map[string]Player{},
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// CurrentQuestion returns the question being played, if any.
func (s State) CurrentQuestion() (Question, bool) {
	if s.Phase == PhaseLobby || s.Phase == PhaseEnded {
		return Question{}, false
	}
	if s.QuestionIndex < 0 || s.QuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.QuestionIndex], true
}

func (s State) clone() State {
	c := s
	c.Players = make(map[string]Player, len(s.Players))
	maps.Copy(c.Players, s.Players)
	return c
}

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrWrongPhase, "wrong_phase"},
	{ErrNoPlayers, "no_players"},
	{ErrNoQuestions, "no_questions"},
	{ErrGameEnded, "game_ended"},
	{ErrNotTeacher, "not_teacher"},
	{ErrStaleTransition, "stale_transition"},
	{ErrUnknownPlayer, "unknown_player"},
	{ErrInvalidName, "invalid_name"},
	{ErrInvalidAnimal, "invalid_animal"},
	{ErrSessionFull, "session_full"},
	{ErrAnswersClosed, "answers_closed"},
	{ErrAlreadyAnswered, "already_answered"},
	{ErrInvalidAnswer, "invalid_answer"},
	{ErrUnsupportedCommand, "unsupported_command"},
}

// ErrorCode maps an engine error to the stable code sent to clients.
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}
