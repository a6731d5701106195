package engine

import (
	"errors"
	"fmt"
	"time"
)

var ErrWrongPhase = errors.New("command not allowed in current phase")
var ErrNoPlayers = errors.New("cannot start a game without players")
var ErrNoQuestions = errors.New("game has no questions")
var ErrGameEnded = errors.New("game already ended")
var ErrNotTeacher = errors.New("command is reserved for the teacher")
var ErrStaleTransition = errors.New("transition already applied")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrInvalidName = errors.New("invalid player name")
var ErrInvalidAnimal = errors.New("invalid animal")
var ErrSessionFull = errors.New("session is full")
var ErrAnswersClosed = errors.New("answers are closed for this question")
var ErrAlreadyAnswered = errors.New("player already answered this question")
var ErrInvalidAnswer = errors.New("answer is not one of the options")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseLobby          Phase = "lobby"
	PhaseQuestionActive Phase = "question_active"
	PhaseAnswerReveal   Phase = "answer_reveal"
	PhaseEnded          Phase = "ended"
)

type Mode string

const (
	ModeIndividual Mode = "individual"
	ModeTeam       Mode = "team"
)

// Role is who issued a command. RoleSystem is reserved for the session itself
// (timer ticks, transport drops).
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleSystem  Role = "system"
)

type Question struct {
	Text          string
	Options       map[string]string // letter -> text
	CorrectAnswer string
}

type Settings struct {
	QuestionCount      int
	TimePerQuestionSec int
	MaxPlayers         int // 0 = unbounded
	MaxNameLength      int
	PointsPerCorrect   int
	SpeedBonus         int  // extra points at full time remaining, scaled down linearly
	AutoReveal         bool // reveal as soon as every connected player answered
}

type Player struct {
	ID                    string
	Name                  string
	Animal                string
	Connected             bool
	Score                 int
	HasAnswered           bool
	Answer                string
	AnsweredWithRemaining int
	Ready                 bool
	JoinSeq               int
}

type State struct {
	ID               string
	Code             string
	Mode             Mode
	Settings         Settings
	Phase            Phase
	QuestionIndex    int
	Questions        []Question
	Players          map[string]Player
	NextSeq          int
	TimeRemaining    int
	StartedAt        *time.Time
	EndedAt          *time.Time
	Leaderboard      *Leaderboard
	FinalLeaderboard *Leaderboard
}

type CommandType string

const (
	CmdJoin         CommandType = "Join"
	CmdUpdateAvatar CommandType = "UpdateAvatar"
	CmdDisconnect   CommandType = "Disconnect"
	CmdKick         CommandType = "Kick"
	CmdReady        CommandType = "Ready"
	CmdAnswer       CommandType = "Answer"
	CmdStartGame    CommandType = "StartGame"
	CmdShowAnswer   CommandType = "ShowAnswer"
	CmdSkipTimer    CommandType = "SkipTimer"
	CmdNextQuestion CommandType = "NextQuestion"
	CmdEndGame      CommandType = "EndGame"
	CmdTimerTick    CommandType = "TimerTick"
)

/*
	CmdStartGame    -> EvtGameStarted
	CmdAnswer       -> EvtPlayerAnswered (-> EvtAnswerRevealed with AutoReveal)
	CmdShowAnswer   -> EvtAnswerRevealed
	CmdSkipTimer    -> EvtAnswerRevealed (same path as CmdShowAnswer)
	CmdTimerTick    -> EvtTimerUpdate (-> EvtAnswerRevealed at zero)
	CmdNextQuestion -> EvtNextQuestion or EvtGameEnded
	CmdEndGame      -> EvtGameEnded, nothing when already ended
*/

type Command struct {
	Type     CommandType
	Role     Role
	PlayerID string
	Name     string
	Animal   string
	Answer   string
	At       time.Time
}

type EventType string

const (
	EvtPlayerJoined       EventType = "PlayerJoined"
	EvtPlayerReconnected  EventType = "PlayerReconnected"
	EvtPlayerUpdated      EventType = "PlayerUpdated"
	EvtPlayerDisconnected EventType = "PlayerDisconnected"
	EvtPlayerKicked       EventType = "PlayerKicked"
	EvtPlayerReady        EventType = "PlayerReady"
	EvtPlayerAnswered     EventType = "PlayerAnswered"
	EvtGameStarted        EventType = "GameStarted"
	EvtNextQuestion       EventType = "NextQuestion"
	EvtTimerUpdate        EventType = "TimerUpdate"
	EvtAnswerRevealed     EventType = "AnswerRevealed"
	EvtGameEnded          EventType = "GameEnded"
)

type Event struct {
	Type           EventType
	PlayerID       string
	Player         Player
	Count          int
	Question       Question
	QuestionNumber int
	TotalQuestions int
	TimeRemaining  int
	CorrectAnswer  string
	Leaderboard    *Leaderboard
}

// Apply runs one command against s. The input state is never modified; on error the
// original state is returned unchanged.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if teacherOnly(cmd.Type) && cmd.Role != RoleTeacher {
		return nil, s, ErrNotTeacher
	}
	if cmd.Type == CmdTimerTick && cmd.Role != RoleSystem {
		return nil, s, ErrUnsupportedCommand
	}

	if s.Phase == PhaseEnded {
		if cmd.Type == CmdEndGame {
			return nil, s, nil
		}
		return nil, s, ErrGameEnded
	}

	next := s.clone()
	var events []Event
	var err error

	switch cmd.Type {
	case CmdJoin:
		events, err = join(&next, cmd)
	case CmdUpdateAvatar:
		events, err = updateAvatar(&next, cmd)
	case CmdDisconnect:
		events, err = disconnect(&next, cmd)
	case CmdKick:
		events, err = kick(&next, cmd)
	case CmdReady:
		events, err = ready(&next, cmd)
	case CmdAnswer:
		events, err = answer(&next, cmd)
	case CmdStartGame:
		events, err = startGame(&next, cmd)
	case CmdShowAnswer, CmdSkipTimer:
		events, err = reveal(&next)
	case CmdNextQuestion:
		events, err = nextQuestion(&next, cmd)
	case CmdEndGame:
		events, err = finish(&next, cmd.At)
	case CmdTimerTick:
		events, err = timerTick(&next)
	default:
		err = ErrUnsupportedCommand
	}

	if err != nil {
		return nil, s, err
	}
	return events, next, nil
}

func startGame(s *State, cmd Command) ([]Event, error) {
	if s.Phase != PhaseLobby {
		return nil, ErrWrongPhase
	}
	if len(s.Players) == 0 {
		return nil, ErrNoPlayers
	}
	if s.Settings.QuestionCount == 0 {
		return nil, ErrNoQuestions
	}

	at := cmd.At
	s.StartedAt = &at
	s.QuestionIndex = 0
	if err := s.beginQuestion(); err != nil {
		return nil, err
	}

	return []Event{{
		Type:           EvtGameStarted,
		Question:       s.Questions[0],
		QuestionNumber: 1,
		TotalQuestions: s.Settings.QuestionCount,
		TimeRemaining:  s.TimeRemaining,
	}}, nil
}

// reveal is the single question_active -> answer_reveal path, shared by the teacher's
// show-answer, skip-timer, the timer reaching zero and auto reveal.
func reveal(s *State) ([]Event, error) {
	switch s.Phase {
	case PhaseQuestionActive:
	case PhaseAnswerReveal:
		return nil, ErrStaleTransition
	default:
		return nil, ErrWrongPhase
	}

	q := s.Questions[s.QuestionIndex]
	sc := scorerFor(s.Settings)
	for id, p := range s.Players {
		if p.HasAnswered && p.Answer == q.CorrectAnswer {
			p.Score += sc.Award(p.AnsweredWithRemaining)
			s.Players[id] = p
		}
	}

	if err := s.transition(PhaseAnswerReveal); err != nil {
		return nil, err
	}
	s.TimeRemaining = 0

	lb := BuildLeaderboard(*s)
	s.Leaderboard = &lb

	return []Event{{
		Type:           EvtAnswerRevealed,
		QuestionNumber: s.QuestionIndex + 1,
		TotalQuestions: s.Settings.QuestionCount,
		CorrectAnswer:  q.CorrectAnswer,
		Leaderboard:    &lb,
	}}, nil
}

func nextQuestion(s *State, cmd Command) ([]Event, error) {
	if s.Phase != PhaseAnswerReveal {
		return nil, ErrWrongPhase
	}

	if s.QuestionIndex+1 >= s.Settings.QuestionCount {
		return finish(s, cmd.At)
	}

	s.QuestionIndex++
	if err := s.beginQuestion(); err != nil {
		return nil, err
	}

	return []Event{{
		Type:           EvtNextQuestion,
		Question:       s.Questions[s.QuestionIndex],
		QuestionNumber: s.QuestionIndex + 1,
		TotalQuestions: s.Settings.QuestionCount,
		TimeRemaining:  s.TimeRemaining,
	}}, nil
}

// finish moves to ended. Answers of a question still in progress are not scored.
func finish(s *State, at time.Time) ([]Event, error) {
	if err := s.transition(PhaseEnded); err != nil {
		return nil, err
	}
	s.EndedAt = &at
	s.TimeRemaining = 0

	lb := BuildLeaderboard(*s)
	s.Leaderboard = &lb
	s.FinalLeaderboard = &lb

	return []Event{{Type: EvtGameEnded, Leaderboard: &lb}}, nil
}

func timerTick(s *State) ([]Event, error) {
	if s.Phase != PhaseQuestionActive {
		return nil, ErrStaleTransition
	}

	if s.TimeRemaining > 0 {
		s.TimeRemaining--
	}
	events := []Event{{Type: EvtTimerUpdate, TimeRemaining: s.TimeRemaining}}

	if s.TimeRemaining == 0 {
		revealed, err := reveal(s)
		if err != nil {
			return nil, err
		}
		events = append(events, revealed...)
	}
	return events, nil
}

func (s *State) beginQuestion() error {
	if err := s.transition(PhaseQuestionActive); err != nil {
		return err
	}
	s.TimeRemaining = s.Settings.TimePerQuestionSec
	for id, p := range s.Players {
		p.HasAnswered = false
		p.Answer = ""
		p.AnsweredWithRemaining = 0
		s.Players[id] = p
	}
	return nil
}

func (s *State) transition(to Phase) error {
	if !CanTransition(s.Phase, to) {
		return fmt.Errorf("%w: %s -> %s", ErrWrongPhase, s.Phase, to)
	}
	s.Phase = to
	return nil
}

func teacherOnly(t CommandType) bool {
	switch t {
	case CmdKick, CmdStartGame, CmdShowAnswer, CmdSkipTimer, CmdNextQuestion, CmdEndGame:
		return true
	}
	return false
}
