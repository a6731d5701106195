package engine

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/DoyleJ11/quiz-live-backend/internal/validation"
)

const maxAnimalLength = 32

var validate = validation.New()

// NormalizeName trims, collapses inner whitespace and NFC-normalises a display name so
// the same name typed on different keyboards compares equal.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.Join(strings.Fields(name), " "))
}

func validateName(name string, maxLen int) error {
	if err := validate.Var(name, fmt.Sprintf("notblank,max=%d", maxLen)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	return nil
}

func validateAnimal(animal string) error {
	if err := validate.Var(animal, fmt.Sprintf("notblank,max=%d", maxAnimalLength)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnimal, err)
	}
	return nil
}

// join adds a player in the lobby. A known player id is a reconnect and is accepted in
// any phase: the roster entry and score are kept.
func join(s *State, cmd Command) ([]Event, error) {
	if cmd.PlayerID == "" {
		return nil, ErrUnknownPlayer
	}

	if p, ok := s.Players[cmd.PlayerID]; ok {
		p.Connected = true
		s.Players[p.ID] = p
		return []Event{{Type: EvtPlayerReconnected, PlayerID: p.ID, Player: p, Count: len(s.Players)}}, nil
	}

	if s.Phase != PhaseLobby {
		return nil, ErrWrongPhase
	}

	name := NormalizeName(cmd.Name)
	if err := validateName(name, s.Settings.MaxNameLength); err != nil {
		return nil, err
	}
	animal := strings.TrimSpace(cmd.Animal)
	if err := validateAnimal(animal); err != nil {
		return nil, err
	}
	if limit := s.Settings.MaxPlayers; limit > 0 && len(s.Players) >= limit {
		return nil, ErrSessionFull
	}

	s.NextSeq++
	p := Player{
		ID:        cmd.PlayerID,
		Name:      name,
		Animal:    animal,
		Connected: true,
		JoinSeq:   s.NextSeq,
	}
	s.Players[p.ID] = p

	return []Event{{Type: EvtPlayerJoined, PlayerID: p.ID, Player: p, Count: len(s.Players)}}, nil
}

func updateAvatar(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	if s.Phase != PhaseLobby {
		return nil, ErrWrongPhase
	}
	animal := strings.TrimSpace(cmd.Animal)
	if err := validateAnimal(animal); err != nil {
		return nil, err
	}

	p.Animal = animal
	s.Players[p.ID] = p
	return []Event{{Type: EvtPlayerUpdated, PlayerID: p.ID, Player: p}}, nil
}

func disconnect(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	if !p.Connected {
		return nil, nil
	}

	p.Connected = false
	s.Players[p.ID] = p
	return autoReveal(s, []Event{{Type: EvtPlayerDisconnected, PlayerID: p.ID, Player: p}})
}

func kick(s *State, cmd Command) ([]Event, error) {
	if _, ok := s.Players[cmd.PlayerID]; !ok {
		return nil, ErrUnknownPlayer
	}

	delete(s.Players, cmd.PlayerID)
	return autoReveal(s, []Event{{Type: EvtPlayerKicked, PlayerID: cmd.PlayerID, Count: len(s.Players)}})
}

func ready(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	if s.Phase != PhaseLobby {
		return nil, ErrWrongPhase
	}

	p.Ready = true
	s.Players[p.ID] = p

	readyCount := 0
	for _, other := range s.Players {
		if other.Ready {
			readyCount++
		}
	}
	return []Event{{Type: EvtPlayerReady, PlayerID: p.ID, Player: p, Count: readyCount}}, nil
}

func answer(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	switch s.Phase {
	case PhaseQuestionActive:
	case PhaseAnswerReveal:
		return nil, ErrAnswersClosed
	default:
		return nil, ErrWrongPhase
	}
	if p.HasAnswered {
		return nil, ErrAlreadyAnswered
	}

	q := s.Questions[s.QuestionIndex]
	choice := strings.TrimSpace(cmd.Answer)
	if _, ok := q.Options[choice]; !ok {
		return nil, ErrInvalidAnswer
	}

	p.HasAnswered = true
	p.Answer = choice
	p.AnsweredWithRemaining = s.TimeRemaining
	s.Players[p.ID] = p

	answered := 0
	for _, other := range s.Players {
		if other.HasAnswered {
			answered++
		}
	}
	return autoReveal(s, []Event{{Type: EvtPlayerAnswered, PlayerID: p.ID, Count: answered}})
}

// autoReveal appends the reveal once every connected player has answered.
func autoReveal(s *State, events []Event) ([]Event, error) {
	if !s.Settings.AutoReveal || s.Phase != PhaseQuestionActive {
		return events, nil
	}
	connected, connectedAnswered := 0, 0
	for _, p := range s.Players {
		if p.Connected {
			connected++
			if p.HasAnswered {
				connectedAnswered++
			}
		}
	}
	if connected == 0 || connectedAnswered < connected {
		return events, nil
	}
	revealed, err := reveal(s)
	if err != nil {
		return nil, err
	}
	return append(events, revealed...), nil
}
