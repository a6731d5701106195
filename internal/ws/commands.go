package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
	"github.com/DoyleJ11/quiz-live-backend/pkg/types"
)

var errUnknownType = errors.New("unknown message type")
var errBadPayload = errors.New("invalid payload")

// toEngineCommand maps in-game client events onto engine commands. Role and player id
// are filled in by the session from the connection's identity.
func toEngineCommand(m types.ClientMessage) (engine.Command, error) {
	switch m.Type {
	case types.ClientStartGame:
		return engine.Command{Type: engine.CmdStartGame}, nil
	case types.ClientShowAnswer:
		return engine.Command{Type: engine.CmdShowAnswer}, nil
	case types.ClientSkipTimer:
		return engine.Command{Type: engine.CmdSkipTimer}, nil
	case types.ClientNextQuestion:
		return engine.Command{Type: engine.CmdNextQuestion}, nil
	case types.ClientEndGame:
		return engine.Command{Type: engine.CmdEndGame}, nil
	case types.ClientPlayerReady:
		return engine.Command{Type: engine.CmdReady}, nil

	case types.ClientKickPlayer:
		var p types.KickPlayerPayload
		if err := unmarshal(m.Data, &p); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Type: engine.CmdKick, PlayerID: p.PlayerID}, nil

	case types.ClientPlayerUpdate:
		var p types.PlayerUpdatePayload
		if err := unmarshal(m.Data, &p); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Type: engine.CmdUpdateAvatar, Animal: p.Animal}, nil

	case types.ClientPlayerAnswer:
		var p types.PlayerAnswerPayload
		if err := unmarshal(m.Data, &p); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Type: engine.CmdAnswer, Answer: p.Answer}, nil

	default:
		return engine.Command{}, fmt.Errorf("%w: %q", errUnknownType, m.Type)
	}
}

func unmarshal(data json.RawMessage, v any) error {
	if err := decode(data, v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, errUnknownType):
		return CodeUnknownType
	case errors.Is(err, errBadPayload):
		return CodeBadJSON
	default:
		return CodeInternal
	}
}
