package session

import (
	"cmp"
	"slices"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
	"github.com/DoyleJ11/quiz-live-backend/pkg/types"
)

// project turns an engine event into the wire message broadcast to the session.
func project(s engine.State, ev engine.Event) (types.ServerMessage, bool) {
	var data any

	switch ev.Type {
	case engine.EvtPlayerJoined:
		data = types.PlayerJoined{Player: PlayerView(ev.Player), TotalPlayers: ev.Count}
	case engine.EvtPlayerReconnected:
		data = types.PlayerReconnected{PlayerID: ev.PlayerID}
	case engine.EvtPlayerUpdated:
		data = types.PlayerUpdated{PlayerID: ev.PlayerID, Animal: ev.Player.Animal}
	case engine.EvtPlayerDisconnected:
		data = types.PlayerDisconnected{PlayerID: ev.PlayerID}
	case engine.EvtPlayerKicked:
		data = types.PlayerRemoved{PlayerID: ev.PlayerID, TotalPlayers: ev.Count}
	case engine.EvtPlayerReady:
		data = types.PlayerReady{PlayerID: ev.PlayerID, ReadyCount: ev.Count}
	case engine.EvtPlayerAnswered:
		data = types.PlayerAnswered{PlayerID: ev.PlayerID, AnsweredCount: ev.Count}
	case engine.EvtGameStarted:
		data = types.GameStarted{
			FirstQuestion:  questionView(ev.Question),
			QuestionNumber: ev.QuestionNumber,
			TotalQuestions: ev.TotalQuestions,
			TimeRemaining:  ev.TimeRemaining,
		}
	case engine.EvtNextQuestion:
		data = types.NextQuestion{
			Question:       questionView(ev.Question),
			QuestionNumber: ev.QuestionNumber,
			TotalQuestions: ev.TotalQuestions,
			TimeRemaining:  ev.TimeRemaining,
		}
	case engine.EvtTimerUpdate:
		data = types.TimerUpdate{TimeRemaining: ev.TimeRemaining}
	case engine.EvtAnswerRevealed:
		data = types.ShowAnswer{
			CorrectAnswer:  ev.CorrectAnswer,
			QuestionNumber: ev.QuestionNumber,
			Leaderboard:    LeaderboardView(ev.Leaderboard),
		}
	case engine.EvtGameEnded:
		data = types.GameEnded{FinalLeaderboard: LeaderboardView(ev.Leaderboard)}
	default:
		return types.ServerMessage{}, false
	}

	return types.ServerMessage{Type: eventNames[ev.Type], Data: data}, true
}

var eventNames = map[engine.EventType]string{
	engine.EvtPlayerJoined:       types.ServerPlayerJoined,
	engine.EvtPlayerReconnected:  types.ServerPlayerReconnected,
	engine.EvtPlayerUpdated:      types.ServerPlayerUpdated,
	engine.EvtPlayerDisconnected: types.ServerPlayerDisconnected,
	engine.EvtPlayerKicked:       types.ServerPlayerRemoved,
	engine.EvtPlayerReady:        types.ServerPlayerReady,
	engine.EvtPlayerAnswered:     types.ServerPlayerAnswered,
	engine.EvtGameStarted:        types.ServerGameStarted,
	engine.EvtNextQuestion:       types.ServerNextQuestion,
	engine.EvtTimerUpdate:        types.ServerTimerUpdate,
	engine.EvtAnswerRevealed:     types.ServerShowAnswer,
	engine.EvtGameEnded:          types.ServerGameEnded,
}

func gameCreated(s engine.State) types.ServerMessage {
	return types.ServerMessage{Type: types.ServerGameCreated, Data: types.GameCreated{
		GameID:   s.ID,
		Code:     s.Code,
		Mode:     string(s.Mode),
		Settings: SettingsView(s.Settings),
	}}
}

func playersSync(s engine.State) types.ServerMessage {
	return types.ServerMessage{Type: types.ServerPlayersSync, Data: Sync(s)}
}

// Sync is the full roster snapshot used for (re)attaching clients and the REST view.
func Sync(s engine.State) types.PlayersSync {
	snap := types.PlayersSync{
		Players:        Roster(s),
		Phase:          string(s.Phase),
		TotalQuestions: s.Settings.QuestionCount,
		TimeRemaining:  s.TimeRemaining,
	}
	if q, ok := s.CurrentQuestion(); ok {
		qv := questionView(q)
		snap.Question = &qv
		snap.QuestionNumber = s.QuestionIndex + 1
	}
	if s.Leaderboard != nil && s.Phase != engine.PhaseQuestionActive {
		lb := LeaderboardView(s.Leaderboard)
		snap.Leaderboard = &lb
	}
	return snap
}

// Roster lists players in join order.
func Roster(s engine.State) []types.PlayerView {
	players := make([]engine.Player, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	slices.SortFunc(players, func(a, b engine.Player) int { return cmp.Compare(a.JoinSeq, b.JoinSeq) })

	out := make([]types.PlayerView, 0, len(players))
	for _, p := range players {
		out = append(out, PlayerView(p))
	}
	return out
}

func PlayerView(p engine.Player) types.PlayerView {
	return types.PlayerView{
		ID:          p.ID,
		Name:        p.Name,
		Animal:      p.Animal,
		Connected:   p.Connected,
		Score:       p.Score,
		HasAnswered: p.HasAnswered,
		Ready:       p.Ready,
	}
}

func SettingsView(st engine.Settings) types.SettingsView {
	return types.SettingsView{
		QuestionCount:          st.QuestionCount,
		TimePerQuestionSeconds: st.TimePerQuestionSec,
		MaxPlayers:             st.MaxPlayers,
		PointsPerCorrect:       st.PointsPerCorrect,
		SpeedBonus:             st.SpeedBonus,
		AutoReveal:             st.AutoReveal,
	}
}

func LeaderboardView(lb *engine.Leaderboard) types.Leaderboard {
	if lb == nil {
		return types.Leaderboard{Individual: []types.LeaderboardEntry{}}
	}
	out := types.Leaderboard{
		Mode:       string(lb.Mode),
		Individual: make([]types.LeaderboardEntry, 0, len(lb.Individual)),
	}
	for _, e := range lb.Individual {
		out.Individual = append(out.Individual, types.LeaderboardEntry{
			PlayerID:  e.PlayerID,
			Name:      e.Name,
			Animal:    e.Animal,
			Score:     e.Score,
			Rank:      e.Rank,
			Connected: e.Connected,
		})
	}
	for _, t := range lb.Teams {
		out.Teams = append(out.Teams, types.TeamEntry{
			Team:    t.Team,
			Score:   t.Score,
			Members: t.Members,
			Rank:    t.Rank,
		})
	}
	return out
}

func questionView(q engine.Question) types.QuestionView {
	return types.QuestionView{Text: q.Text, Options: q.Options}
}
