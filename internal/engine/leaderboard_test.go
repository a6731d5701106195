package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderboard_DenseRanks(t *testing.T) {
	s := State{
		Mode: ModeIndividual,
		Players: map[string]Player{
			"a": {ID: "a", Score: 200, JoinSeq: 3},
			"b": {ID: "b", Score: 300, JoinSeq: 2},
			"c": {ID: "c", Score: 200, JoinSeq: 1},
			"d": {ID: "d", Score: 0, JoinSeq: 4},
		},
	}

	lb := BuildLeaderboard(s)
	got := make([]string, 0, len(lb.Individual))
	ranks := make([]int, 0, len(lb.Individual))
	for _, e := range lb.Individual {
		got = append(got, e.PlayerID)
		ranks = append(ranks, e.Rank)
	}
	assert.Equal(t, []string{"b", "c", "a", "d"}, got)
	assert.Equal(t, []int{1, 2, 2, 3}, ranks)
	assert.Nil(t, lb.Teams)
}

func TestLeaderboard_TeamModeOwlPanda(t *testing.T) {
	settings := DefaultSettings()
	s := NewState("g", "C", ModeTeam, settings, testQuestions(1))
	_, s = mustApply(t, s,
		joinCmd("p1", "Ada", "Owl"), joinCmd("p2", "Bob", "Owl"), joinCmd("p3", "Cy", "Panda"),
		teacher(CmdStartGame),
		answerCmd("p1", "A"), answerCmd("p2", "A"), answerCmd("p3", "A"),
	)
	events, _ := mustApply(t, s, teacher(CmdShowAnswer))

	lb := events[0].Leaderboard
	require.NotNil(t, lb)
	require.Len(t, lb.Teams, 2)

	owl, panda := lb.Teams[0], lb.Teams[1]
	assert.Equal(t, "Owl", owl.Team)
	assert.Equal(t, 2*DefaultPointsPerCorrect, owl.Score)
	assert.Equal(t, []string{"p1", "p2"}, owl.Members)
	assert.Equal(t, 1, owl.Rank)

	assert.Equal(t, "Panda", panda.Team)
	assert.Equal(t, DefaultPointsPerCorrect, panda.Score)
	assert.Equal(t, 2, panda.Rank)
}

func TestLeaderboard_TeamTieKeepsEarliestTeamFirst(t *testing.T) {
	s := State{
		Mode: ModeTeam,
		Players: map[string]Player{
			"a": {ID: "a", Animal: "Fox", Score: 100, JoinSeq: 2},
			"b": {ID: "b", Animal: "Owl", Score: 100, JoinSeq: 1},
		},
	}
	lb := BuildLeaderboard(s)
	require.Len(t, lb.Teams, 2)
	assert.Equal(t, "Owl", lb.Teams[0].Team)
	assert.Equal(t, 1, lb.Teams[0].Rank)
	assert.Equal(t, 1, lb.Teams[1].Rank)
}

func TestScorer_Award(t *testing.T) {
	cases := []struct {
		name      string
		sc        Scorer
		remaining int
		want      int
	}{
		{"flat", Scorer{Points: 100, Window: 20}, 7, 100},
		{"full bonus", Scorer{Points: 100, SpeedBonus: 50, Window: 20}, 20, 150},
		{"half bonus", Scorer{Points: 100, SpeedBonus: 50, Window: 20}, 10, 125},
		{"no time left", Scorer{Points: 100, SpeedBonus: 50, Window: 20}, 0, 100},
		{"clamped", Scorer{Points: 100, SpeedBonus: 50, Window: 20}, 99, 150},
		{"negative points", Scorer{Points: -5}, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.sc.Award(tc.remaining))
		})
	}
}
