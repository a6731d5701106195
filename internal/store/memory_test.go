package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
)

func TestMemory_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	g := Game{ID: "g1", Code: "ABC123", Mode: engine.ModeTeam, Settings: engine.Settings{QuestionCount: 2}}
	qs := []engine.Question{
		{Text: "2+2", Options: map[string]string{"A": "4", "B": "5"}, CorrectAnswer: "A"},
		{Text: "3+3", Options: map[string]string{"A": "5", "B": "6"}, CorrectAnswer: "B"},
	}
	require.NoError(t, m.CreateGame(ctx, g, qs))

	got, err := m.Game(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, g, got)

	byCode, err := m.GameByCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "g1", byCode.ID)

	gotQs, err := m.Questions(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, qs, gotQs)

	_, err = m.Game(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GameByCode(ctx, "NOPE00")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_CodeCollision(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateGame(ctx, Game{ID: "g1", Code: "AAAAAA"}, nil))
	err := m.CreateGame(ctx, Game{ID: "g2", Code: "AAAAAA"}, nil)
	assert.ErrorIs(t, err, ErrCodeTaken)
}

func TestMemory_SaveResults(t *testing.T) {
	m := NewMemory()
	res := GameResult{
		GameID:  "g1",
		EndedAt: time.Now(),
		Entries: []ResultEntry{{PlayerID: "p1", Name: "Ada", Score: 300, Rank: 1}},
	}
	require.NoError(t, m.SaveResults(context.Background(), res))
	got := m.Results("g1")
	require.Len(t, got, 1)
	assert.Equal(t, "Ada", got[0].Entries[0].Name)
}
