package store

import (
	"context"
	"slices"
	"sync"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
)

// Memory keeps everything in process. Used when no database is configured and in tests.
type Memory struct {
	mu        sync.RWMutex
	games     map[string]Game
	codes     map[string]string // code -> game id
	questions map[string][]engine.Question
	results   map[string][]GameResult
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		games:     make(map[string]Game),
		codes:     make(map[string]string),
		questions: make(map[string][]engine.Question),
		results:   make(map[string][]GameResult),
	}
}

func (m *Memory) CreateGame(_ context.Context, g Game, questions []engine.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.codes[g.Code]; taken {
		return ErrCodeTaken
	}
	m.games[g.ID] = g
	m.codes[g.Code] = g.ID
	m.questions[g.ID] = slices.Clone(questions)
	return nil
}

func (m *Memory) Game(_ context.Context, id string) (Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.games[id]
	if !ok {
		return Game{}, ErrNotFound
	}
	return g, nil
}

func (m *Memory) GameByCode(ctx context.Context, code string) (Game, error) {
	m.mu.RLock()
	id, ok := m.codes[code]
	m.mu.RUnlock()
	if !ok {
		return Game{}, ErrNotFound
	}
	return m.Game(ctx, id)
}

func (m *Memory) Questions(_ context.Context, gameID string) ([]engine.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	qs, ok := m.questions[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(qs), nil
}

func (m *Memory) SaveResults(_ context.Context, res GameResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[res.GameID] = append(m.results[res.GameID], res)
	return nil
}

// Results returns every archived result for a game.
func (m *Memory) Results(gameID string) []GameResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.results[gameID])
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
