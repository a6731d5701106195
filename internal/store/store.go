// Package store persists game definitions, their questions and final results.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
)

var ErrNotFound = errors.New("not found")
var ErrCodeTaken = errors.New("join code already in use")

type Game struct {
	ID        string
	Code      string
	Title     string
	Mode      engine.Mode
	Settings  engine.Settings
	CreatedAt time.Time
}

type ResultEntry struct {
	PlayerID string
	Name     string
	Animal   string
	Score    int
	Rank     int
}

type GameResult struct {
	GameID    string
	StartedAt *time.Time
	EndedAt   time.Time
	Entries   []ResultEntry
}

// Catalog is the read/write side used to bootstrap sessions.
type Catalog interface {
	CreateGame(ctx context.Context, g Game, questions []engine.Question) error
	Game(ctx context.Context, id string) (Game, error)
	GameByCode(ctx context.Context, code string) (Game, error)
	Questions(ctx context.Context, gameID string) ([]engine.Question, error)
}

// Archive receives final results once a game ends.
type Archive interface {
	SaveResults(ctx context.Context, res GameResult) error
}

type Store interface {
	Catalog
	Archive
	Ping(ctx context.Context) error
	Close() error
}
