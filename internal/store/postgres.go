package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
)

type gameRecord struct {
	ID                 string `gorm:"primaryKey"`
	Code               string `gorm:"uniqueIndex;not null"`
	Title              string
	Mode               string `gorm:"not null;default:'individual'"`
	QuestionCount      int
	TimePerQuestionSec int
	MaxPlayers         int
	PointsPerCorrect   int
	SpeedBonus         int
	AutoReveal         bool
	CreatedAt          time.Time
}

func (gameRecord) TableName() string { return "games" }

type questionRecord struct {
	ID            uint              `gorm:"primaryKey"`
	GameID        string            `gorm:"index:idx_question_order,priority:1;not null"`
	Position      int               `gorm:"index:idx_question_order,priority:2;not null"`
	Text          string            `gorm:"not null"`
	Options       map[string]string `gorm:"serializer:json;not null"`
	CorrectAnswer string            `gorm:"not null"`
}

func (questionRecord) TableName() string { return "questions" }

type resultRecord struct {
	ID        uint   `gorm:"primaryKey"`
	GameID    string `gorm:"index;not null"`
	PlayerID  string `gorm:"not null"`
	Name      string
	Animal    string
	Score     int
	Rank      int
	StartedAt *time.Time
	EndedAt   time.Time
}

func (resultRecord) TableName() string { return "game_results" }

// Postgres is the gorm-backed store running on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	sql  *sql.DB
	db   *gorm.DB
	log  *zap.Logger
}

var _ Store = (*Postgres)(nil)

func OpenPostgres(ctx context.Context, dsn string, log *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("store: gorm open: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&gameRecord{}, &questionRecord{}, &resultRecord{}); err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	log.Info("database migrated")

	return &Postgres{pool: pool, sql: sqlDB, db: db, log: log}, nil
}

func (p *Postgres) CreateGame(ctx context.Context, g Game, questions []engine.Question) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := toGameRecord(g)
		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrCodeTaken
			}
			return fmt.Errorf("store: create game: %w", err)
		}

		if len(questions) == 0 {
			return nil
		}
		rows := make([]questionRecord, 0, len(questions))
		for i, q := range questions {
			rows = append(rows, questionRecord{
				GameID:        g.ID,
				Position:      i,
				Text:          q.Text,
				Options:       q.Options,
				CorrectAnswer: q.CorrectAnswer,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("store: create questions: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Game(ctx context.Context, id string) (Game, error) {
	return p.findGame(ctx, "id = ?", id)
}

func (p *Postgres) GameByCode(ctx context.Context, code string) (Game, error) {
	return p.findGame(ctx, "code = ?", code)
}

func (p *Postgres) findGame(ctx context.Context, query string, arg string) (Game, error) {
	var rec gameRecord
	if err := p.db.WithContext(ctx).Where(query, arg).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Game{}, ErrNotFound
		}
		return Game{}, fmt.Errorf("store: find game: %w", err)
	}
	return rec.toGame(), nil
}

func (p *Postgres) Questions(ctx context.Context, gameID string) ([]engine.Question, error) {
	var rows []questionRecord
	err := p.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("position").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: list questions: %w", err)
	}

	qs := make([]engine.Question, 0, len(rows))
	for _, r := range rows {
		qs = append(qs, engine.Question{Text: r.Text, Options: r.Options, CorrectAnswer: r.CorrectAnswer})
	}
	return qs, nil
}

func (p *Postgres) SaveResults(ctx context.Context, res GameResult) error {
	if len(res.Entries) == 0 {
		return nil
	}
	rows := make([]resultRecord, 0, len(res.Entries))
	for _, e := range res.Entries {
		rows = append(rows, resultRecord{
			GameID:    res.GameID,
			PlayerID:  e.PlayerID,
			Name:      e.Name,
			Animal:    e.Animal,
			Score:     e.Score,
			Rank:      e.Rank,
			StartedAt: res.StartedAt,
			EndedAt:   res.EndedAt,
		})
	}
	if err := p.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("store: save results: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	err := p.sql.Close()
	p.pool.Close()
	return err
}

func toGameRecord(g Game) gameRecord {
	return gameRecord{
		ID:                 g.ID,
		Code:               g.Code,
		Title:              g.Title,
		Mode:               string(g.Mode),
		QuestionCount:      g.Settings.QuestionCount,
		TimePerQuestionSec: g.Settings.TimePerQuestionSec,
		MaxPlayers:         g.Settings.MaxPlayers,
		PointsPerCorrect:   g.Settings.PointsPerCorrect,
		SpeedBonus:         g.Settings.SpeedBonus,
		AutoReveal:         g.Settings.AutoReveal,
		CreatedAt:          g.CreatedAt,
	}
}

func (r gameRecord) toGame() Game {
	return Game{
		ID:    r.ID,
		Code:  r.Code,
		Title: r.Title,
		Mode:  engine.Mode(r.Mode),
		Settings: engine.Settings{
			QuestionCount:      r.QuestionCount,
			TimePerQuestionSec: r.TimePerQuestionSec,
			MaxPlayers:         r.MaxPlayers,
			PointsPerCorrect:   r.PointsPerCorrect,
			SpeedBonus:         r.SpeedBonus,
			AutoReveal:         r.AutoReveal,
		},
		CreatedAt: r.CreatedAt,
	}
}
