// Package config loads server settings from defaults, an optional .env file and
// LIVEQUIZ_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
)

const EnvPrefix = "LIVEQUIZ"

type Config struct {
	Debug bool

	HTTPAddr  string
	PublicURL string // base URL students open; used for QR codes

	DatabaseURL string // empty = in-memory store

	RedisAddr     string // empty = in-memory ticket store
	RedisPassword string
	RedisDB       int

	TicketSecret  string
	TicketTTL     time.Duration
	TeacherAPIKey string

	TickInterval  time.Duration
	IdleTimeout   time.Duration
	SweepInterval time.Duration

	Game engine.Settings
}

func newViper() *viper.Viper {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("public.url", "http://localhost:5173")
	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ticket.secret", "")
	v.SetDefault("ticket.ttl", 2*time.Minute)
	v.SetDefault("teacher.api_key", "")
	v.SetDefault("timer.tick_interval", time.Second)
	v.SetDefault("session.idle_timeout", 30*time.Minute)
	v.SetDefault("session.sweep_interval", time.Minute)
	v.SetDefault("game.time_per_question", engine.DefaultTimePerQuestionSec)
	v.SetDefault("game.max_players", 0)
	v.SetDefault("game.max_name_length", engine.DefaultMaxNameLength)
	v.SetDefault("game.points_per_correct", engine.DefaultPointsPerCorrect)
	v.SetDefault("game.speed_bonus", 0)
	v.SetDefault("game.auto_reveal", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. dotEnv is loaded first when it exists; a missing file
// is not an error.
func Load(dotEnv string) (Config, error) {
	if dotEnv != "" {
		if _, err := os.Stat(dotEnv); err == nil {
			if err := godotenv.Load(dotEnv); err != nil {
				return Config{}, fmt.Errorf("config: godotenv(%s): %w", dotEnv, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: stat(%s): %w", dotEnv, err)
		}
	}

	v := newViper()
	cfg := Config{
		Debug:         v.GetBool("debug"),
		HTTPAddr:      v.GetString("http.addr"),
		PublicURL:     strings.TrimRight(v.GetString("public.url"), "/"),
		DatabaseURL:   v.GetString("database.url"),
		RedisAddr:     v.GetString("redis.addr"),
		RedisPassword: v.GetString("redis.password"),
		RedisDB:       v.GetInt("redis.db"),
		TicketSecret:  v.GetString("ticket.secret"),
		TicketTTL:     v.GetDuration("ticket.ttl"),
		TeacherAPIKey: v.GetString("teacher.api_key"),
		TickInterval:  v.GetDuration("timer.tick_interval"),
		IdleTimeout:   v.GetDuration("session.idle_timeout"),
		SweepInterval: v.GetDuration("session.sweep_interval"),
		Game: engine.Settings{
			TimePerQuestionSec: v.GetInt("game.time_per_question"),
			MaxPlayers:         v.GetInt("game.max_players"),
			MaxNameLength:      v.GetInt("game.max_name_length"),
			PointsPerCorrect:   v.GetInt("game.points_per_correct"),
			SpeedBonus:         v.GetInt("game.speed_bonus"),
			AutoReveal:         v.GetBool("game.auto_reveal"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TicketSecret == "" {
		return errors.New("config: LIVEQUIZ_TICKET_SECRET is required")
	}
	if c.TeacherAPIKey == "" {
		return errors.New("config: LIVEQUIZ_TEACHER_API_KEY is required")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("config: timer tick interval must be positive, got %v", c.TickInterval)
	}
	if c.Game.TimePerQuestionSec <= 0 {
		return fmt.Errorf("config: time per question must be positive, got %d", c.Game.TimePerQuestionSec)
	}
	return nil
}
