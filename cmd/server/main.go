package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/quiz-live-backend/internal/config"
	"github.com/DoyleJ11/quiz-live-backend/internal/httpapi"
	"github.com/DoyleJ11/quiz-live-backend/internal/hub"
	"github.com/DoyleJ11/quiz-live-backend/internal/session"
	"github.com/DoyleJ11/quiz-live-backend/internal/store"
	"github.com/DoyleJ11/quiz-live-backend/internal/ticket"
	"github.com/DoyleJ11/quiz-live-backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	log, err := config.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	used, closeUsed, err := openUsedStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeUsed()) }()

	h := hub.NewHub(ctx, hub.Options{
		Logger: log.Named("hub"),
		Session: session.Options{
			TickInterval: cfg.TickInterval,
			Archive:      st,
		},
		IdleTimeout:   cfg.IdleTimeout,
		SweepInterval: cfg.SweepInterval,
	})

	tickets := ticket.NewIssuer(cfg.TicketSecret, cfg.TicketTTL, used)
	wsHandler := ws.NewHandler(h, st, tickets, cfg.Game, log.Named("ws"))
	api := httpapi.New(httpapi.Deps{
		Hub:        h,
		Store:      st,
		Tickets:    tickets,
		TeacherKey: cfg.TeacherAPIKey,
		PublicURL:  cfg.PublicURL,
		Log:        log.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(api, wsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		h.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("no database configured, games are kept in memory")
		return store.NewMemory(), nil
	}
	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL, log.Named("store"))
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func openUsedStore(ctx context.Context, cfg config.Config, log *zap.Logger) (ticket.UsedStore, func() error, error) {
	if cfg.RedisAddr == "" {
		log.Warn("no redis configured, used tickets are tracked in memory")
		return ticket.NewMemoryStore(), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, multierr.Append(fmt.Errorf("redis: ping: %w", err), client.Close())
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return ticket.NewRedisStore(client), client.Close, nil
}
