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

	"github.com/joho/godotenv"
	"github.com/thejerf/suture/v4"

	"github.com/devshad-01/social-task-sub000/config"
	"github.com/devshad-01/social-task-sub000/internal/api"
	"github.com/devshad-01/social-task-sub000/internal/db"
	"github.com/devshad-01/social-task-sub000/internal/logging"
	"github.com/devshad-01/social-task-sub000/internal/mw"
	"github.com/devshad-01/social-task-sub000/internal/notification"
	"github.com/devshad-01/social-task-sub000/internal/presence"
	"github.com/devshad-01/social-task-sub000/internal/push"
	"github.com/devshad-01/social-task-sub000/internal/store"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logging.Info().Str("path", configPath).Msg("configuration loaded")

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logging.Fatal().Msg("VAPID keys must be configured, generate them and set VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY")
	}
	if cfg.Auth.JWTSecret == "" {
		logging.Fatal().Msg("JWT_SECRET must be configured")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize database")
	}
	appStore := store.NewGormStore(gormDB)

	transport := push.NewTransport(nil, push.Options{
		VAPIDPublicKey:    cfg.Push.PublicKey,
		VAPIDPrivateKey:   cfg.Push.PrivateKey,
		Subject:           cfg.Push.Subject,
		Timeout:           cfg.Push.SendTimeout,
		BreakerFailures:   cfg.Push.BreakerFailures,
		BreakerOpenPeriod: cfg.Push.BreakerOpenPeriod,
	})
	tracker := presence.NewTracker(appStore, cfg.Presence.Freshness, cfg.Presence.CacheTTL)
	engine := notification.NewEngine(appStore, transport, tracker, notification.OptionsFromConfig(cfg.Queue))
	tracker.OnOnline(engine.Kick)
	scheduler := notification.NewScheduler(engine, cfg.Queue.DrainInterval, cfg.Queue.CleanupInterval)

	handler := api.NewHandler(appStore, engine, tracker, transport.PublicKey())
	router := api.NewRouter(handler, mw.NewTokenValidator(cfg.Auth.JWTSecret), cfg.Server)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log := logging.With("supervisor")
	sup := suture.New("notifyd", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn().Str("event", e.String()).Msg("supervisor event")
		},
		Timeout: 10 * time.Second,
	})
	sup.Add(newHTTPService(server, 5*time.Second))
	sup.Add(scheduler)

	logging.Info().Int("port", cfg.Server.Port).Msg("notifyd starting")
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("supervisor stopped")
	}

	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}
	logging.Info().Msg("server gracefully stopped")
}
