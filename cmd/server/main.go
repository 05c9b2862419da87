package main

import (
	"context"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"messager/internal/broadcast"
	"messager/internal/server"
	"messager/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap.NewDevelopment: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	cfg := server.EnvConfig{}
	if err := env.Parse(&cfg); err != nil {
		sugar.Fatalf("Cannot parse env config: %v", err)
	}

	dbCfg := storage.Config{}
	if err := env.Parse(&dbCfg); err != nil {
		sugar.Fatalf("Cannot parse db config: %v", err)
	}

	ctx := context.Background()

	store, err := storage.New(ctx, sugar, dbCfg, cfg.DefaultChannel, storage.ConnectionTimeout(30*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		sugar.Fatalf("Cannot ensure schema: %v", err)
	}
	if err := store.EnsureDefaults(ctx, cfg.AdminUsername); err != nil {
		sugar.Fatalf("Cannot ensure bootstrap entities: %v", err)
	}

	hub := broadcast.NewHub(sugar)
	go hub.Run()

	auth := server.NewTokenAuthenticator(cfg.TokenSecret, store)
	notifier := server.NewLogNotifier(sugar)

	images, err := server.NewDiskImageStore(cfg.UploadDir, "/files")
	if err != nil {
		sugar.Fatalf("Cannot create upload store: %v", err)
	}

	serverOpts := []server.Option{
		server.WithEnvConfig(cfg),
		server.ReadTimeout(5 * time.Second),
		server.ShutdownTimeout(10 * time.Second),
	}

	srv, err := server.NewServer(sugar, store, hub, auth, notifier, images, serverOpts...)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http server: %v", err)
	}
}
