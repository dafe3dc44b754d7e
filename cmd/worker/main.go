package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/promptlane/promptlib/internal/collections"
	"github.com/promptlane/promptlib/internal/config"
	"github.com/promptlane/promptlib/internal/database"
	"github.com/promptlane/promptlib/internal/events"
	"github.com/promptlane/promptlib/internal/store/postgres"
	"github.com/promptlane/promptlib/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	st := postgres.New(db)
	consistency := collections.NewConsistency(st)
	dispatcher := webhook.NewDispatcher(db)
	webhookSvc := webhook.NewService(db, dispatcher)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	mux := asynq.NewServeMux()
	handle := func(event string, h events.HandlerFunc) {
		mux.HandleFunc(event, func(ctx context.Context, t *asynq.Task) error {
			return h(ctx, t.Payload())
		})
	}

	handle(events.TypeCollectionUpdated, consistency.HandleCollectionUpdated)
	handle(events.TypeCollectionAdded, consistency.HandleCollectionAdded)
	handle(events.TypeCollectionDeleted, consistency.HandleCollectionDeleted)
	handle(events.TypeCollectionPrune, consistency.HandlePrune)
	handle(events.TypePromptDeleted, consistency.HandlePromptDeleted)

	handle(events.TypePromptPublished, func(ctx context.Context, payload []byte) error {
		var ev events.PromptPublished
		if err := json.Unmarshal(payload, &ev); err != nil {
			return err
		}
		return webhookSvc.Dispatch(ctx, webhook.EventPromptPublished, ev)
	})

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(mux); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
