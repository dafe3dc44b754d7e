package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/promptlane/promptlib/internal/api/handlers"
	"github.com/promptlane/promptlib/internal/api/middleware"
	"github.com/promptlane/promptlib/internal/audit"
	"github.com/promptlane/promptlib/internal/auth"
	"github.com/promptlane/promptlib/internal/collections"
	"github.com/promptlane/promptlib/internal/config"
	"github.com/promptlane/promptlib/internal/events"
	"github.com/promptlane/promptlib/internal/fork"
	"github.com/promptlane/promptlib/internal/likes"
	"github.com/promptlane/promptlib/internal/prompts"
	"github.com/promptlane/promptlib/internal/publish"
	"github.com/promptlane/promptlib/internal/store"
	"github.com/promptlane/promptlib/internal/webhook"
)

type Router struct {
	mux    *chi.Mux
	db     *pgxpool.Pool
	redis  *redis.Client
	cfg    *config.Config
	store  store.Accessor
	events events.Publisher
	jwt    *auth.JWTMiddleware
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, st store.Accessor, pub events.Publisher, cfg *config.Config) *Router {
	return &Router{
		mux:    chi.NewRouter(),
		db:     db,
		redis:  rdb,
		cfg:    cfg,
		store:  st,
		events: pub,
		jwt:    auth.NewJWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.ProjectHeader),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Initialize services
	publicProject := rt.cfg.Publish.PublicProjectID
	promptSvc := prompts.NewService(rt.store, rt.events)
	collectionSvc := collections.NewService(rt.store, rt.events)
	collectionPublishing := collections.NewPublishing(rt.store, rt.events, publicProject)
	publishEngine := publish.NewEngine(rt.store, rt.events, publicProject)
	forkEngine := fork.NewEngine(rt.store)
	auditSvc := audit.NewService(rt.db)
	likeSvc := likes.NewServiceWithClient(rt.redis)
	dispatcher := webhook.NewDispatcher(rt.db)
	webhookSvc := webhook.NewService(rt.db, dispatcher)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		// Prompt routes
		promptH := handlers.NewPromptHandler(promptSvc)
		likeH := handlers.NewLikeHandler(likeSvc)
		r.Route("/prompts", func(r chi.Router) {
			r.Post("/", promptH.Create)
			r.Get("/", promptH.List)
			r.Post("/import", promptH.Import)
			r.Get("/{id}", promptH.Get)
			r.Put("/{id}", promptH.UpdateLatest)
			r.Delete("/{id}", promptH.Delete)
			r.Post("/{id}/versions", promptH.SaveVersion)
			r.Delete("/{id}/versions/{versionID}", promptH.DeleteVersion)
			r.Post("/{id}/render", promptH.Render)
			r.Get("/{id}/export", promptH.Export)
			r.Get("/{id}/likes", likeH.Count)
			r.Put("/{id}/likes", likeH.Like)
			r.Delete("/{id}/likes", likeH.Unlike)
		})
		r.Get("/tags", promptH.Tags)

		// Publish workflow
		publishH := handlers.NewPublishHandler(publishEngine, auditSvc)
		r.Route("/publish", func(r chi.Router) {
			r.Post("/versions/{versionID}", publishH.Publish)
			r.Post("/versions/{versionID}/review", publishH.Review)
			r.Delete("/versions/{versionID}", publishH.Unpublish)
		})

		// Collection routes
		collectionH := handlers.NewCollectionHandler(collectionSvc, collectionPublishing, auditSvc)
		r.Route("/collections", func(r chi.Router) {
			r.Post("/", collectionH.Create)
			r.Get("/", collectionH.List)
			r.Get("/{id}", collectionH.Get)
			r.Patch("/{id}/prompts", collectionH.UpdateMembers)
			r.Delete("/{id}", collectionH.Delete)
			r.Post("/{id}/prune", collectionH.Prune)
			r.Post("/{id}/publish", collectionH.Publish)
			r.Post("/{id}/reject", collectionH.Reject)
			r.Delete("/{id}/publish", collectionH.Unpublish)
		})

		// Fork routes
		forkH := handlers.NewForkHandler(forkEngine, auditSvc)
		r.Post("/fork", forkH.Fork)

		// Webhook routes
		webhookH := handlers.NewWebhookHandler(webhookSvc)
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", webhookH.Create)
			r.Get("/", webhookH.List)
			r.Delete("/{id}", webhookH.Delete)
		})

		// Admin routes
		adminH := handlers.NewAdminHandler(auditSvc)
		projectH := handlers.NewProjectHandler(rt.store)
		r.Route("/admin", func(r chi.Router) {
			r.Get("/audit", adminH.AuditLogs)
			r.Post("/projects", projectH.Create)
		})
	})

	return r
}
