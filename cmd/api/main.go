//	@title			Pixelgrove Media API
//	@version		1.0
//	@description	Photo derivative pipeline and storage-lifecycle gateway: presigned two-phase uploads, tiered multi-encoding transcodes, and idempotent asset deletion.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/pixelgrove/service/internal/config"
	"github.com/pixelgrove/service/internal/db"
	"github.com/pixelgrove/service/internal/derivative"
	"github.com/pixelgrove/service/internal/ingest"
	appMiddleware "github.com/pixelgrove/service/internal/middleware"
	"github.com/pixelgrove/service/internal/storage"
	"github.com/pixelgrove/service/internal/transcode"
	"github.com/pixelgrove/service/internal/upload"

	_ "github.com/pixelgrove/service/docs/swagger"
)

func main() {
	cfg := config.Load()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(rootCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	store, err := storage.NewMinioStore(
		cfg.StorageEndpoint,
		cfg.StorageAccessKey,
		cfg.StorageSecretKey,
		cfg.StorageBucket,
		cfg.StorageUseSSL,
	)
	if err != nil {
		log.Fatalf("object storage init failed: %v", err)
	}
	gateway := storage.NewGateway(store, cfg.StoragePublicBase, cfg.DerivativeFolder, cfg.StoragePutRetries, cfg.StorageRetryDelay)

	// Wire dependencies: pipeline → orchestrator → coordinator → handlers
	plan := derivative.DefaultPlan()
	pipeline := transcode.NewPipeline(cfg.TranscodeWorkers, cfg.TranscodeTimeout)
	orchestrator := ingest.NewOrchestrator(pipeline, gateway, cfg.TranscodeWorkers)
	assetHandler := ingest.NewHandler(orchestrator, plan)

	uploadRepo := upload.NewRepository(pool)
	uploadSvc := upload.NewService(uploadRepo, gateway, orchestrator, plan, cfg.UploadMaxBytes, cfg.UploadPresignTTL, cfg.TranscodeTimeout+time.Minute)
	uploadSvc.StartSweeper(rootCtx, cfg.UploadSweepInterval)
	uploadHandler := upload.NewHandler(uploadSvc)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI — available at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Public read-through proxy for derivatives
		r.Get("/assets/{baseID}/{file}", assetHandler.Serve)

		// Protected control plane
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))
			r.Post("/uploads", uploadHandler.Issue)
			r.Post("/uploads/finalize", uploadHandler.Finalize)
			r.Delete("/assets/{baseID}", assetHandler.Remove)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // sync finalize covers a full transcode
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on :%s (env=%s)", cfg.Port, cfg.AppEnv)
		log.Printf("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	log.Println("server stopped")
}
