package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genericchat/backend/internal/blob"
	"github.com/genericchat/backend/internal/config"
	"github.com/genericchat/backend/internal/httpserver"
	"github.com/genericchat/backend/internal/live"
	"github.com/genericchat/backend/internal/security"
	"github.com/genericchat/backend/internal/service"
	"github.com/genericchat/backend/internal/store/sqlite"
	"github.com/genericchat/backend/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize database
	db, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := sqlite.Migrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)

	// Blob storage for profile pictures and message attachments
	blobs, err := blob.NewDiskStore(cfg.UploadDir, cfg.UploadBaseURL)
	if err != nil {
		log.Fatalf("failed to initialize upload storage: %v", err)
	}

	// Live subscription broker and WebSocket hub
	broker := live.NewBroker()
	hub := ws.NewHub()

	// Background reconciler repairs index entries that a partial
	// dual-write left missing or stale.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconciler := service.NewReconciler(
		sqlite.NewConversationRepo(db),
		sqlite.NewMessageRepo(db),
		sqlite.NewDirectoryRepo(db),
		broker,
		cfg.ReconcileInterval,
	)
	go reconciler.Run(ctx)

	// Build HTTP router
	router := httpserver.NewRouter(cfg, db, blobs, broker, hub, tokenSvc, passwordHasher)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("Starting %s on %s\n", cfg.AppName, cfg.HTTPAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
