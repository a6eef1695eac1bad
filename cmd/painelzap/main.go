package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunovales/painelzap/internal/database"
	"github.com/brunovales/painelzap/internal/logging"
	"github.com/brunovales/painelzap/internal/server"
)

func main() {
	port := envOr("PAINELZAP_PORT", "8080")
	dbPath := envOr("PAINELZAP_DB_PATH", "painelzap.db")

	logger := logging.Setup(os.Getenv("PAINELZAP_LOG_LEVEL"), os.Getenv("PAINELZAP_LOG_FORMAT"))

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	cfg := server.Config{
		VAPIDPublicKey:  os.Getenv("PAINELZAP_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("PAINELZAP_VAPID_PRIVATE_KEY"),
		VAPIDSubject:    envOr("PAINELZAP_VAPID_SUBJECT", "mailto:suporte@painelzap.app"),
		SecureCookies:   os.Getenv("PAINELZAP_INSECURE_COOKIES") != "1",
	}

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sweeper := srv.Sweeper(); sweeper != nil {
		sweeper.Start(ctx)
		defer sweeper.Stop()
	} else {
		logger.Warn("VAPID keys not configured, expiration sweep disabled")
	}

	// Expired sessions and stale rate-limit buckets are pruned hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := srv.SessionStore().DeleteExpired(); err != nil {
					logger.Warn("session cleanup", "error", err)
				}
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("painelzap listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
