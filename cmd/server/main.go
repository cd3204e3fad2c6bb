package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"barista-backend/internal/config"
	"barista-backend/internal/database"
	"barista-backend/internal/handlers"
	"barista-backend/internal/middleware"
	"barista-backend/internal/observability"
	"barista-backend/internal/router"
	"barista-backend/internal/services"
	"barista-backend/internal/session"
	"barista-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting Barista Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize Gemini Client ────
	gemini, err := services.NewGeminiBackend(cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer gemini.Close()
	log.Printf("✓ Gemini client initialized (fallback order: %v)", cfg.GeminiModels)

	// ──── Step 3: Optional Redis for turn events ────
	var (
		redisClient *redis.Client
		events      services.EventPublisher
		wsHub       *websocket.Hub
	)
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer redisClient.Close()
		events = services.NewRedisEventPublisher(redisClient)
		wsHub = websocket.NewHub(redisClient)
		log.Println("✓ Redis connected, turn events enabled")
	}

	// ──── Step 4: Wire the chat pipeline ────
	metrics := observability.NewMetrics("barista")
	store := session.NewStore()
	controller := services.NewFallbackController(gemini, cfg.GeminiModels, cfg.FallbackBackoff, cfg.RepeatBackoff)
	chatService := services.NewChatService(store, controller, events, metrics)
	chatHandler := handlers.NewChatHandler(chatService)

	chatLimiter := middleware.NewRateLimiter(cfg.ChatRateLimitPerMin, time.Minute)
	defer chatLimiter.Stop()

	// ──── Step 5: Start HTTP Server ────
	r := router.New(chatHandler, router.Options{
		FrontendURL: cfg.FrontendURL,
		StaticDir:   cfg.StaticDir,
		ChatLimiter: chatLimiter,
		Metrics:     metrics.Handler(),
		Hub:         wsHub,
		TrustProxy:  cfg.TrustProxy,
	})

	// WriteTimeout covers the worst case of five attempts plus backoffs.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		log.Fatalf("✗ Listen on %s failed: %v", server.Addr, err)
	}

	log.Printf("✓ Barista Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  Chat:    POST http://localhost:%s/chat", cfg.Port)
	log.Printf("  Metrics: http://localhost:%s/metrics", cfg.Port)

	if err := serve(ctx, server, ln, shutdownDrain); err != nil {
		log.Printf("✗ Server stopped: %v", err)
		return
	}
	log.Println("✓ Server stopped")
}

const shutdownDrain = 30 * time.Second

// serve runs server on ln until ctx is done, then stops accepting and waits
// up to drain for in-flight requests before returning. Deferred cleanup in
// main (Gemini and Redis clients) only runs after this returns.
func serve(ctx context.Context, server *http.Server, ln net.Listener, drain time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
