package router

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"barista-backend/internal/handlers"
	"barista-backend/internal/middleware"
	"barista-backend/internal/websocket"
)

type Options struct {
	FrontendURL string
	StaticDir   string
	ChatLimiter *middleware.RateLimiter
	Metrics     http.Handler
	Hub         *websocket.Hub // nil when Redis is not configured

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers, since the
	// chat rate limit is keyed on that address.
	TrustProxy bool
}

func New(chatHandler *handlers.ChatHandler, opts Options) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	if opts.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(opts.FrontendURL))

	// Health check
	r.Get("/health", handlers.Health)

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// ──── Chat Routes ────
	r.Route("/chat", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if opts.ChatLimiter != nil {
				r.Use(opts.ChatLimiter.Middleware)
			}
			r.Post("/", chatHandler.SendMessage)
		})
		r.Get("/{sessionId}/history", chatHandler.GetHistory)
		r.Delete("/{sessionId}", chatHandler.ClearSession)
	})

	// ──── WebSocket ────
	if opts.Hub != nil {
		r.Get("/ws", opts.Hub.HandleWebSocket)
	}

	// ──── Static assets ────
	if opts.StaticDir != "" {
		if info, err := os.Stat(opts.StaticDir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
		}
	}

	return r
}
