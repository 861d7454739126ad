package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/infinitelandscape/server/internal/auth"
)

// sessionRateLimit bounds session creation per client IP.
const sessionRateLimit = 10

// SetupHealthRoutes registers the liveness check.
func SetupHealthRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok","service":"landscape-server"}`)
	})
}

// SetupConfigRoutes registers configuration routes (no auth required for public config).
// The metrics route only exists while profiling is enabled.
func SetupConfigRoutes(mux *http.ServeMux, handlers *ConfigHandlers, profiling bool) {
	mux.HandleFunc("/api/config/terrain", handlers.GetTerrainConfig)
	if profiling {
		mux.HandleFunc("/api/metrics", handlers.GetMetrics)
	}
}

// SetupSessionRoutes registers session creation and lookup.
func SetupSessionRoutes(mux *http.ServeMux, handlers *auth.SessionHandlers) {
	createLimit := RateLimitMiddleware(sessionRateLimit, time.Minute)
	lookupLimit := ViewerRateLimitMiddleware(60, time.Minute)

	create := createLimit(http.HandlerFunc(handlers.CreateSession))
	lookup := handlers.Middleware(lookupLimit(http.HandlerFunc(handlers.GetSession)))

	mux.Handle("/api/session", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			create.ServeHTTP(w, r)
		case http.MethodGet:
			lookup.ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))
}

// SetupStreamRoutes registers the websocket endpoint.
func SetupStreamRoutes(mux *http.ServeMux, handlers *WebSocketHandlers) {
	mux.HandleFunc("/ws", handlers.HandleWebSocket)
}
