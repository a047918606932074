package rest

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"voicebank/internal/cache"
	"voicebank/internal/repository"
	"voicebank/internal/service"
	"voicebank/internal/storage"
	"voicebank/internal/transport/rest/handler"
	"voicebank/internal/transport/rest/middleware"
	"voicebank/internal/transport/ws"
)

// Container holds all dependencies for the router.
type Container struct {
	SessionService   *service.SessionService
	UploadService    *service.UploadService
	RecordingService *service.RecordingService
	StatsService     *service.StatsService
	SessionRepo      repository.SessionRepo
	BlobStore        storage.BlobStore
	RateLimiter      cache.RateLimiter
	WSHub            *ws.Hub
	Logger           *zap.Logger

	PublicDir      string
	MaxUploadBytes int64
}

// NewRouter creates the API router with all endpoints.
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(c.SessionService)
	uploadHandler := handler.NewUploadHandler(c.UploadService, c.MaxUploadBytes)
	recordingHandler := handler.NewRecordingHandler(c.RecordingService, c.Logger)
	statsHandler := handler.NewStatsHandler(c.StatsService, c.SessionRepo, c.BlobStore)
	wsHandler := ws.NewHandler(c.WSHub, c.Logger)

	rateLimitMW := middleware.NewRateLimitMiddleware(c.RateLimiter, c.Logger)

	r.Use(corsMiddleware)
	r.Use(rateLimitMW.Limit)

	// Health check
	r.HandleFunc("/health", statsHandler.Health).Methods("GET")

	// Operator live feed
	r.HandleFunc("/ws/activity", wsHandler.ActivityFeed).Methods("GET")

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sentences", sessionHandler.Sentences).Methods("GET", "OPTIONS")
	api.HandleFunc("/session/start", sessionHandler.Start).Methods("POST", "OPTIONS")
	api.HandleFunc("/session/complete", sessionHandler.Complete).Methods("POST", "OPTIONS")
	api.HandleFunc("/session/end", sessionHandler.End).Methods("POST", "OPTIONS")
	api.HandleFunc("/upload", uploadHandler.Upload).Methods("POST", "OPTIONS")
	api.HandleFunc("/stats", statsHandler.Stats).Methods("GET", "OPTIONS")
	api.HandleFunc("/recordings", recordingHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/recording/{id}/play", recordingHandler.Play).Methods("GET", "OPTIONS")
	api.HandleFunc("/recording/{id}/download", recordingHandler.Download).Methods("GET", "OPTIONS")

	// Unknown API paths get a JSON 404 instead of the SPA fallback.
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"API endpoint not found"}`))
	})

	// Static files with index.html fallback for the collection UI.
	if c.PublicDir != "" {
		r.PathPrefix("/").Handler(spaHandler{staticDir: c.PublicDir})
	}

	return r
}

// spaHandler serves files from staticDir, falling back to index.html for
// paths that don't map to a file.
type spaHandler struct {
	staticDir string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.staticDir, filepath.Clean(r.URL.Path))

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.ServeFile(w, r, filepath.Join(h.staticDir, "index.html"))
		return
	}
	http.FileServer(http.Dir(h.staticDir)).ServeHTTP(w, r)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
