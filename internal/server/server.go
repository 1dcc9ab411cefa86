package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kiesman99/scrollstitch/internal/api"
	"github.com/kiesman99/scrollstitch/internal/cache"
	"github.com/kiesman99/scrollstitch/internal/capture"
)

// Page is a loaded browser tab the pipeline can scroll and rasterize.
type Page interface {
	capture.Viewport
	capture.Renderer
	Close() error
}

// Browser opens pages for capture requests. Zero width or height means the
// browser's default viewport size.
type Browser interface {
	Open(ctx context.Context, url string, width, height int) (Page, error)
}

// Config holds the server dependencies.
type Config struct {
	Version string

	// Browser serves POST /capture. Nil disables the endpoint.
	Browser Browser

	// Cache stores encoded composites. Nil means no caching.
	Cache    cache.Cache
	CacheTTL time.Duration

	// Settle and Attempts are the capture defaults when a request omits them.
	Settle   time.Duration
	Attempts int

	// MaxPixels caps the content area of a captured page. Zero means
	// stitcher.DefaultMaxPixels.
	MaxPixels int

	Logger *log.Logger
}

// Server implements the ServerInterface from the generated API
type Server struct {
	startTime time.Time
	cfg       Config
	logger    *log.Logger
}

var _ api.ServerInterface = (*Server)(nil)

// NewServer creates a new server instance
func NewServer(cfg Config) *Server {
	if cfg.Cache == nil {
		cfg.Cache = cache.NewNullCache()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Server{
		startTime: time.Now(),
		cfg:       cfg,
		logger:    cfg.Logger,
	}
}

// Routes builds the chi router: middleware, CORS, and the API mounted at
// /api/v1.
func (s *Server) Routes(timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors)

	api.HandlerWithOptions(s, api.ChiServerOptions{
		BaseURL:    "/api/v1",
		BaseRouter: r,
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			s.writeValidationErrorResponse(w, []fieldError{{Field: "query", Message: err.Error()}}, newRequestID())
		},
	})

	// Legacy health endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/v1/health", http.StatusMovedPermanently)
	})

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Tile-Grid, X-Cache")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.cfg.Version,
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("server: encode response", "err", err)
	}
}

func (s *Server) writeImage(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("server: write response", "err", err)
	}
}

func newRequestID() string {
	return uuid.NewString()
}
