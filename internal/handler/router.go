package handler

import (
	"net/http"
	"path"
	"time"

	"contact-relay/internal/metrics"
	"contact-relay/internal/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions holds the HTTP surface settings taken from configuration.
type RouterOptions struct {
	StaticDir      string
	TrustProxy     bool
	AllowedOrigins []string
	MetricsEnabled bool
}

// NewRouter creates the Chi router with middleware, API routes and the
// static file fallback. Anything not matched answers 404 with no body.
func NewRouter(contactHandler *ContactHandler, opts RouterOptions, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	// Undefined routes fall through to static files; undefined methods on
	// API routes are reported as not found rather than 405.
	router.NotFound(staticHandler(opts.StaticDir))
	router.MethodNotAllowed(notFound)

	router.Use(middleware.RequestID)
	// HEAD is answered by the GET route when no HEAD route exists.
	router.Use(middleware.GetHead)
	if opts.TrustProxy {
		router.Use(middleware.RealIP)
	}
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)

	allowCredentials := true
	for _, origin := range opts.AllowedOrigins {
		if origin == "*" {
			allowCredentials = false
		}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	}))

	if opts.MetricsEnabled {
		router.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		contactHandler.RegisterRoutes(r)
	})

	return router
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

// staticHandler serves files under dir for GET and HEAD. Missing files,
// directories without an index.html and other methods get a bare 404.
func staticHandler(dir string) http.HandlerFunc {
	root := http.Dir(dir)
	fileServer := http.FileServer(root)

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			notFound(w, r)
			return
		}
		if dir == "" || !fileExists(root, r.URL.Path) {
			notFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	}
}

func fileExists(root http.FileSystem, urlPath string) bool {
	name := path.Clean("/" + urlPath)

	f, err := root.Open(name)
	if err != nil {
		return false
	}
	info, err := f.Stat()
	f.Close()
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return true
	}

	index, err := root.Open(path.Join(name, "index.html"))
	if err != nil {
		return false
	}
	index.Close()
	return true
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.String("user_agent", r.UserAgent()),
					util.Int("status", ww.Status()),
					util.Int("bytes", ww.BytesWritten()),
					util.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
