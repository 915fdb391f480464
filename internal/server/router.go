package server

import (
	"log/slog"
	"net/http"
	"time"

	"overlay-streamer/internal/overlay"
	"overlay-streamer/internal/platform/httpx"
	"overlay-streamer/internal/platform/logger"
	"overlay-streamer/internal/platform/metrics"
	"overlay-streamer/internal/stream"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// APIPrefix is the second mount point of every route, kept for clients that
// address the backend through a /api reverse-proxy path.
const APIPrefix = "/api"

var routeDocs = []string{
	"GET /health",
	"POST /stream/start",
	"POST /stream/stop",
	"GET /stream/status?stream_key=",
	"GET /streams",
	"GET /hls/{stream_key}/{file}",
	"GET /overlays?stream_key=",
	"POST /overlays",
	"PUT /overlays/{id}",
	"DELETE /overlays/{id}",
	"GET /metrics",
}

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Streams    *stream.Handler
	Overlays   *overlay.Handler
	Supervisor *stream.Supervisor
	Metrics    *metrics.Metrics
	Log        *slog.Logger

	// StreamRateLimit caps /stream/* requests per client IP per minute.
	StreamRateLimit int
}

// NewRouter assembles the HTTP surface. Routes are served both at the root
// and under APIPrefix.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(d.Log))
	r.Use(metrics.RequestMiddleware(d.Metrics))
	// the overlay editor and player are usually served from another origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Origin", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         86400,
	}))

	r.Get("/", banner)
	scrape := d.Metrics.Handler(func() { d.Metrics.SetActiveProcesses(d.Supervisor.Count()) })

	// one limiter so both mounts share the per-IP budget
	limit := RateLimit(d.StreamRateLimit, time.Minute)
	routes := func(r chi.Router) {
		r.Get("/health", health)
		r.Method(http.MethodGet, "/metrics", scrape)

		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Post("/stream/start", d.Streams.StartStream)
			r.Post("/stream/stop", d.Streams.StopStream)
			r.Get("/stream/status", d.Streams.StreamStatus)
		})
		r.Get("/streams", d.Streams.ListStreams)
		r.Get("/hls/*", d.Streams.ServeArtifact)

		r.Route("/overlays", func(r chi.Router) {
			r.Get("/", d.Overlays.ListOverlays)
			r.Post("/", d.Overlays.CreateOverlay)
			r.Put("/{id}", d.Overlays.UpdateOverlay)
			r.Delete("/{id}", d.Overlays.DeleteOverlay)
		})
	}

	routes(r)
	r.Route(APIPrefix, routes)
	return r
}

func banner(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "RTSP overlay streaming API",
		"status":  "OK",
		"docs":    routeDocs,
	})
}

func health(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
