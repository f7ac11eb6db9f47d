package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// RouterConfig wires the handlers into the localhost router.
type RouterConfig struct {
	Capture        *CaptureHandler
	Queue          *QueueHandler
	Sync           *SyncHandler
	Credentials    *CredentialHandler
	WebSocket      http.HandlerFunc
	AllowedOrigins []string
}

// NewRouter creates and configures the HTTP router for the driver UI.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(Recovery)
	r.Use(Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "fieldsync-agent"})
	})

	r.Route("/api/queue", func(r chi.Router) {
		r.Get("/", cfg.Queue.List)
		r.Get("/counts", cfg.Queue.Counts)
		r.Delete("/{id}", cfg.Queue.Remove)
		r.Get("/{id}/thumbnail", cfg.Queue.Thumbnail)

		r.Post("/forms", cfg.Capture.Form)
		r.Post("/photos", cfg.Capture.Photo)
		r.Post("/signatures", cfg.Capture.Signature)
		r.Post("/inspections", cfg.Capture.Inspection)
		r.Post("/calls", cfg.Capture.Call)
	})

	r.Post("/api/jobs", cfg.Capture.SubmitJob)
	r.Get("/api/jobs/submissions", cfg.Queue.Submissions)

	r.Post("/api/sync/now", cfg.Sync.SyncNow)
	r.Get("/api/sync/status", cfg.Sync.Status)
	r.Get("/api/connectivity", cfg.Sync.GetConnectivity)
	r.Post("/api/connectivity", cfg.Sync.SetConnectivity)

	r.Get("/api/credentials", cfg.Credentials.Get)
	r.Put("/api/credentials", cfg.Credentials.Put)

	if cfg.WebSocket != nil {
		r.Get("/ws", cfg.WebSocket)
	}

	return r
}
