package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes registers all admin API routes using chi router
func RegisterRoutes(mux *http.ServeMux, handlers *Handlers) {
	r := chi.NewRouter()

	r.Get("/health", handlers.handleHealth)

	r.Route("/cluster", func(r chi.Router) {
		r.Get("/members", handlers.handleClusterMembers)
	})

	r.Route("/pipeline", func(r chi.Router) {
		r.Get("/stats", handlers.handlePipelineStats)
	})

	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", handlers.handleCacheStats)
	})

	r.Route("/index", func(r chi.Router) {
		r.Get("/worker", handlers.handleIndexWorker)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeErrorResponse(w, http.StatusNotFound, "unknown admin endpoint")
	})

	// Mount chi router under /admin
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}
