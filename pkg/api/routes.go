package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	// One shared limiter map so files and reports draw from the same
	// per-IP budget. Health stays unthrottled for probes.
	var rateLimit func(http.Handler) http.Handler
	if s.cfg.Server.RateLimit.Enabled {
		rateLimit = s.rateLimitMiddleware(
			s.cfg.Server.RateLimit.RequestsPerMinute,
		)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Report file serving from the discovery paths.
		r.Route("/files", func(r chi.Router) {
			if rateLimit != nil {
				r.Use(rateLimit)
			}

			r.Get("/*", s.handleFileRequest)
			r.Head("/*", s.handleFileRequest)
		})

		// Report index endpoints (when indexing is enabled).
		if s.indexStore != nil {
			r.Route("/reports", func(r chi.Router) {
				if rateLimit != nil {
					r.Use(rateLimit)
				}

				r.Get("/", s.handleListReports)
				r.Get("/{path}/{configuration}", s.handleGetReport)
			})
		}
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the API config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
