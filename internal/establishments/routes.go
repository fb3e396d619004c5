package establishments

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/glitchcodes/restroom-backend/internal/middleware"
)

func SetupRoutes(svc *Service, sessions middleware.SessionFetcher, roles middleware.RoleLookup) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Get("/nearest", NearestHandler(svc))
	r.Get("/resolve", ResolveHandler(svc))
	r.Get("/establishments/{id}", GetEstablishmentHandler(svc))

	// Signed-in routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(sessions))

		r.Post("/submit", SubmitHandler(svc, roles))
		r.Post("/report", ReportHandler(svc))

		r.With(middleware.AdminMiddleware(roles)).
			Post("/establishments/{id}/unavailable", MarkUnavailableHandler(svc))
	})

	return r
}
