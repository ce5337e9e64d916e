package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/institutoandes/cobranza/internal/http/actor"
	"github.com/institutoandes/cobranza/internal/http/audit"
	"github.com/institutoandes/cobranza/internal/http/client"
	"github.com/institutoandes/cobranza/internal/http/document"
	"github.com/institutoandes/cobranza/internal/http/importcsv"
	"github.com/institutoandes/cobranza/internal/http/payment"
)

func New(
	documentsV1 *document.Handler,
	paymentsV1 *payment.Handler,
	clientsV1 *client.Handler,
	importV1 *importcsv.Handler,
	auditV1 *audit.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(actor.Middleware)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			documentsV1.Routes(r)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			paymentsV1.Routes(r)
		})

		r.Route("/clients", func(r chi.Router) {
			clientsV1.Routes(r)
		})

		r.Route("/import", importV1.Routes)

		r.Route("/audit", func(r chi.Router) {
			auditV1.Routes(r)
		})
	})

	return router
}
