package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter собирает HTTP-маршруты сервиса.
// Webhook провайдера живёт вне actor-middleware: у него нет
// пользовательской идентичности.
func NewRouter(h *Handlers) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/payment/webhook", h.PaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(requireActor)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/my", h.ListMyOrders)
				r.Get("/latest", h.GetLatestOrder)

				r.Route("/{orderID}", func(r chi.Router) {
					r.Get("/", h.GetOrder)
					r.Get("/history", h.GetOrderHistory)
					r.Put("/status", h.UpdateStatus)
					r.Put("/customer-status", h.UpdateCustomerStatus)
				})
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
