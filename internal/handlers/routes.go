package handlers

import "github.com/go-chi/chi/v5"

func RegisterPaymentRoutes(r chi.Router, h *PaymentHandler) {
	r.Get("/health", h.Health)
	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/", h.CreatePayment)
		r.Get("/", h.ListPayments)
		r.Get("/{paymentId}", h.GetPayment)
		r.Post("/{paymentId}/cancel", h.CancelPayment)
	})
}
