package server

import (
	"compress/gzip"
	"net/http"

	"github.com/dkurilov/checkout/internal/handler"
	"github.com/dkurilov/checkout/internal/middleware"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRoutes(handler *handler.Handler) {
	s.setupMiddleware()

	s.mux.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", http.HandlerFunc(handler.Register))
			r.Post("/login", http.HandlerFunc(handler.Login))
		})

		r.Route("/payment", func(r chi.Router) {
			// The provider posts to the callbacks, they carry no session.
			r.Post("/notify", http.HandlerFunc(handler.Notify))
			r.Post("/response", http.HandlerFunc(handler.Response))
			r.Get("/status/{orderNo}", http.HandlerFunc(handler.Status))

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth)

				r.Post("/orders", http.HandlerFunc(handler.CreateOrder))
				r.Post("/refund", http.HandlerFunc(handler.Refund))
				r.Post("/refund/points/{orderNo}", http.HandlerFunc(handler.RefundPoints))
				r.Get("/history", http.HandlerFunc(handler.History))
			})
		})
	})
}

func (s *Server) setupMiddleware() {
	s.mux.Use(
		middleware.Logger,
		chiMiddleware.Compress(gzip.BestCompression, "application/json", "text/html", "text/plain"),
	)
}
