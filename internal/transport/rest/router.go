package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/stayswap/stayswap/internal/auth"
	"github.com/stayswap/stayswap/internal/booking"
	"github.com/stayswap/stayswap/internal/payment"
	"github.com/stayswap/stayswap/internal/transport/middleware"
	"github.com/stayswap/stayswap/internal/transport/swagger"
	"github.com/stayswap/stayswap/internal/user"
)

func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	authHandler *auth.Handler,
	userHandler *user.Handler,
	bookingHandler *booking.Handler,
	webhookHandler *payment.WebhookHandler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.TraceID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Gateway webhook: raw body, signature-authenticated, never behind
		// the bearer middleware.
		if webhookHandler != nil {
			r.Post("/payment/webhook", webhookHandler.HandleGatewayWebhook)
		}

		if authHandler != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.Post("/login", authHandler.Login)
				sr.Post("/refresh", authHandler.RefreshToken)
				sr.Post("/logout", authHandler.Logout)
			})

			r.Group(func(pr chi.Router) {
				pr.Use(authHandler.AuthMiddleware)

				if userHandler != nil {
					pr.Get("/users/me", userHandler.GetCurrentUser)
				}

				if bookingHandler != nil {
					pr.Route("/bookings", func(br chi.Router) {
						br.Post("/", bookingHandler.CreateBooking)
						br.Get("/", bookingHandler.ListBookings)
						br.Get("/{id}", bookingHandler.GetBooking)
						br.Post("/{id}/respond", bookingHandler.RespondBooking)
						br.Post("/{id}/cancel", bookingHandler.CancelBooking)
						br.Post("/{id}/checkout", bookingHandler.Checkout)
						br.Post("/{id}/complete-payment", bookingHandler.CompletePayment)
					})
				}
			})
		}
	})
}
