/**
 * @description
 * This file sets up the HTTP router for the settlement service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, and authentication, and maps the routes to their
 * corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the settlement-service
// routes.
func NewRouter(h *Handler, jwksURL string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Settlement service is healthy"))
	})

	// Authenticated merchant/customer routes
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/subscriptions/select-plan", h.handleSelectPlan)
		r.Get("/subscriptions/me", h.handleGetSubscription)
		r.Post("/subscriptions/me/change-tier", h.handleChangeTier)
		r.Post("/subscriptions/me/cancel", h.handleCancelSubscription)
		r.Get("/quota/{kind}", h.handleQuotaCheck)

		r.Post("/payments/intents", h.handleCreateIntents)
		r.Get("/payments/orders/{orderID}/intents", h.handleListOrderIntents)
		r.Post("/payments/intents/{intentID}/customer-confirm", h.handleCustomerConfirm)
		r.Post("/payments/intents/{intentID}/merchant-confirm", h.handleMerchantConfirm)
		r.Post("/payments/intents/{intentID}/cancel", h.handleCancelIntent)

		r.Post("/rewards/quote", h.handleRewardQuote)
		r.Get("/momo/code", h.handleMomoCode)
	})

	// Privileged admin routes
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))
		r.Use(RequireAdmin)

		r.Post("/admin/subscriptions/{subscriptionID}/activate", h.handleActivateSubscription)
		r.Post("/admin/subscriptions/{subscriptionID}/suspend", h.handleSuspendSubscription)
		r.Post("/admin/subscriptions/{subscriptionID}/extend", h.handleExtendSubscription)
		r.Get("/admin/subscriptions", h.handleListSubscriptions)
		r.Get("/admin/loyalty-fund", h.handleGetFund)
		r.Post("/admin/loyalty-fund/topup", h.handleTopUpFund)
	})

	return r
}
