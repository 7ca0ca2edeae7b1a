/**
 * @description
 * HTTP handler functions for the merchant- and customer-facing routes.
 * Handlers parse requests, call the service layer, and translate the typed
 * business errors into HTTP statuses; they hold no business logic.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pipomarket/settlement-service/internal/app"
	"github.com/pipomarket/settlement-service/internal/domain"
	"github.com/pipomarket/settlement-service/internal/store"
	"github.com/pipomarket/settlement-service/pkg/momo"
)

// Handler holds the application services the routes dispatch to.
type Handler struct {
	subs     *app.SubscriptionService
	quota    *app.QuotaService
	payments *app.PaymentService
	rewards  *app.RewardService
}

// NewHandler creates a new Handler with the given services.
func NewHandler(subs *app.SubscriptionService, quota *app.QuotaService, payments *app.PaymentService, rewards *app.RewardService) *Handler {
	return &Handler{subs: subs, quota: quota, payments: payments, rewards: rewards}
}

// handleSelectPlan creates the caller's subscription on first plan choice.
func (h *Handler) handleSelectPlan(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		TierID string `json:"tier_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := h.subs.SelectPlan(r.Context(), merchantID, req.TierID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, sub)
}

// handleGetSubscription returns the caller's subscription status view.
func (h *Handler) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	view, err := h.subs.StatusView(r.Context(), merchantID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// handleChangeTier switches the caller's plan.
func (h *Handler) handleChangeTier(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		TierID string `json:"tier_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := h.subs.Get(r.Context(), merchantID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	changed, err := h.subs.ChangeTier(r.Context(), sub.ID, req.TierID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, changed)
}

// handleCancelSubscription cancels the caller's subscription immediately.
func (h *Handler) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sub, err := h.subs.Get(r.Context(), merchantID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	cancelled, err := h.subs.Cancel(r.Context(), sub.ID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cancelled)
}

// handleQuotaCheck reports whether the caller may create another resource
// of the requested kind, with used/max counts for display.
func (h *Handler) handleQuotaCheck(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	kind := domain.ResourceKind(chi.URLParam(r, "kind"))
	if kind != domain.ResourceProduct && kind != domain.ResourceOrder {
		http.Error(w, "Unknown resource kind", http.StatusBadRequest)
		return
	}

	check, err := h.quota.CanCreate(r.Context(), merchantID, kind)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, check)
}

// handleCreateIntents opens one payment intent per merchant share of an
// order.
func (h *Handler) handleCreateIntents(w http.ResponseWriter, r *http.Request) {
	customerID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		OrderID uuid.UUID              `json:"order_id"`
		Shares  []domain.MerchantShare `json:"shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	intents, err := h.payments.CreateForOrder(r.Context(), req.OrderID, customerID, req.Shares)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, intents)
}

// handleListOrderIntents returns all intents of an order.
func (h *Handler) handleListOrderIntents(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	intents, err := h.payments.ListForOrder(r.Context(), orderID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, intents)
}

// resolveIntentForCaller parses the intent ID from the URL and loads the
// intent so handlers can verify the caller is a party to it. When the
// request cannot proceed it writes the response and returns ok=false.
func (h *Handler) resolveIntentForCaller(w http.ResponseWriter, r *http.Request) (*domain.PaymentIntent, uuid.UUID, bool) {
	callerID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, uuid.Nil, false
	}

	intentID, err := uuid.Parse(chi.URLParam(r, "intentID"))
	if err != nil {
		http.Error(w, "Invalid intent ID", http.StatusBadRequest)
		return nil, uuid.Nil, false
	}

	intent, err := h.payments.Get(r.Context(), intentID)
	if err != nil {
		respondWithError(w, err)
		return nil, uuid.Nil, false
	}
	return intent, callerID, true
}

// handleCustomerConfirm records the customer's payment claim. Only the
// intent's customer may claim to have paid.
func (h *Handler) handleCustomerConfirm(w http.ResponseWriter, r *http.Request) {
	intent, callerID, ok := h.resolveIntentForCaller(w, r)
	if !ok {
		return
	}
	if callerID != intent.CustomerID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	confirmed, err := h.payments.CustomerConfirm(r.Context(), intent.ID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, confirmed)
}

// handleMerchantConfirm settles the intent and credits any referral. Only
// the receiving merchant may verify receipt; the two-party protocol depends
// on the customer being unable to perform this step.
func (h *Handler) handleMerchantConfirm(w http.ResponseWriter, r *http.Request) {
	intent, callerID, ok := h.resolveIntentForCaller(w, r)
	if !ok {
		return
	}
	if callerID != intent.MerchantID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		ReferralCode string `json:"referral_code"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	confirmed, err := h.payments.MerchantConfirm(r.Context(), intent.ID, req.ReferralCode)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, confirmed)
}

// handleCancelIntent abandons a not-yet-settled intent. Either party may
// walk away before settlement; nobody else can.
func (h *Handler) handleCancelIntent(w http.ResponseWriter, r *http.Request) {
	intent, callerID, ok := h.resolveIntentForCaller(w, r)
	if !ok {
		return
	}
	if callerID != intent.CustomerID && callerID != intent.MerchantID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	cancelled, err := h.payments.Cancel(r.Context(), intent.ID, "cancelled by user")
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cancelled)
}

// handleRewardQuote computes what an applied reward is worth on a cart.
func (h *Handler) handleRewardQuote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RewardID    uuid.UUID `json:"reward_id"`
		Subtotal    int64     `json:"subtotal"`
		DeliveryFee int64     `json:"delivery_fee"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	application, err := h.rewards.Quote(r.Context(), req.RewardID, app.Cart{Subtotal: req.Subtotal, DeliveryFee: req.DeliveryFee})
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, application)
}

// handleMomoCode returns the USSD dial string for a transfer.
func (h *Handler) handleMomoCode(w http.ResponseWriter, r *http.Request) {
	operator := momo.Operator(r.URL.Query().Get("operator"))
	phone := r.URL.Query().Get("phone")
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}

	code, err := momo.DialCode(operator, phone, amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"dial_code": code})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError maps the service error taxonomy to HTTP statuses.
func respondWithError(w http.ResponseWriter, err error) {
	var quotaErr *domain.QuotaExceededError
	switch {
	case errors.Is(err, store.ErrSubscriptionNotFound),
		errors.Is(err, store.ErrPaymentIntentNotFound),
		errors.Is(err, store.ErrRewardNotFound),
		errors.Is(err, app.ErrTierNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrSubscriptionExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInactiveSubscription):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.As(err, &quotaErr):
		respondWithJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":   quotaErr.Error(),
			"current": quotaErr.Current,
			"max":     quotaErr.Max,
		})
	case errors.Is(err, app.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrStorageUnavailable):
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
