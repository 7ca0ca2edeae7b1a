/**
 * @description
 * HTTP handlers for the privileged admin surface: subscription activation,
 * suspension, extension, listing, and loyalty fund management. These routes
 * are mounted behind the admin role check.
 */
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// handleActivateSubscription starts a fresh billing period for a
// pending_payment or suspended subscription.
func (h *Handler) handleActivateSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := uuid.Parse(chi.URLParam(r, "subscriptionID"))
	if err != nil {
		http.Error(w, "Invalid subscription ID", http.StatusBadRequest)
		return
	}

	sub, err := h.subs.Activate(r.Context(), subID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

// handleSuspendSubscription force-suspends an active subscription.
func (h *Handler) handleSuspendSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := uuid.Parse(chi.URLParam(r, "subscriptionID"))
	if err != nil {
		http.Error(w, "Invalid subscription ID", http.StatusBadRequest)
		return
	}

	sub, err := h.subs.Suspend(r.Context(), subID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

// handleExtendSubscription pushes an active subscription's period forward.
func (h *Handler) handleExtendSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := uuid.Parse(chi.URLParam(r, "subscriptionID"))
	if err != nil {
		http.Error(w, "Invalid subscription ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := h.subs.Extend(r.Context(), subID, req.Days)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

// handleListSubscriptions lists subscriptions, optionally by status.
func (h *Handler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	subs, err := h.subs.List(r.Context(), status, limit)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, subs)
}

// handleGetFund returns the loyalty fund balance.
func (h *Handler) handleGetFund(w http.ResponseWriter, r *http.Request) {
	fund, err := h.rewards.FundBalance(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, fund)
}

// handleTopUpFund credits the loyalty fund.
func (h *Handler) handleTopUpFund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64  `json:"amount"`
		Note   string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entry, err := h.rewards.TopUpFund(r.Context(), req.Amount, req.Note)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, entry)
}
