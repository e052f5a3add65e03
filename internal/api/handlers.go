package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rgeron/SwapDecksMarketplace/internal/engine"
	"github.com/rgeron/SwapDecksMarketplace/internal/gateway"
	"github.com/rgeron/SwapDecksMarketplace/internal/models"
	"github.com/rgeron/SwapDecksMarketplace/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	purchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_purchases_total",
		Help: "Purchase requests by outcome",
	}, []string{"outcome"})

	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_webhook_events_total",
		Help: "Webhook deliveries by result",
	}, []string{"result"})
)

type Handler struct {
	store  store.Store
	engine *engine.Engine
}

func NewHandler(s store.Store, e *engine.Engine) *Handler {
	return &Handler{store: s, engine: e}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) PurchaseHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/purchase"))
	defer timer.ObserveDuration()

	var req models.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.count("POST", "/purchase", 400)
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.BuyerID == "" || req.DeckID == "" {
		h.count("POST", "/purchase", 422)
		respondWithError(w, http.StatusUnprocessableEntity, "buyer_id and deck_id are required")
		return
	}

	result, err := h.engine.RequestPurchase(r.Context(), req.BuyerID, req.DeckID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDeckNotFound):
			h.count("POST", "/purchase", 404)
			respondWithError(w, http.StatusNotFound, "Deck not found")
		default:
			h.count("POST", "/purchase", 500)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	purchasesTotal.WithLabelValues(result.Status).Inc()
	h.count("POST", "/purchase", 200)
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) TopUpHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/topup"))
	defer timer.ObserveDuration()

	var req models.TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.count("POST", "/topup", 400)
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.UserID == "" {
		h.count("POST", "/topup", 422)
		respondWithError(w, http.StatusUnprocessableEntity, "user_id is required")
		return
	}
	if req.Amount <= 0 {
		h.count("POST", "/topup", 422)
		respondWithError(w, http.StatusUnprocessableEntity, "Positive amount required")
		return
	}

	session, err := h.engine.CreateTopUp(r.Context(), req.UserID, req.Amount)
	if err != nil {
		h.count("POST", "/topup", 500)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.count("POST", "/topup", 200)
	respondWithJSON(w, http.StatusOK, map[string]string{"url": session.RedirectURL})
}

// WebhookHandler applies a processor delivery. Signature failures are 4xx so
// the processor stops retrying them; anything transient is 5xx so it retries.
func (h *Handler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/webhook"))
	defer timer.ObserveDuration()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		webhookEventsTotal.WithLabelValues("read_error").Inc()
		h.count("POST", "/webhook", 500)
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return
	}

	err = h.engine.HandleWebhook(r.Context(), payload, r.Header.Get("Webhook-Signature"))
	if err != nil {
		if errors.Is(err, gateway.ErrSignatureInvalid) {
			webhookEventsTotal.WithLabelValues("signature_invalid").Inc()
			h.count("POST", "/webhook", 400)
			respondWithError(w, http.StatusBadRequest, "Invalid signature")
			return
		}
		webhookEventsTotal.WithLabelValues("error").Inc()
		h.count("POST", "/webhook", 500)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	webhookEventsTotal.WithLabelValues("applied").Inc()
	h.count("POST", "/webhook", 200)
	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) PayoutHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/payouts"))
	defer timer.ObserveDuration()

	var req models.PayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.count("POST", "/payouts", 400)
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.CreatorID == "" || req.Amount <= 0 {
		h.count("POST", "/payouts", 422)
		respondWithError(w, http.StatusUnprocessableEntity, "creator_id and a positive amount are required")
		return
	}

	result, err := h.engine.Payout(r.Context(), req.CreatorID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrPayoutUnavailable):
			h.count("POST", "/payouts", 422)
			respondWithError(w, http.StatusUnprocessableEntity, "Payout destination not onboarded")
		case errors.Is(err, store.ErrInsufficientFunds):
			h.count("POST", "/payouts", 422)
			respondWithError(w, http.StatusUnprocessableEntity, "Insufficient funds")
		default:
			h.count("POST", "/payouts", 500)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	h.count("POST", "/payouts", 200)
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	acc, err := h.store.GetAccount(r.Context(), userID)
	if err != nil {
		h.count("GET", "/accounts/{id}/balance", 500)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.count("GET", "/accounts/{id}/balance", 200)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": acc.UserID,
		"balance": acc.Balance,
	})
}

func (h *Handler) ListOwnedDecksHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	decks, err := h.store.ListOwnedDecks(r.Context(), userID)
	if err != nil {
		h.count("GET", "/accounts/{id}/decks", 500)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if decks == nil {
		decks = []models.Deck{}
	}
	h.count("GET", "/accounts/{id}/decks", 200)
	respondWithJSON(w, http.StatusOK, decks)
}

func (h *Handler) ListDecksHandler(w http.ResponseWriter, r *http.Request) {
	decks, err := h.store.ListDecks(r.Context())
	if err != nil {
		h.count("GET", "/decks", 500)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if decks == nil {
		decks = []models.Deck{}
	}
	h.count("GET", "/decks", 200)
	respondWithJSON(w, http.StatusOK, decks)
}

func (h *Handler) OnboardingStatusHandler(w http.ResponseWriter, r *http.Request) {
	creatorID := mux.Vars(r)["id"]
	acc, err := h.store.GetAccount(r.Context(), creatorID)
	if err != nil {
		h.count("GET", "/creators/{id}/onboarding", 500)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.count("GET", "/creators/{id}/onboarding", 200)
	respondWithJSON(w, http.StatusOK, models.OnboardingStatus{
		CreatorID:       acc.UserID,
		PayoutAccountID: acc.PayoutAccountID,
		PayoutsEnabled:  acc.PayoutsEnabled,
	})
}

func (h *Handler) RegisterPayoutAccountHandler(w http.ResponseWriter, r *http.Request) {
	creatorID := mux.Vars(r)["id"]

	var req struct {
		PayoutAccountID string `json:"payout_account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PayoutAccountID == "" {
		h.count("POST", "/creators/{id}/payout-account", 400)
		respondWithError(w, http.StatusBadRequest, "payout_account_id is required")
		return
	}

	if err := h.engine.RegisterPayoutAccount(r.Context(), creatorID, req.PayoutAccountID); err != nil {
		h.count("POST", "/creators/{id}/payout-account", 500)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.count("POST", "/creators/{id}/payout-account", 200)
	respondWithJSON(w, http.StatusOK, map[string]bool{"registered": true})
}

func (h *Handler) count(method, endpoint string, status int) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
