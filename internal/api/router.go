package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every HTTP surface: the engine-backed write endpoints, the
// read views, the processor webhook, and the operational endpoints.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/webhook", h.WebhookHandler).Methods(http.MethodPost)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/purchase", h.PurchaseHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/topup", h.TopUpHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/payouts", h.PayoutHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/decks", h.ListDecksHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/accounts/{id}/balance", h.GetBalanceHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/accounts/{id}/decks", h.ListOwnedDecksHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/creators/{id}/onboarding", h.OnboardingStatusHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/creators/{id}/payout-account", h.RegisterPayoutAccountHandler).Methods(http.MethodPost)

	return r
}
