package verifyservice

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// API is the chi-routed HTTP surface gate.VerifyServiceClient talks to,
// plus an admin-only merchant-creation endpoint. Router wiring style
// (chi.NewRouter, middleware.RequestID/RealIP/Recoverer, grouped routes)
// is grounded on the retrieved CedrosPay server's httpserver package.
type API struct {
	store      *Store
	issuer     *KeyIssuer
	adminToken string
	log        zerolog.Logger
	metrics    *Metrics
	router     chi.Router
}

// NewAPI builds the router. adminToken protects POST /merchants; pass a
// non-empty value in any real deployment.
func NewAPI(store *Store, issuer *KeyIssuer, adminToken string, log zerolog.Logger, metrics *Metrics) *API {
	a := &API{store: store, issuer: issuer, adminToken: adminToken, log: log, metrics: metrics}
	a.router = a.buildRouter()
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(a.zerologMiddleware)

	r.Get("/verify", a.metrics.instrument("verify", a.handleVerify))
	r.Get("/merchants/me", a.metrics.instrument("merchants_me", a.handleMerchantsMe))
	r.With(a.requireAdmin).Post("/merchants", a.metrics.instrument("merchants_create", a.handleCreateMerchant))

	return r
}

func (a *API) zerologMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.adminToken == "" || bearerToken(r) != a.adminToken {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimPrefix(h, "Bearer ")
}

func (a *API) authenticate(r *http.Request) (*Merchant, error) {
	if _, err := a.issuer.ValidateKey(bearerToken(r)); err != nil {
		return nil, err
	}
	return a.store.GetMerchantByAPIKeyHash(r.Context(), HashAPIKey(bearerToken(r)))
}

// handleVerify implements GET /verify?memo=<memo>.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	merchant, err := a.authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	memo := r.URL.Query().Get("memo")
	if memo == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing memo"})
		return
	}

	paid, err := a.store.MemoPaid(r.Context(), memo, merchant.MinPayment)
	if err != nil {
		a.log.Error().Err(err).Str("memo", memo).Msg("checking memo payment status")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paid": paid})
}

// handleMerchantsMe implements GET /merchants/me.
func (a *API) handleMerchantsMe(w http.ResponseWriter, r *http.Request) {
	merchant, err := a.authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"walletAddress": merchant.WalletAddress,
		"network":       merchant.Network,
	})
}

type createMerchantRequest struct {
	WalletAddress string `json:"walletAddress"`
	Network       string `json:"network"`
	MinPayment    string `json:"minPayment"`
}

// handleCreateMerchant implements POST /merchants (admin-only). It mints a
// fresh merchant ID and bearer key, storing only the key's hash.
func (a *API) handleCreateMerchant(w http.ResponseWriter, r *http.Request) {
	var req createMerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if req.MinPayment == "" {
		req.MinPayment = "0.01"
	}

	merchantID := uuid.New()
	key, err := a.issuer.IssueKey(merchantID)
	if err != nil {
		a.log.Error().Err(err).Msg("issuing merchant key")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	if _, err := a.store.CreateMerchant(r.Context(), HashAPIKey(key), req.WalletAddress, req.Network, req.MinPayment); err != nil {
		a.log.Error().Err(err).Msg("creating merchant")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"merchantId": merchantID.String(),
		"apiKey":     key,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
