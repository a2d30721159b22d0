package gate

import (
	"context"
	"log/slog"
	"net/http"
)

// handleAgentRequest implements the AgentFlow state table from spec §4.6.
// key is the (possibly empty, possibly truncated) X-Agent-Key header value
// already extracted by the classifier.
func (g *Gate) handleAgentRequest(w http.ResponseWriter, httpReq *http.Request, r Request, key string) {
	ctx := context.Background()
	if httpReq != nil {
		ctx = httpReq.Context()
	}

	if key == "" {
		g.agentNoKey(ctx, w)
		return
	}

	if !validateAgentKey(g.cfg.ChallengeSecret, key) {
		g.observeAgentOutcome("invalid_key")
		g.writeForbiddenInvalidKey(w)
		return
	}

	if g.paymentCache.Get(key) {
		g.observeAgentOutcome("cache_hit")
		g.passthrough(w, httpReq)
		return
	}

	if g.cfg.VerifyURL == "" || g.cfg.APIKey == "" {
		g.observeAgentOutcome("verify_unconfigured")
		g.writeServerError(w, "Payment verification not configured.")
		return
	}

	memo := derivePaymentMemo(g.cfg.ChallengeSecret, key)

	verifyCtx, cancel := g.verifyContext(ctx)
	defer cancel()

	paid, err := g.verifyClient.Verify(verifyCtx, memo)
	if err != nil {
		g.observeAgentOutcome("verify_error")
		slog.Error("agentpayments: verify service call failed", "memo", memo, "err", err)
		g.agentUnpaid(ctx, w, key, memo)
		return
	}
	if !paid {
		g.observeAgentOutcome("verify_no_payment")
		g.agentUnpaid(ctx, w, key, memo)
		return
	}

	g.observeAgentOutcome("verify_ok")
	g.paymentCache.Set(key)
	slog.Info("agentpayments: key verified paid",
		"key_prefix", keyPrefix(key),
		"client_ip", r.ClientIP(),
		"user_agent", r.Header("User-Agent"),
		"path", r.Path(),
	)
	g.passthrough(w, httpReq)
}

// agentNoKey handles the NoKey state: issue a fresh key, memo, and the
// first-issuance 402 body.
func (g *Gate) agentNoKey(ctx context.Context, w http.ResponseWriter) {
	cfg, err := g.merchantCache.Get(ctx, g.cfg.APIKey)
	if err != nil {
		g.observeAgentOutcome("no_key_unavailable")
		slog.Error("agentpayments: merchant config unavailable", "err", err)
		g.writeServerError(w, "Payment verification unavailable.")
		return
	}

	key, err := generateAgentKey(g.cfg.ChallengeSecret)
	if err != nil {
		g.observeAgentOutcome("no_key_unavailable")
		slog.Error("agentpayments: failed to generate agent key", "err", err)
		g.writeServerError(w, "Payment verification unavailable.")
		return
	}
	memo := derivePaymentMemo(g.cfg.ChallengeSecret, key)

	g.observeAgentOutcome("no_key")
	g.writeNoKey402(w, key, memo, cfg)
}

// agentUnpaid handles both VerifyNoPayment and VerifyError: same 402 body,
// no instructions, using the already-derived key and memo.
func (g *Gate) agentUnpaid(ctx context.Context, w http.ResponseWriter, key, memo string) {
	cfg, err := g.merchantCache.Get(ctx, g.cfg.APIKey)
	if err != nil {
		slog.Error("agentpayments: merchant config unavailable", "err", err)
		g.writeServerError(w, "Payment verification unavailable.")
		return
	}
	g.writeUnpaid402(w, key, memo, cfg)
}

// keyPrefix returns the first 12 characters of an agent key for logging,
// never the full key.
func keyPrefix(key string) string {
	if len(key) <= 12 {
		return key
	}
	return key[:12]
}
