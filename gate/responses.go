package gate

import (
	"encoding/json"
	"net/http"
)

// paymentInfo is the "payment" object embedded in every 402 body.
type paymentInfo struct {
	Chain         string `json:"chain"`
	Network       string `json:"network"`
	Token         string `json:"token"`
	Amount        string `json:"amount"`
	WalletAddress string `json:"wallet_address"`
	Memo          string `json:"memo"`
	Instructions  string `json:"instructions,omitempty"`
}

// paymentRequiredBody is the bit-exact 402 JSON schema from spec §6.
type paymentRequiredBody struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	YourKey string      `json:"your_key"`
	Payment paymentInfo `json:"payment"`
}

const payment402Message = "Access requires a paid API key. A key has been generated for you below. " +
	"Send a USDC payment with the provided memo to activate it, then retry your request with the X-Agent-Key header."

// networkLabel renders the merchant's network as the human-readable label
// used in the instructions string; spec §9 Open Question 4 says to accept
// either historical phrasing on input, but canonically emit this form.
func networkLabel(n Network) string {
	if n == NetworkMainnetBeta {
		return "mainnet"
	}
	return "devnet"
}

func (g *Gate) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeNoKey402 is the first-issuance 402: includes the instructions field.
func (g *Gate) writeNoKey402(w http.ResponseWriter, key, memo string, cfg *MerchantConfig) {
	instructions := "Send " + g.cfg.MinPayment + " USDC on Solana " + networkLabel(cfg.Network) +
		" to " + cfg.WalletAddress + " with memo \"" + memo + "\". " +
		"Then include the header X-Agent-Key: " + key + " on all subsequent requests."

	g.writeJSON(w, http.StatusPaymentRequired, paymentRequiredBody{
		Error:   "payment_required",
		Message: payment402Message,
		YourKey: key,
		Payment: paymentInfo{
			Chain:         "solana",
			Network:       string(cfg.Network),
			Token:         "USDC",
			Amount:        g.cfg.MinPayment,
			WalletAddress: cfg.WalletAddress,
			Memo:          memo,
			Instructions:  instructions,
		},
	})
}

// writeUnpaid402 is the unpaid-retry 402: same schema, no instructions.
func (g *Gate) writeUnpaid402(w http.ResponseWriter, key, memo string, cfg *MerchantConfig) {
	g.writeJSON(w, http.StatusPaymentRequired, paymentRequiredBody{
		Error:   "payment_required",
		Message: payment402Message,
		YourKey: key,
		Payment: paymentInfo{
			Chain:         "solana",
			Network:       string(cfg.Network),
			Token:         "USDC",
			Amount:        g.cfg.MinPayment,
			WalletAddress: cfg.WalletAddress,
			Memo:          memo,
		},
	})
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (g *Gate) writeForbiddenInvalidKey(w http.ResponseWriter) {
	g.writeJSON(w, http.StatusForbidden, errorBody{
		Error:   "forbidden",
		Message: "Invalid API key. Keys must be issued by this server.",
		Details: "GET /.well-known/agent-access.json for access instructions.",
	})
}

func (g *Gate) writeForbiddenChallenge(w http.ResponseWriter, message string) {
	g.writeJSON(w, http.StatusForbidden, errorBody{
		Error:   "forbidden",
		Message: message,
	})
}

func (g *Gate) writeRateLimited(w http.ResponseWriter) {
	g.writeJSON(w, http.StatusTooManyRequests, errorBody{
		Error:   "rate_limited",
		Message: "Too many verification attempts. Please wait and try again.",
	})
}

func (g *Gate) writeServerError(w http.ResponseWriter, message string) {
	g.writeJSON(w, http.StatusInternalServerError, errorBody{
		Error:   "server_error",
		Message: message,
	})
}
