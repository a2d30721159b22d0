package gate

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Config groups everything a Gate needs at construction. Immutable once
// New returns.
type Config struct {
	// ChallengeSecret is the HMAC key backing every signed artifact the
	// gate issues: agent keys, memos, cookies, and nonces.
	ChallengeSecret []byte
	// VerifyURL is the verify service's base URL or full /verify URL.
	VerifyURL string
	// APIKey is this merchant's bearer credential for the verify service.
	APIKey string
	// PublicPathAllowlist is additional exact-match bypass paths beyond
	// /robots.txt and /.well-known/*.
	PublicPathAllowlist []string
	// MinPayment is the decimal USDC amount required per key, as a string
	// (so it round-trips into JSON exactly as configured, e.g. "0.01").
	MinPayment string
	// HTTPClientTimeout bounds the outbound call to the verify service.
	HTTPClientTimeout time.Duration
	// Debug, when true, downgrades a default-secret misconfiguration from
	// a hard refusal to a once-per-process warning.
	Debug bool
	// Next is the protected application the gate forwards passthrough
	// requests to.
	Next http.Handler
	// Metrics, if non-nil, receives counts of classifier decisions and
	// AgentFlow outcomes. Optional; a nil Metrics is a no-op.
	Metrics *Metrics

	// Clock lets tests fix "now"; defaults to time.Now.
	Clock func() time.Time
}

// Gate is the request-handling core described in spec.md. Construct one
// per process with New and reuse it across all requests; it owns the
// long-lived caches and rate limiter described in §5.
type Gate struct {
	cfg Config

	paymentCache  *PaymentCache
	rateLimiter   *RateLimiter
	merchantCache *MerchantConfigCache
	verifyClient  *VerifyServiceClient
	challengeTmpl *challengeTemplate

	warnOnce sync.Once
}

// New constructs a Gate from cfg. It refuses to build a Gate configured
// with the sentinel default secret unless cfg.Debug is set, in which case
// it emits exactly one warning and proceeds.
func New(cfg Config) (*Gate, error) {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MinPayment == "" {
		cfg.MinPayment = "0.01"
	}
	if cfg.HTTPClientTimeout <= 0 {
		cfg.HTTPClientTimeout = 5 * time.Second
	}
	if cfg.Next == nil {
		return nil, fmt.Errorf("gate: Config.Next must not be nil")
	}

	isDefaultSecret := string(cfg.ChallengeSecret) == defaultSecretSentinel
	if isDefaultSecret && !cfg.Debug {
		return nil, fmt.Errorf("gate: refusing to start with the default challenge secret; " +
			"set CHALLENGE_SECRET or enable AGENTPAYMENTS_DEBUG to run insecurely")
	}

	tmpl, err := parseChallengeTemplate()
	if err != nil {
		return nil, fmt.Errorf("gate: parsing challenge template: %w", err)
	}

	g := &Gate{
		cfg:           cfg,
		paymentCache:  NewPaymentCache(),
		rateLimiter:   NewRateLimiter(),
		challengeTmpl: tmpl,
	}
	g.verifyClient = NewVerifyServiceClient(cfg.VerifyURL, cfg.APIKey, cfg.HTTPClientTimeout)
	g.merchantCache = NewMerchantConfigCache(g.verifyClient)

	if isDefaultSecret {
		g.warnOnce.Do(func() {
			slog.Warn("agentpayments: running with the default challenge secret",
				"component", "agentpayments")
		})
	}

	return g, nil
}

func (g *Gate) clock() time.Time { return g.cfg.Clock() }

// ServeHTTP implements http.Handler, the bridge contract for any host
// that already speaks net/http. Other host adapters wrap their native
// request type to satisfy Request and call Dispatch directly.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := &httpRequest{r: r}
	g.Dispatch(w, req, r)
}

// Dispatch runs the classifier and routes to the matching flow. httpReq is
// nil-able: it is used only by the net/http passthrough path, which needs
// the original *http.Request to hand to g.cfg.Next.
func (g *Gate) Dispatch(w http.ResponseWriter, r Request, httpReq *http.Request) {
	decision := g.classify(r)
	g.observeDecision(decision.Kind)

	switch decision.Kind {
	case DecisionPublicPath:
		g.passthrough(w, httpReq)

	case DecisionChallengeVerify:
		g.handleChallengeVerify(w, r)

	case DecisionAgentRequest:
		g.handleAgentRequest(w, httpReq, r, decision.AgentKey)

	case DecisionBrowserWithCookie:
		g.passthrough(w, httpReq)

	case DecisionBrowserNoCookie:
		g.handleBrowserChallenge(w, r)
	}
}

func (g *Gate) passthrough(w http.ResponseWriter, httpReq *http.Request) {
	if httpReq == nil {
		// A non-net/http adapter is responsible for forwarding passthrough
		// decisions to its own host application; nothing further to do
		// here.
		return
	}
	g.cfg.Next.ServeHTTP(w, httpReq)
}

// verifyContext bounds the outbound verify-service call with the
// configured timeout, derived from the inbound request's context so a
// client disconnect still propagates.
func (g *Gate) verifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, g.cfg.HTTPClientTimeout)
}

// httpRequest adapts *http.Request to the Request interface.
type httpRequest struct {
	r        *http.Request
	formOnce sync.Once
	formErr  error
}

func (h *httpRequest) Method() string { return h.r.Method }
func (h *httpRequest) Path() string   { return h.r.URL.Path }
func (h *httpRequest) Header(name string) string {
	return h.r.Header.Get(name)
}

func (h *httpRequest) ClientIP() string {
	host, _, err := net.SplitHostPort(h.r.RemoteAddr)
	if err != nil {
		return h.r.RemoteAddr
	}
	return host
}

func (h *httpRequest) FormValue(name string) (string, error) {
	h.formOnce.Do(func() {
		h.formErr = h.r.ParseForm()
	})
	if h.formErr != nil {
		return "", h.formErr
	}
	return h.r.PostForm.Get(name), nil
}
