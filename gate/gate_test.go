package gate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVerifyService stands in for the external verify service: it answers
// /merchants/me unconditionally and /verify according to the memos it has
// been told to mark paid, and counts calls per memo. Scenario C uses its own
// server with a mutex-guarded counter instead.
type fakeVerifyService struct {
	wallet      string
	network     string
	paidMemos   map[string]bool
	verifyCalls map[string]int
}

func newFakeVerifyService() *httptest.Server {
	f := &fakeVerifyService{
		wallet:      "4Nd1mYWKnVnR2iR9GFT9wtaq8cPmJ3gcBMTvAUR6zpfp",
		network:     "devnet",
		paidMemos:   map[string]bool{},
		verifyCalls: map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/merchants/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"walletAddress": f.wallet,
			"network":       f.network,
		})
	})
	mux.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
		memo := r.URL.Query().Get("memo")
		f.verifyCalls[memo]++
		_ = json.NewEncoder(w).Encode(map[string]bool{"paid": f.paidMemos[memo]})
	})
	return httptest.NewServer(mux)
}

func buildGate(t *testing.T, verifyURL string) *Gate {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("upstream ok"))
	})
	g, err := New(Config{
		ChallengeSecret:   testSecret,
		VerifyURL:         verifyURL + "/verify",
		APIKey:            "merchant-key",
		MinPayment:        "0.01",
		HTTPClientTimeout: 2 * time.Second,
		Next:              next,
	})
	require.NoError(t, err)
	return g
}

// Scenario A — first agent request.
func TestScenarioA_FirstAgentRequest(t *testing.T) {
	verify := newFakeVerifyService()
	defer verify.Close()
	g := buildGate(t, verify.URL)

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var body paymentRequiredBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "payment_required", body.Error)
	assert.Regexp(t, `^ag_[0-9a-f]{16}_[0-9a-f]{16}$`, body.YourKey)
	assert.Regexp(t, `^gm_[0-9a-f]{16}$`, body.Payment.Memo)
	assert.Equal(t, "4Nd1mYWKnVnR2iR9GFT9wtaq8cPmJ3gcBMTvAUR6zpfp", body.Payment.WalletAddress)
	assert.Equal(t, "0.01", body.Payment.Amount)
	assert.NotEmpty(t, body.Payment.Instructions)
}

// Scenario B — forged key.
func TestScenarioB_ForgedKey(t *testing.T) {
	verify := newFakeVerifyService()
	defer verify.Close()
	g := buildGate(t, verify.URL)

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	req.Header.Set("X-Agent-Key", "ag_0000000000000000_0000000000000000")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "forbidden", body.Error)
	assert.Equal(t, "Invalid API key. Keys must be issued by this server.", body.Message)
}

// Scenario C — paid agent, cached: a second request with the same key must
// not trigger a second outbound verify call.
func TestScenarioC_PaidAgentCached(t *testing.T) {
	key, err := generateAgentKey(testSecret)
	require.NoError(t, err)
	memo := derivePaymentMemo(testSecret, key)

	var mu sync.Mutex
	verifyCalls := 0
	paidVerify := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/merchants/me":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"walletAddress": "4Nd1mYWKnVnR2iR9GFT9wtaq8cPmJ3gcBMTvAUR6zpfp",
				"network":       "devnet",
			})
		case "/verify":
			mu.Lock()
			verifyCalls++
			mu.Unlock()
			got := r.URL.Query().Get("memo")
			_ = json.NewEncoder(w).Encode(map[string]bool{"paid": got == memo})
		}
	}))
	defer paidVerify.Close()

	g := buildGate(t, paidVerify.URL)

	req1 := httptest.NewRequest(http.MethodGet, "/data", nil)
	req1.Header.Set("X-Agent-Key", key)
	w1 := httptest.NewRecorder()
	g.ServeHTTP(w1, req1)
	assert.Equal(t, http.StatusOK, w1.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/data", nil)
	req2.Header.Set("X-Agent-Key", key)
	w2 := httptest.NewRecorder()
	g.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, verifyCalls, "verify service should be called exactly once across both requests")
}

// Scenario D — browser cold: no cookie, Sec-Fetch-Mode present.
func TestScenarioD_BrowserCold(t *testing.T) {
	verify := newFakeVerifyService()
	defer verify.Close()
	g := buildGate(t, verify.URL)

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, "/__challenge/verify")
	assert.Contains(t, body, `role="status"`)
	assert.Contains(t, body, "<noscript>")
	assert.Regexp(t, `\d+\.[0-9a-f]{64}`, body)
}

// Scenario E — browser challenge solved.
func TestScenarioE_ChallengeSolved(t *testing.T) {
	verify := newFakeVerifyService()
	defer verify.Close()
	g := buildGate(t, verify.URL)

	nonce := mintNonce(testSecret, time.Now())
	form := url.Values{
		"nonce":     {nonce},
		"return_to": {"/dest"},
		"fp":        {"0123456789abcdef"},
	}
	req := httptest.NewRequest(http.MethodPost, "/__challenge/verify", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dest", w.Header().Get("Location"))

	setCookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, CookieName+"=")
	assert.Contains(t, setCookie, "HttpOnly")
	assert.Contains(t, setCookie, "Secure")
	assert.Contains(t, setCookie, "SameSite=Lax")
	assert.Contains(t, setCookie, "Max-Age=86400")
	assert.Regexp(t, CookieName+`=\d+\.[0-9a-f]{64}`, setCookie)
}

// Scenario F — open-redirect attempt.
func TestScenarioF_OpenRedirectRewritten(t *testing.T) {
	verify := newFakeVerifyService()
	defer verify.Close()
	g := buildGate(t, verify.URL)

	nonce := mintNonce(testSecret, time.Now())
	form := url.Values{
		"nonce":     {nonce},
		"return_to": {"https://evil.example"},
		"fp":        {"0123456789abcdef"},
	}
	req := httptest.NewRequest(http.MethodPost, "/__challenge/verify", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

// Scenario G — rate limit: the 21st POST within the window is rejected.
func TestScenarioG_RateLimit(t *testing.T) {
	verify := newFakeVerifyService()
	defer verify.Close()
	g := buildGate(t, verify.URL)

	postOnce := func() int {
		nonce := mintNonce(testSecret, time.Now())
		form := url.Values{"nonce": {nonce}, "fp": {"0123456789abcdef"}}
		req := httptest.NewRequest(http.MethodPost, "/__challenge/verify", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "203.0.113.1:5555"
		w := httptest.NewRecorder()
		g.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < rateLimitPermits; i++ {
		code := postOnce()
		assert.Equal(t, http.StatusFound, code, "request %d should succeed", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, postOnce())
}

func TestDefaultSecretRefusesToStart(t *testing.T) {
	_, err := New(Config{
		ChallengeSecret: []byte(defaultSecretSentinel),
		Next:            http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	})
	assert.Error(t, err)
}

func TestDefaultSecretAllowedInDebug(t *testing.T) {
	g, err := New(Config{
		ChallengeSecret: []byte(defaultSecretSentinel),
		Debug:           true,
		Next:            http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	})
	require.NoError(t, err)
	assert.NotNil(t, g)
}
