package gate

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	formNonceMaxLen    = 128
	formReturnToMaxLen = 2048
	formFingerprintMax = 128
	formFingerprintMin = 10
)

// handleChallengeVerify implements the POST /__challenge/verify handler
// from spec §4.6.
func (g *Gate) handleChallengeVerify(w http.ResponseWriter, r Request) {
	if !g.rateLimiter.Permit(r.ClientIP()) {
		g.writeRateLimited(w)
		return
	}

	nonce := truncate(formValueOrEmpty(r, "nonce"), formNonceMaxLen)
	returnTo := truncate(formValueOrEmpty(r, "return_to"), formReturnToMaxLen)
	if returnTo == "" {
		returnTo = "/"
	}
	fp := truncate(formValueOrEmpty(r, "fp"), formFingerprintMax)

	if !strings.Contains(nonce, ".") || len(fp) < formFingerprintMin {
		g.writeForbiddenChallenge(w, "Challenge verification failed.")
		return
	}

	ts, _, ok := splitOnDot(nonce)
	if !ok {
		g.writeForbiddenChallenge(w, "Challenge verification failed.")
		return
	}

	now := g.clock()
	t, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		g.writeForbiddenChallenge(w, "Challenge verification failed.")
		return
	}
	age := now.UnixMilli() - t
	if age < 0 || time.Duration(age)*time.Millisecond > nonceMaxAge {
		g.writeForbiddenChallenge(w, "Challenge expired. Reload the page.")
		return
	}

	if !validateNonce(g.cfg.ChallengeSecret, nonce, now) {
		g.writeForbiddenChallenge(w, "Invalid challenge.")
		return
	}

	cookie := mintCookie(g.cfg.ChallengeSecret, now)
	http.SetCookie(w, cookie)

	safePath := "/"
	if strings.HasPrefix(returnTo, "/") {
		safePath = returnTo
	}
	w.Header().Set("Location", safePath)
	w.WriteHeader(http.StatusFound)
}

// handleBrowserChallenge serves the challenge page to a browser request
// without a valid cookie.
func (g *Gate) handleBrowserChallenge(w http.ResponseWriter, r Request) {
	nonce := mintNonce(g.cfg.ChallengeSecret, g.clock())

	body, err := g.challengeTmpl.render(nonce)
	if err != nil {
		g.writeServerError(w, "Payment verification unavailable.")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func formValueOrEmpty(r Request, name string) string {
	v, err := r.FormValue(name)
	if err != nil {
		return ""
	}
	return v
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
