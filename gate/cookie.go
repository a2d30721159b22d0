package gate

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CookieName is the cookie the browser flow mints once a challenge is solved.
const CookieName = "__agp_verified"

const (
	cookieMaxAge  = 86_400_000 * time.Millisecond // 24h, expressed in ms for comparison against T
	nonceMaxAge   = 300_000 * time.Millisecond     // 5 min
	noncePrefix   = "nonce:"
	cookieMaxAgeS = 86400
)

// mintCookie returns the Set-Cookie-ready cookie for "now".
func mintCookie(secret []byte, now time.Time) *http.Cookie {
	t := now.UnixMilli()
	ts := strconv.FormatInt(t, 10)
	value := ts + "." + sign(secret, ts)
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   cookieMaxAgeS,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// validateCookie parses the raw Cookie request header, extracts
// __agp_verified, and reports whether it is a non-expired, correctly signed
// cookie under secret as of now.
func validateCookie(secret []byte, cookieHeader string, now time.Time) bool {
	value, ok := lookupCookie(cookieHeader, CookieName)
	if !ok {
		return false
	}
	return validateCookieValue(secret, value, now)
}

func validateCookieValue(secret []byte, value string, now time.Time) bool {
	ts, sig, ok := splitOnDot(value)
	if !ok {
		return false
	}
	t, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	age := now.UnixMilli() - t
	if age <= 0 || time.Duration(age)*time.Millisecond > cookieMaxAge {
		return false
	}
	expected := sign(secret, ts)
	return equalConstantTime(sig, expected)
}

// mintNonce returns a fresh "<ms>.<sig>" nonce for embedding in the
// challenge page.
func mintNonce(secret []byte, now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	return ts + "." + sign(secret, noncePrefix+ts)
}

// validateNonce reports whether n is a non-expired, correctly signed nonce.
func validateNonce(secret []byte, n string, now time.Time) bool {
	ts, sig, ok := splitOnDot(n)
	if !ok {
		return false
	}
	t, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	age := now.UnixMilli() - t
	if age < 0 || time.Duration(age)*time.Millisecond > nonceMaxAge {
		return false
	}
	expected := sign(secret, noncePrefix+ts)
	return equalConstantTime(sig, expected)
}

// splitOnDot splits s on its first '.' and requires both halves non-empty.
func splitOnDot(s string) (head, tail string, ok bool) {
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return "", "", false
	}
	head, tail = s[:idx], s[idx+1:]
	if head == "" || tail == "" {
		return "", "", false
	}
	return head, tail, true
}

// lookupCookie parses a raw Cookie header leniently (tolerating extra
// whitespace around ';' and '=') and returns the value of name, if present.
func lookupCookie(header, name string) (string, bool) {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if strings.TrimSpace(kv[0]) == name {
			return strings.TrimSpace(kv[1]), true
		}
	}
	return "", false
}
