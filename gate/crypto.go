package gate

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// defaultSecretSentinel is the placeholder value operators sometimes leave
// in place by mistake. A gate configured with this secret refuses to serve
// unless Debug is explicitly enabled.
const defaultSecretSentinel = "default-secret-change-me"

// sign returns the lowercase hex-encoded HMAC-SHA256 of data under secret.
// Callers slice the result when a spec shape calls for a prefix; sign never
// truncates.
func sign(secret []byte, data string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// equalConstantTime reports whether a and b are equal without letting the
// comparison's running time leak how many leading bytes matched. It fails
// closed on length mismatch, but still performs a full-width comparison
// against a zero-padded buffer rather than returning on the length check
// alone, so a timing oracle cannot distinguish "wrong length" from "right
// length, wrong bytes" by measurement alone.
func equalConstantTime(a, b string) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	pa := make([]byte, n)
	pb := make([]byte, n)
	copy(pa, a)
	copy(pb, b)
	lenOK := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	bytesOK := subtle.ConstantTimeCompare(pa, pb)
	return lenOK&bytesOK == 1
}

// randomHex returns n/2 bytes of crypto/rand randomness, hex-encoded to a
// string of length n. n must be even.
func randomHex(n int) (string, error) {
	buf := make([]byte, n/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
