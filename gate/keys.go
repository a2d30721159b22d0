package gate

import "strings"

const (
	agentKeyPrefix  = "ag_"
	memoPrefix      = "gm_"
	agentKeyMaxLen  = 64
	agentKeyRandLen = 16 // hex chars of randomness
	agentKeySigLen  = 16 // hex chars of the HMAC prefix carried in the key
	memoSigLen      = 16 // hex chars of the HMAC prefix carried in the memo
)

// generateAgentKey draws 16 hex chars of cryptographically strong
// randomness and returns "ag_<random>_<sig>" where sig is the first 16 hex
// chars of HMAC-SHA256(secret, random).
func generateAgentKey(secret []byte) (string, error) {
	random, err := randomHex(agentKeyRandLen)
	if err != nil {
		return "", err
	}
	sig := sign(secret, random)[:agentKeySigLen]
	return agentKeyPrefix + random + "_" + sig, nil
}

// validateAgentKey reports whether k is a well-formed agent key under the
// current secret: correct prefix, length, shape, and an HMAC signature that
// matches the random portion.
func validateAgentKey(secret []byte, k string) bool {
	if k == "" || len(k) > agentKeyMaxLen {
		return false
	}
	if !strings.HasPrefix(k, agentKeyPrefix) {
		return false
	}
	rest := k[len(agentKeyPrefix):]
	idx := strings.IndexByte(rest, '_')
	if idx < 0 {
		return false
	}
	random, sig := rest[:idx], rest[idx+1:]
	if random == "" || sig == "" {
		return false
	}
	expected := sign(secret, random)[:agentKeySigLen]
	return equalConstantTime(sig, expected)
}

// derivePaymentMemo deterministically derives the on-chain memo a client
// must attach to pay for k: "gm_" + first 16 hex chars of
// HMAC-SHA256(secret, k). Depends only on (k, secret).
func derivePaymentMemo(secret []byte, agentKey string) string {
	return memoPrefix + sign(secret, agentKey)[:memoSigLen]
}
