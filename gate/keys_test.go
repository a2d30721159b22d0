package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Invariant 1: a key generated under S validates under S and nowhere else.
func TestGenerateAgentKey_ValidatesOnlyUnderOwnSecret(t *testing.T) {
	secret := []byte("my-secret")
	key, err := generateAgentKey(secret)
	require.NoError(t, err)

	assert.True(t, validateAgentKey(secret, key))
	assert.False(t, validateAgentKey([]byte("different-secret"), key))
}

func TestGenerateAgentKey_Shape(t *testing.T) {
	secret := []byte("my-secret")
	key, err := generateAgentKey(secret)
	require.NoError(t, err)

	assert.Regexp(t, `^ag_[0-9a-f]{16}_[0-9a-f]{16}$`, key)
}

// Invariant 3 (agent key half): a single mutated character must fail.
func TestValidateAgentKey_RejectsMutation(t *testing.T) {
	secret := []byte("my-secret")
	key, err := generateAgentKey(secret)
	require.NoError(t, err)

	mutated := []byte(key)
	mutated[len(mutated)-1]++
	assert.False(t, validateAgentKey(secret, string(mutated)))
}

func TestValidateAgentKey_RejectsMalformed(t *testing.T) {
	secret := []byte("my-secret")
	cases := []string{
		"",
		"not-an-agent-key",
		"ag_missingsig",
		"ag_",
		"ag__",
	}
	for _, c := range cases {
		assert.False(t, validateAgentKey(secret, c), "expected %q to be rejected", c)
	}
}

func TestValidateAgentKey_RejectsOversizedKey(t *testing.T) {
	secret := []byte("my-secret")
	oversized := "ag_" + string(make([]byte, agentKeyMaxLen)) + "_sig"
	assert.False(t, validateAgentKey(secret, oversized))
}

// Invariant 2: memo is deterministic, depends only on (k, secret), starts
// with "gm_" and has length 19.
func TestDerivePaymentMemo(t *testing.T) {
	secret := []byte("my-secret")
	key, err := generateAgentKey(secret)
	require.NoError(t, err)

	memo1 := derivePaymentMemo(secret, key)
	memo2 := derivePaymentMemo(secret, key)
	assert.Equal(t, memo1, memo2)
	assert.True(t, len(memo1) == 19)
	assert.Regexp(t, `^gm_[0-9a-f]{16}$`, memo1)

	otherKey, err := generateAgentKey(secret)
	require.NoError(t, err)
	assert.NotEqual(t, memo1, derivePaymentMemo(secret, otherKey))
}

func TestKeyPrefix(t *testing.T) {
	assert.Equal(t, "short", keyPrefix("short"))
	assert.Equal(t, "ag_012345678", keyPrefix("ag_0123456789_deadbeefdeadbeef"))
}
