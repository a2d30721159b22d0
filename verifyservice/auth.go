package verifyservice

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidBearer is returned when a bearer token fails signature or
// claim validation.
var ErrInvalidBearer = errors.New("verifyservice: invalid bearer token")

// MerchantClaims is the JWT payload issued to a merchant on signup.
// Adapted from the teacher's batch-RPC-token Claims (x402/token.go): same
// HMAC-signed RegisteredClaims shape, carrying a merchant ID instead of a
// request-credit token ID.
type MerchantClaims struct {
	jwt.RegisteredClaims
	MerchantID string `json:"mid"`
}

// KeyIssuer mints and validates the bearer keys merchants use against
// this service.
type KeyIssuer struct {
	secret []byte
}

// NewKeyIssuer constructs a KeyIssuer around secret.
func NewKeyIssuer(secret []byte) *KeyIssuer {
	return &KeyIssuer{secret: secret}
}

// IssueKey mints a long-lived bearer JWT for merchantID.
func (k *KeyIssuer) IssueKey(merchantID uuid.UUID) (string, error) {
	now := time.Now()
	claims := &MerchantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  merchantID.String(),
			IssuedAt: jwt.NewNumericDate(now),
		},
		MerchantID: merchantID.String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(k.secret)
}

// ValidateKey parses and verifies a bearer token, returning its claims.
func (k *KeyIssuer) ValidateKey(raw string) (*MerchantClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &MerchantClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return k.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBearer, err)
	}
	claims, ok := token.Claims.(*MerchantClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidBearer
	}
	return claims, nil
}
