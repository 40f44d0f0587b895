package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
)

// CallerClaims are the JWT claims of a caller token.
type CallerClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"` // always "caller"
}

// Identity returns the caller identity carried in the subject claim.
func (c *CallerClaims) Identity() model.Identity {
	return model.Identity(c.Subject)
}

// CallerTokenIssuer issues and verifies caller tokens with a shared secret.
type CallerTokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewCallerTokenIssuer creates a CallerTokenIssuer.
//
//	secret: HMAC key; must not be empty.
//	issuer: the "iss" claim value.
//	ttl: token lifetime (default: 12 hours).
func NewCallerTokenIssuer(secret, issuer string, ttl time.Duration) (*CallerTokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("caller token secret is empty")
	}
	if ttl == 0 {
		ttl = 12 * time.Hour
	}
	return &CallerTokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue creates a signed token for id.
func (t *CallerTokenIssuer) Issue(id model.Identity) (string, error) {
	if id == "" {
		return "", errors.New("caller identity is empty")
	}
	now := time.Now().UTC()
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   string(id),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		Type: "caller",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign caller token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a caller token, returning its claims.
func (t *CallerTokenIssuer) Verify(tokenStr string) (*CallerClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&CallerClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify caller token: %w", err)
	}
	claims, ok := token.Claims.(*CallerClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid caller token claims")
	}
	if claims.Type != "caller" {
		return nil, errors.New("not a caller token")
	}
	if claims.Subject == "" {
		return nil, errors.New("caller token has no subject")
	}
	return claims, nil
}
