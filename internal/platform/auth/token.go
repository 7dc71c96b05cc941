package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenRequest describes a development token minted by `token issue`.
type TokenRequest struct {
	Subject  string
	Role     Role
	TenantID string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// IssueToken signs an HS256 token that JWTMiddleware accepts with the same key.
func IssueToken(req TokenRequest, key []byte, now time.Time) (string, error) {
	if len(key) == 0 {
		return "", errors.New("signing key is required")
	}
	if req.Subject == "" {
		return "", errors.New("subject is required")
	}
	if _, ok := ParseRole(string(req.Role)); !ok {
		return "", fmt.Errorf("unknown role %q", req.Role)
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Subject,
			Issuer:    req.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: req.TenantID,
		Roles:    []string{string(req.Role)},
	}
	if req.Audience != "" {
		claims.Audience = jwt.ClaimStrings{req.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
