// Package auth validates tenant bearer tokens. Tokens are HMAC-signed
// JWTs carrying the tenant id; every search and admin request must
// present one. Token issuance belongs to the external authentication
// service; the helper here exists for tests and local setups.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TenantClaims are the claims carried by a tenant token.
type TenantClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Verifier validates tokens and extracts the tenant.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier over the shared HMAC secret.
func NewVerifier(secret []byte, issuer string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token secret is required")
	}
	return &Verifier{secret: secret, issuer: issuer}, nil
}

// TenantFromToken validates a bearer token and returns the tenant id.
func (v *Verifier) TenantFromToken(tokenString string) (string, error) {
	claims := &TenantClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if v.issuer != "" {
		if iss, _ := claims.GetIssuer(); iss != v.issuer {
			return "", fmt.Errorf("unexpected issuer %q", iss)
		}
	}
	if claims.TenantID == "" {
		return "", fmt.Errorf("token carries no tenant")
	}
	return claims.TenantID, nil
}

// IssueToken signs a tenant token; test and local-setup helper.
func (v *Verifier) IssueToken(tenant string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TenantClaims{
		TenantID: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   tenant,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type contextKey struct{}

// TenantFromContext returns the tenant installed by Middleware.
func TenantFromContext(ctx context.Context) (string, bool) {
	tenant, ok := ctx.Value(contextKey{}).(string)
	return tenant, ok
}

// Middleware rejects requests without a valid tenant bearer token and
// installs the tenant id into the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		tenant, err := v.TenantFromToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
