package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Context key for operator data
type contextKey string

const operatorContextKey contextKey = "operator"

// DebugClaims are the claims carried by a debug endpoint token.
type DebugClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

const debugScope = "ivr:debug"

// SignDebugToken issues an HS256 token for the debug endpoints.
func SignDebugToken(secret, subject string, ttl time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, errors.New("jwt secret is empty")
	}
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := DebugClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Scope: debugScope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// withAuth requires a valid debug JWT when a secret is configured.
func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	if r.cfg.JWTSecret == "" {
		return next
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(w http.ResponseWriter, req *http.Request) {
		// Get token from Authorization header
		authHeader := req.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error": "missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		// Expect "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			http.Error(w, `{"error": "invalid authorization format"}`, http.StatusUnauthorized)
			return
		}

		claims := &DebugClaims{}
		token, err := parser.ParseWithClaims(parts[1], claims, func(*jwt.Token) (interface{}, error) {
			return []byte(r.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
			return
		}
		if claims.Scope != debugScope {
			http.Error(w, `{"error": "insufficient scope"}`, http.StatusForbidden)
			return
		}

		ctx := context.WithValue(req.Context(), operatorContextKey, claims.Subject)
		next.ServeHTTP(w, req.WithContext(ctx))
	}
}

// getOperator returns the authenticated operator, if any.
func getOperator(ctx context.Context) string {
	op, _ := ctx.Value(operatorContextKey).(string)
	return op
}
