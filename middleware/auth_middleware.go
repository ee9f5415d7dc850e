package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tokenops/capguard/models"
	"github.com/tokenops/capguard/utils"
	"go.uber.org/zap"
)

// AuthMiddleware authenticates governance and ledger callers. Callers present
// an HS256 bearer token whose sub claim carries their hex identity; that
// identity is what the governance service checks against the record's
// governance authority.
type AuthMiddleware struct {
	secret []byte
	logger *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(secret string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		logger: logger,
	}
}

// RequireAuth is a middleware that requires a valid bearer token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := chimiddleware.GetReqID(ctx)

		token := extractBearerToken(r)
		if token == "" {
			m.logger.Warn("missing bearer token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		caller, err := m.validateToken(token)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		ctx = WithCaller(ctx, caller)
		ctx = WithRequestID(ctx, requestID)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("caller", caller.String()))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validateToken verifies the HS256 signature and expiry, and parses the
// sub claim as the caller identity.
func (m *AuthMiddleware) validateToken(tokenString string) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Identity{}, fmt.Errorf("token parse failed: %w", err)
	}
	if !token.Valid {
		return models.Identity{}, fmt.Errorf("token is not valid")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return models.Identity{}, fmt.Errorf("token has no subject claim")
	}

	caller, err := models.ParseIdentity(sub)
	if err != nil {
		return models.Identity{}, fmt.Errorf("subject is not a valid identity: %w", err)
	}
	return caller, nil
}

// IssueToken mints a token for the given caller identity. Used by operational
// tooling and tests; the service itself only verifies.
func (m *AuthMiddleware) IssueToken(caller models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   caller.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(m.secret)
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
