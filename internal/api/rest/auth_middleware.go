package rest

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/davidleathers/invoice-anomaly-backend/internal/infrastructure/config"
)

// AuthMiddleware validates requests using either a bearer JWT or a static
// API key. With neither a JWT secret nor API keys configured, authentication
// is disabled; that is the development default.
type AuthMiddleware struct {
	secret      []byte
	tokenExpiry time.Duration
	apiKeys     map[string]struct{}
}

// NewAuthMiddleware builds the middleware from security configuration
func NewAuthMiddleware(cfg *config.SecurityConfig) *AuthMiddleware {
	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		if key != "" {
			keys[key] = struct{}{}
		}
	}

	return &AuthMiddleware{
		secret:      []byte(cfg.JWTSecret),
		tokenExpiry: cfg.TokenExpiry,
		apiKeys:     keys,
	}
}

// Enabled reports whether any credential scheme is configured
func (a *AuthMiddleware) Enabled() bool {
	return len(a.secret) > 0 || len(a.apiKeys) > 0
}

func isPublicEndpoint(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return path == "/api/v1/auth/token"
}

// Middleware returns the authentication middleware function
func (a *AuthMiddleware) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() || isPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				if a.checkAPIKey(apiKey) {
					ctx := context.WithValue(r.Context(), contextKeySubject, "api-key")
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				writeUnauthorized(w, "Invalid API key")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "Authorization required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeUnauthorized(w, "Invalid authorization format")
				return
			}

			subject, err := a.validateToken(parts[1])
			if err != nil {
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), contextKeySubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *AuthMiddleware) checkAPIKey(candidate string) bool {
	// Constant time comparison against each configured key
	for key := range a.apiKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1 {
			return true
		}
	}
	return false
}

func (a *AuthMiddleware) validateToken(tokenString string) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("jwt authentication not configured")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token missing subject")
	}

	return subject, nil
}

// IssueToken creates a signed JWT for the given subject, used by the token
// exchange endpoint.
func (a *AuthMiddleware) IssueToken(subject string) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("jwt authentication not configured")
	}

	expiry := a.tokenExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		Issuer:    "invoice-anomaly-backend",
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
