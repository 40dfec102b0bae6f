package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/corefacility/pkg/contextkeys"
	"github.com/platinummonkey/corefacility/pkg/throttle"
	"github.com/platinummonkey/corefacility/pkg/tokens"
)

// AuthMiddleware authenticates requests with bearer credentials and
// slows down sources that keep failing.
type AuthMiddleware struct {
	engine   *tokens.Engine
	failures *throttle.Log
	window   time.Duration
	maxFails int64
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware. failures
// may be nil to disable throttling.
func NewAuthMiddleware(engine *tokens.Engine, failures *throttle.Log, window time.Duration, maxFails int64, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		engine:   engine,
		failures: failures,
		window:   window,
		maxFails: maxFails,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip, _ := contextkeys.ClientIP(ctx)

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.unauthorizedResponse(w, "invalid authorization header format")
			return
		}

		if m.failures != nil && ip != "" {
			n, err := m.failures.Count(ctx, ip, nil, m.window)
			if err == nil && n >= m.maxFails {
				m.tooManyResponse(w)
				return
			}
		}

		token, err := m.engine.Apply(ctx, parts[1])
		if err != nil {
			if m.failures != nil && ip != "" {
				_ = m.failures.Add(ctx, ip, nil)
			}
			m.unauthorizedResponse(w, "invalid or expired token")
			return
		}

		ctx = contextkeys.WithCurrentUser(ctx, token.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (m *AuthMiddleware) tooManyResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{"error": "too many failed authorizations"})
}
