// Package middleware provides HTTP middleware for the portal.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/R3E-Network/vault_portal/internal/httputil"
	"github.com/R3E-Network/vault_portal/internal/logging"
)

type contextKey string

const sessionAddressKey contextKey = "session_address"

// TokenParser validates a session token and returns the wallet address it carries.
type TokenParser interface {
	ParseToken(token string) (string, error)
}

// WithSessionAddress stores the authenticated wallet address in ctx.
func WithSessionAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, sessionAddressKey, addr)
}

// SessionAddress returns the authenticated wallet address, or "" for a disconnected session.
func SessionAddress(ctx context.Context) string {
	if v, ok := ctx.Value(sessionAddressKey).(string); ok {
		return v
	}
	return ""
}

// SessionMiddleware attaches the wallet address from a bearer token. A request
// without a token proceeds as a disconnected session; a bad token is rejected.
type SessionMiddleware struct {
	tokens TokenParser
	logger *logging.Logger
}

// NewSessionMiddleware creates a session middleware.
func NewSessionMiddleware(tokens TokenParser, logger *logging.Logger) *SessionMiddleware {
	return &SessionMiddleware{tokens: tokens, logger: logger}
}

// Handler returns the middleware handler.
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		addr, err := m.tokens.ParseToken(token)
		if err != nil {
			m.logger.LogSecurityEvent(r.Context(), "invalid_session_token", map[string]interface{}{
				"path":   r.URL.Path,
				"method": r.Method,
			})
			httputil.WriteServiceError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSessionAddress(r.Context(), addr)))
	})
}

// bearerToken reads the Authorization header, falling back to the access_token query
// parameter for websocket upgrades where browsers cannot set headers.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return header
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
