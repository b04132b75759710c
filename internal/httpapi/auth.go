package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"barberq/internal/store"
)

type authContextKey struct{}

// SessionStore resolves staff session tokens.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (store.Session, error)
}

func AuthMiddleware(sessions SessionStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, err := sessions.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) (store.Session, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return store.Session{}, false
	}
	session, ok := value.(store.Session)
	return session, ok
}

func requireTenant(w http.ResponseWriter, r *http.Request, tenantID string) bool {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return false
	}
	if tenantID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return false
	}
	if session.TenantID != tenantID {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "tenant access denied")
		return false
	}
	return true
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

// Walk-in clients enqueue, follow their ticket, and cancel without a
// session. Everything that mutates another client's place in line needs
// staff credentials.
func isPublicEndpoint(r *http.Request) bool {
	switch {
	case r.URL.Path == "/healthz" || r.URL.Path == "/metrics":
		return true
	case r.URL.Path == "/api/queue/entries":
		return r.Method == http.MethodPost
	case r.URL.Path == "/api/queue/board":
		return r.Method == http.MethodGet
	case strings.HasPrefix(r.URL.Path, "/api/queue/entries/"):
		if r.Method == http.MethodGet {
			return true
		}
		return r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/actions/cancel")
	default:
		return r.Method == http.MethodOptions
	}
}
