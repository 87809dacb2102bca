package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/bridgehq/bridge-accounts/pkg/account"
	"github.com/bridgehq/bridge-accounts/pkg/httputil"
)

type contextKey string

const (
	userContextKey    contextKey = "authenticated_user"
	sessionContextKey contextKey = "session_id"
)

// userFromContext returns the authenticated user set by requireAuth
func userFromContext(ctx context.Context) *account.User {
	user, _ := ctx.Value(userContextKey).(*account.User)
	return user
}

// sessionFromContext returns the session id set by requireAuth. Empty
// when the request authenticated with a bearer token only.
func sessionFromContext(ctx context.Context) string {
	sessionID, _ := ctx.Value(sessionContextKey).(string)
	return sessionID
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// requireAuth resolves the caller from the session cookie or a bearer
// token and puts the loaded user on the request context. Requests with
// neither, or whose session no longer maps to a live account, get a 401
// and an expired cookie.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := s.sessionIDFromRequest(r)

		user, err := s.service.AuthenticateRequest(r.Context(), sessionID, bearerToken(r))
		if err != nil {
			if sessionID != "" {
				s.clearSessionCookie(w)
			}
			writeServiceError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, sessionContextKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin rejects non-admin callers. Must run after requireAuth.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		if user == nil {
			httputil.WriteUnauthorized(w, account.ErrUnauthorized.Error())
			return
		}
		if !user.IsAdmin() {
			httputil.WriteForbidden(w, account.ErrForbidden.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
