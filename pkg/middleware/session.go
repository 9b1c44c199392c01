package middleware

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/tollgate/pkg/apierr"
	"github.com/platinummonkey/tollgate/pkg/auth"
	"github.com/platinummonkey/tollgate/pkg/contextkeys"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/observability"
)

// Verifier checks a bearer token and returns the session it carries
type Verifier interface {
	Verify(token string) (*auth.Session, error)
}

// SessionMiddleware requires a verified account session
type SessionMiddleware struct {
	verifier Verifier
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(verifier Verifier) *SessionMiddleware {
	return &SessionMiddleware{verifier: verifier}
}

// Handler wraps an HTTP handler with session verification
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			httputil.WriteError(w, r, apierr.Unauthorized("Missing or malformed session token"))
			return
		}

		session, err := m.verifier.Verify(token)
		if err != nil {
			message := "Invalid session token"
			if errors.Is(err, auth.ErrExpiredSession) {
				message = "Session expired"
			}
			observability.FromContext(r.Context()).WithError(err).Debug("Session rejected")
			httputil.WriteError(w, r, apierr.Unauthorized(message))
			return
		}

		ctx := contextkeys.WithSession(r.Context(), session)
		ctx = contextkeys.WithUserID(ctx, session.UserID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSession extracts the verified session from the request
func GetSession(r *http.Request) *auth.Session {
	session, ok := contextkeys.GetSession(r.Context()).(*auth.Session)
	if !ok {
		return nil
	}
	return session
}
