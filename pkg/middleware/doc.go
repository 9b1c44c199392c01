// Package middleware provides HTTP middleware for the account surface.
//
// SessionMiddleware verifies the HS256 session token in the Authorization
// header and stores the claims and user id on the request context:
//
//	sessions := middleware.NewSessionMiddleware(auth.NewSessionVerifier(secret, issuer))
//	account := router.PathPrefix("/api/account").Subrouter()
//	account.Use(sessions.Handler)
//
// Handlers read the caller with GetSession. Tool calls do not pass through
// this middleware; the gateway resolves API keys itself.
package middleware
