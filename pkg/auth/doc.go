// Package auth resolves API credentials and account sessions.
//
// API keys have the form tg_<base64url(32 random bytes)>. Only the SHA-256
// digest is stored; a presented key is hashed and matched exactly:
//
//	resolver := auth.NewResolver(store, auth.ResolverConfig{SandboxEnabled: true}, logger, metrics)
//	identity, ok := resolver.Resolve(ctx, r.Header.Get("Authorization"))
//
// The shared demo key SandboxKey resolves to SandboxIdentity without touching
// the store.
//
// Account endpoints use HS256 session tokens checked by SessionVerifier; the
// token subject is the user id.
package auth
