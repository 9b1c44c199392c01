// Package api provides the HTTP API server for the Tollgate tool gateway.
//
// # Routes
//
// Public:
//
//	GET  /api/tools            tool catalogue with per-call price
//	POST /api/tools/{toolID}   metered tool call (API key or sandbox key)
//
// Session (HS256 JWT, see pkg/middleware):
//
//	GET    /api/account/profile
//	PUT    /api/account/limits
//	POST   /api/account/keys
//	GET    /api/account/keys
//	DELETE /api/account/keys/{id}
//	GET    /api/account/favorites
//	POST   /api/account/favorites
//	DELETE /api/account/favorites/{toolID}
//	POST   /api/billing/checkout
//
// Payment provider:
//
//	POST /api/billing/webhook  Stripe-Signature verified
//
// Tool calls go through gateway.Gate. Unknown tool ids are answered with
// NOT_FOUND before any credential is resolved.
//
// # Usage
//
//	server := api.NewServer(api.Options{Registry: registry, Gate: gate, ...})
//	http.ListenAndServe(":8080", server.Handler())
//
// Handler adds request ids, panic recovery, access logs, CORS, body limits,
// and an otelhttp span around the router.
package api
