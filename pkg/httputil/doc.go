// Package httputil provides HTTP utilities for the uniform response envelope,
// JSON request decoding, and common middleware.
//
// Every response, success or failure, uses the same envelope:
//
//	{"success": true, "data": {...}, "meta": {"timestamp": "...", "requestId": "..."}}
//	{"success": false, "error": {"code": "UNAUTHORIZED", "message": "..."}, "meta": {...}}
//
// Handlers return typed errors from pkg/apierr and let WriteError pick the
// status code:
//
//	if err := httputil.ParseJSON(r, &req); err != nil {
//		httputil.WriteError(w, r, err)
//		return
//	}
//	httputil.WriteSuccess(w, r, result)
package httputil
