package httputil

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/platinummonkey/tollgate/pkg/apierr"
	"github.com/platinummonkey/tollgate/pkg/contextkeys"
	"github.com/platinummonkey/tollgate/pkg/observability"
)

// Envelope is the response shape shared by every endpoint
type Envelope struct {
	Success bool          `json:"success"`
	Data    interface{}   `json:"data,omitempty"`
	Error   *apierr.Error `json:"error,omitempty"`
	Meta    Meta          `json:"meta"`
}

// Meta carries response metadata
type Meta struct {
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"requestId,omitempty"`
	RateLimit *RateLimitMeta `json:"rateLimit,omitempty"`
}

// RateLimitMeta reports the caller's quota position after a tool call.
// Remaining is the daily quota left for demo and free callers and the
// post-deduction balance in cents for paid callers.
type RateLimitMeta struct {
	Remaining         int64   `json:"remaining"`
	Balance           int64   `json:"balance"`
	CostThisCall      float64 `json:"costThisCall"`
	RequestsPerSecond int     `json:"requestsPerSecond"`
}

var now = time.Now

func newMeta(r *http.Request) Meta {
	meta := Meta{Timestamp: now().UTC()}
	if r != nil {
		meta.RequestID = contextkeys.GetRequestID(r.Context())
	}
	return meta
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteData writes a successful envelope
func WriteData(w http.ResponseWriter, r *http.Request, status int, data interface{}) error {
	return WriteJSON(w, status, Envelope{Success: true, Data: data, Meta: newMeta(r)})
}

// WriteSuccess writes a 200 envelope
func WriteSuccess(w http.ResponseWriter, r *http.Request, data interface{}) error {
	return WriteData(w, r, http.StatusOK, data)
}

// WriteCreated writes a 201 envelope
func WriteCreated(w http.ResponseWriter, r *http.Request, data interface{}) error {
	return WriteData(w, r, http.StatusCreated, data)
}

// WriteMetered writes a 200 envelope carrying rate limit metadata
func WriteMetered(w http.ResponseWriter, r *http.Request, data interface{}, rl RateLimitMeta) error {
	meta := newMeta(r)
	meta.RateLimit = &rl
	return WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Meta: meta})
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError renders err as an error envelope. Errors that are not
// *apierr.Error become INTERNAL_ERROR; their cause is logged, never returned.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierr.From(err)
	if apiErr == nil {
		apiErr = apierr.Internal(nil)
	}

	if apiErr.Code == apierr.CodeInternal && r != nil {
		observability.FromContext(r.Context()).
			WithError(apiErr.Cause).
			WithField("path", r.URL.Path).
			Error("Request failed with internal error")
	}

	WriteJSON(w, apiErr.Status(), Envelope{Success: false, Error: apiErr, Meta: newMeta(r)})
}
