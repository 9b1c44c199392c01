package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tollgate/pkg/apierr"
	"github.com/platinummonkey/tollgate/pkg/auth"
	"github.com/platinummonkey/tollgate/pkg/billing"
	"github.com/platinummonkey/tollgate/pkg/favorites"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/middleware"
)

const maxKeyNameLength = 64

// ProfileView is the account view of a billing profile
type ProfileView struct {
	*billing.BillingProfile
	MonthlyCapCents  int64 `json:"monthlyCapCents"`
	HasPaymentMethod bool  `json:"hasPaymentMethod"`
}

// UpdateLimitsRequest sets the monthly cap override and auto-recharge.
// A null monthlyLimitCents falls back to the plan cap.
type UpdateLimitsRequest struct {
	MonthlyLimitCents *int64 `json:"monthlyLimitCents"`
	AutoRecharge      bool   `json:"autoRecharge"`
}

// CreateKeyRequest names a new API key
type CreateKeyRequest struct {
	Name string `json:"name"`
}

// CreateKeyResponse carries the plaintext key. It is never shown again.
type CreateKeyResponse struct {
	*auth.APIKey
	Key string `json:"key"`
}

// AddFavoriteRequest pins a tool
type AddFavoriteRequest struct {
	ToolID string `json:"toolId"`
}

func (s *Server) registerAccountRoutes(router *mux.Router) {
	router.HandleFunc("/profile", s.getProfile).Methods(http.MethodGet)
	router.HandleFunc("/limits", s.updateLimits).Methods(http.MethodPut)

	router.HandleFunc("/keys", s.createKey).Methods(http.MethodPost)
	router.HandleFunc("/keys", s.listKeys).Methods(http.MethodGet)
	router.HandleFunc("/keys/{id}", s.revokeKey).Methods(http.MethodDelete)

	router.HandleFunc("/favorites", s.listFavorites).Methods(http.MethodGet)
	router.HandleFunc("/favorites", s.addFavorite).Methods(http.MethodPost)
	router.HandleFunc("/favorites/{toolID}", s.removeFavorite).Methods(http.MethodDelete)
}

func (s *Server) profileView(p *billing.BillingProfile) ProfileView {
	return ProfileView{
		BillingProfile:   p,
		MonthlyCapCents:  s.caps.CapFor(p),
		HasPaymentMethod: p.HasPaymentMethod(),
	}
}

// getProfile handles GET /api/account/profile
func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	profile, err := s.profiles.EnsureProfile(ctx, middleware.GetSession(r).UserID())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, s.profileView(profile))
}

// updateLimits handles PUT /api/account/limits
func (s *Server) updateLimits(w http.ResponseWriter, r *http.Request) {
	var req UpdateLimitsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.MonthlyLimitCents != nil && *req.MonthlyLimitCents < 0 {
		httputil.WriteError(w, r, apierr.Validation("monthlyLimitCents must not be negative").
			WithDetail("monthlyLimitCents", "negative"))
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID := middleware.GetSession(r).UserID()
	if _, err := s.profiles.EnsureProfile(ctx, userID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	profile, err := s.profiles.UpdateLimits(ctx, userID, req.MonthlyLimitCents, req.AutoRecharge)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, s.profileView(profile))
}

// createKey handles POST /api/account/keys
func (s *Server) createKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if len(req.Name) > maxKeyNameLength {
		httputil.WriteError(w, r, apierr.Validation("Key name is too long").WithDetail("name", "max 64 characters"))
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID := middleware.GetSession(r).UserID()
	if _, err := s.profiles.EnsureProfile(ctx, userID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	key, token, err := auth.NewAPIKey(userID, req.Name)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := s.keys.Create(ctx, key); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	s.logger.WithContext(ctx).WithField("key_id", key.ID).Info("API key created")
	httputil.WriteCreated(w, r, CreateKeyResponse{APIKey: key, Key: token})
}

// listKeys handles GET /api/account/keys
func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	keys, err := s.keys.List(ctx, middleware.GetSession(r).UserID())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, keys)
}

// revokeKey handles DELETE /api/account/keys/{id}
func (s *Server) revokeKey(w http.ResponseWriter, r *http.Request) {
	keyID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	hash, err := s.keys.Revoke(ctx, middleware.GetSession(r).UserID(), keyID)
	if errors.Is(err, auth.ErrKeyNotFound) {
		httputil.WriteError(w, r, apierr.NotFound("API key not found"))
		return
	}
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.resolver.Forget(hash)

	s.logger.WithContext(ctx).WithField("key_id", keyID).Info("API key revoked")
	httputil.WriteNoContent(w)
}

// listFavorites handles GET /api/account/favorites
func (s *Server) listFavorites(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	favs, err := s.favorites.List(ctx, middleware.GetSession(r).UserID())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, favs)
}

// addFavorite handles POST /api/account/favorites
func (s *Server) addFavorite(w http.ResponseWriter, r *http.Request) {
	var req AddFavoriteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ToolID == "" {
		httputil.WriteError(w, r, apierr.MissingFields("toolId"))
		return
	}
	tool, ok := s.registry.Get(req.ToolID)
	if !ok {
		httputil.WriteError(w, r, apierr.NotFound("Unknown tool: "+req.ToolID))
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.favorites.Add(ctx, middleware.GetSession(r).UserID(), tool.ID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// removeFavorite handles DELETE /api/account/favorites/{toolID}
func (s *Server) removeFavorite(w http.ResponseWriter, r *http.Request) {
	toolID := strings.ToLower(mux.Vars(r)["toolID"])

	ctx, cancel := s.storeContext(r)
	defer cancel()

	err := s.favorites.Remove(ctx, middleware.GetSession(r).UserID(), toolID)
	if errors.Is(err, favorites.ErrNotFavorite) {
		httputil.WriteError(w, r, apierr.NotFound("Tool is not a favorite"))
		return
	}
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
