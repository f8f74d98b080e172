package api

import (
	"errors"
	"net/http"

	"github.com/deskforge/deskforge/pkg/access"
	"github.com/deskforge/deskforge/pkg/httputil"
	"github.com/deskforge/deskforge/pkg/middleware"
)

// checkAccessRequest is the body for POST /api/v1/access/check
type checkAccessRequest struct {
	Action           string `json:"action"`
	Resource         string `json:"resource"`
	TargetIdentityID *int64 `json:"target_identity_id,omitempty"`
	TargetTeamID     *int64 `json:"target_team_id,omitempty"`
	ResourceID       string `json:"resource_id,omitempty"`
}

type checkAccessResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// checkAccess handles POST /api/v1/access/check. The decision is always
// a 200; denial is a payload, not an HTTP error.
func (s *Server) checkAccess(w http.ResponseWriter, r *http.Request) {
	identityID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req checkAccessRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Action == "" || req.Resource == "" {
		httputil.WriteBadRequest(w, "action and resource are required")
		return
	}

	allowed := s.engine.CheckPermission(r.Context(), access.Check{
		IdentityID:       identityID,
		Action:           access.Action(req.Action),
		Resource:         access.Resource(req.Resource),
		TargetIdentityID: req.TargetIdentityID,
		TargetTeamID:     req.TargetTeamID,
		ResourceID:       req.ResourceID,
	})

	resp := checkAccessResponse{Allowed: allowed}
	if !allowed {
		resp.Reason = "permission denied"
	}
	httputil.WriteSuccess(w, resp)
}

// validateAccessRequest is the body for POST /api/v1/access/validate
type validateAccessRequest struct {
	TargetIdentityID *int64 `json:"target_identity_id,omitempty"`
	TargetTeamID     *int64 `json:"target_team_id,omitempty"`
}

// validateAccess handles POST /api/v1/access/validate: the total
// data-reach check that never errors.
func (s *Server) validateAccess(w http.ResponseWriter, r *http.Request) {
	identityID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req validateAccessRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result := s.engine.ValidateAccess(r.Context(), identityID, req.TargetIdentityID, req.TargetTeamID)
	httputil.WriteSuccess(w, checkAccessResponse{Allowed: result.Allowed, Reason: result.Reason})
}

// getOwnScope handles GET /api/v1/access/scope
func (s *Server) getOwnScope(w http.ResponseWriter, r *http.Request) {
	identityID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	scope, err := s.engine.ResolveScope(r.Context(), identityID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, scope)
}

// getIdentityPermissions handles GET /api/v1/access/identities/{identity_id}/permissions
func (s *Server) getIdentityPermissions(w http.ResponseWriter, r *http.Request) {
	targetID, ok := httputil.ParsePathInt64OrError(w, r, "identity_id")
	if !ok {
		return
	}

	perms, err := s.engine.GetUserPermissions(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, access.ErrIdentityNotFound) {
			httputil.WriteNotFound(w, "identity not found")
			return
		}
		s.logger.WithError(err).WithField("identity_id", targetID).Error("failed to resolve permissions")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, perms)
}
