package api

import (
	"errors"
	"net/http"

	"github.com/deskforge/deskforge/pkg/access"
	"github.com/deskforge/deskforge/pkg/assignment"
	"github.com/deskforge/deskforge/pkg/httputil"
	"github.com/deskforge/deskforge/pkg/identity"
	"github.com/deskforge/deskforge/pkg/middleware"
)

type assignRoleRequest struct {
	Role string `json:"role"`
}

type assignTeamRequest struct {
	TeamID int64 `json:"team_id"`
}

// assignRole handles PUT /api/v1/identities/{identity_id}/role
func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	targetID, ok := httputil.ParsePathInt64OrError(w, r, "identity_id")
	if !ok {
		return
	}

	var req assignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.assignments.AssignRole(r.Context(), actorID, targetID, identity.Role(req.Role)); err != nil {
		s.writeAssignmentError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// assignTeam handles PUT /api/v1/identities/{identity_id}/team
func (s *Server) assignTeam(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	targetID, ok := httputil.ParsePathInt64OrError(w, r, "identity_id")
	if !ok {
		return
	}

	var req assignTeamRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.TeamID <= 0 {
		httputil.WriteBadRequest(w, "team_id is required")
		return
	}

	if err := s.assignments.AssignToTeam(r.Context(), actorID, targetID, req.TeamID); err != nil {
		s.writeAssignmentError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// removeFromTeam handles DELETE /api/v1/identities/{identity_id}/team
func (s *Server) removeFromTeam(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	targetID, ok := httputil.ParsePathInt64OrError(w, r, "identity_id")
	if !ok {
		return
	}

	if err := s.assignments.RemoveFromTeam(r.Context(), actorID, targetID); err != nil {
		s.writeAssignmentError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// assignLeadership handles PUT /api/v1/teams/{team_id}/leaders/{identity_id}
func (s *Server) assignLeadership(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}
	targetID, ok := httputil.ParsePathInt64OrError(w, r, "identity_id")
	if !ok {
		return
	}

	if err := s.assignments.AssignTeamLeadership(r.Context(), actorID, targetID, teamID); err != nil {
		s.writeAssignmentError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// removeLeadership handles DELETE /api/v1/teams/{team_id}/leaders/{identity_id}
func (s *Server) removeLeadership(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}
	targetID, ok := httputil.ParsePathInt64OrError(w, r, "identity_id")
	if !ok {
		return
	}

	if err := s.assignments.RemoveTeamLeadership(r.Context(), actorID, targetID, teamID); err != nil {
		s.writeAssignmentError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// writeAssignmentError maps assignment failures to HTTP statuses
func (s *Server) writeAssignmentError(w http.ResponseWriter, err error) {
	var denied *access.InsufficientPermissionsError
	switch {
	case errors.As(err, &denied):
		httputil.WriteForbidden(w, denied.Error())
	case errors.Is(err, identity.ErrIdentityNotFound):
		httputil.WriteNotFound(w, "identity not found")
	case errors.Is(err, identity.ErrTeamNotFound):
		httputil.WriteNotFound(w, "team not found")
	case errors.Is(err, assignment.ErrInvalidRole),
		errors.Is(err, assignment.ErrLeadershipRequiresLeader):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
