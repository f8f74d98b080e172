package api

import (
	"errors"
	"net/http"

	"github.com/deskforge/deskforge/pkg/access"
	"github.com/deskforge/deskforge/pkg/httputil"
	"github.com/deskforge/deskforge/pkg/identity"
)

type teamMembersResponse struct {
	TeamID  int64                `json:"team_id"`
	Members []*identity.Identity `json:"members"`
}

// listTeamMembers handles GET /api/v1/teams/{team_id}/members
func (s *Server) listTeamMembers(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}

	members, err := s.engine.ListTeamMembers(r.Context(), teamID)
	if err != nil {
		if errors.Is(err, access.ErrTeamNotFound) {
			httputil.WriteNotFound(w, "team not found")
			return
		}
		s.logger.WithError(err).WithField("team_id", teamID).Error("failed to list team members")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, teamMembersResponse{TeamID: teamID, Members: members})
}
