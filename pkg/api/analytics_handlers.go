package api

import (
	"errors"
	"net/http"

	"github.com/deskforge/deskforge/pkg/analytics"
	"github.com/deskforge/deskforge/pkg/httputil"
	"github.com/deskforge/deskforge/pkg/middleware"
)

// getAnalyticsOverview handles GET /api/v1/analytics/overview
func (s *Server) getAnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	identityID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	overview, err := s.analytics.GetOverview(r.Context(), identityID)
	if err != nil {
		if errors.Is(err, analytics.ErrAnalyticsDenied) {
			httputil.WriteForbidden(w, "analytics access denied")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, overview)
}

// listTeamAnalytics handles GET /api/v1/analytics/teams. The scope
// filter decides which teams appear; leaders see their teams, admins
// see all of them.
func (s *Server) listTeamAnalytics(w http.ResponseWriter, r *http.Request) {
	identityID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	stats, err := s.analytics.ListTeamStats(r.Context(), identityID)
	if err != nil {
		if errors.Is(err, analytics.ErrAnalyticsDenied) {
			httputil.WriteForbidden(w, "analytics access denied")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	if stats == nil {
		stats = []*analytics.TeamStats{}
	}
	httputil.WriteSuccess(w, stats)
}

// getTeamAnalytics handles GET /api/v1/analytics/teams/{team_id}
func (s *Server) getTeamAnalytics(w http.ResponseWriter, r *http.Request) {
	identityID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}

	stats, err := s.analytics.GetTeamStats(r.Context(), identityID, teamID)
	if err != nil {
		if errors.Is(err, analytics.ErrAnalyticsDenied) {
			httputil.WriteForbidden(w, "analytics access denied")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, stats)
}
