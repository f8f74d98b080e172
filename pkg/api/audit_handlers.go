package api

import (
	"net/http"
	"time"

	"github.com/deskforge/deskforge/pkg/audit"
	"github.com/deskforge/deskforge/pkg/httputil"
)

// searchAuditEvents handles GET /api/v1/audit/events
func (s *Server) searchAuditEvents(w http.ResponseWriter, r *http.Request) {
	filter := audit.SearchFilter{}

	if raw := httputil.ParseQueryString(r, "start_time", ""); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid start_time, expected RFC3339")
			return
		}
		filter.StartTime = &t
	}
	if raw := httputil.ParseQueryString(r, "end_time", ""); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid end_time, expected RFC3339")
			return
		}
		filter.EndTime = &t
	}

	if actorID, err := httputil.ParseQueryInt64(r, "actor_id", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	} else if actorID > 0 {
		filter.ActorID = &actorID
	}
	if targetID, err := httputil.ParseQueryInt64(r, "target_id", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	} else if targetID > 0 {
		filter.TargetID = &targetID
	}

	if eventType := httputil.ParseQueryString(r, "event_type", ""); eventType != "" {
		filter.EventTypes = []audit.EventType{audit.EventType(eventType)}
	}
	if status := httputil.ParseQueryString(r, "status", ""); status != "" {
		s := audit.EventStatus(status)
		filter.Status = &s
	}
	filter.Resource = httputil.ParseQueryString(r, "resource", "")

	var err error
	filter.Limit, err = httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := s.auditSearch.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	if events == nil {
		events = []*audit.Event{}
	}
	httputil.WriteSuccess(w, events)
}
