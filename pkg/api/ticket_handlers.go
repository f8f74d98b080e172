package api

import (
	"errors"
	"net/http"

	"github.com/deskforge/deskforge/pkg/httputil"
	"github.com/deskforge/deskforge/pkg/middleware"
	"github.com/deskforge/deskforge/pkg/tickets"
)

type ticketListResponse struct {
	Tickets []*tickets.Ticket `json:"tickets"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// listTickets handles GET /api/v1/tickets. The caller's visibility
// predicate is compiled into the query; no unscoped rows are fetched.
func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	identityID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	pred := s.ticketScoper.PredicateFor(r.Context(), identityID)
	if pred.Kind == tickets.PredicateImpossible {
		// Roleless or unresolvable callers see an empty list, not an
		// error, and the database is never queried.
		httputil.WriteSuccess(w, ticketListResponse{
			Tickets: []*tickets.Ticket{},
			Limit:   limit,
			Offset:  offset,
		})
		return
	}

	list, err := s.ticketStore.ListVisible(r.Context(), pred, limit, offset)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	total, err := s.ticketStore.CountVisible(r.Context(), pred)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	if list == nil {
		list = []*tickets.Ticket{}
	}
	httputil.WriteSuccess(w, ticketListResponse{
		Tickets: list,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// getTicket handles GET /api/v1/tickets/{ticket_id}. Tickets outside the
// caller's scope return 404, not 403, so IDs are not probeable.
func (s *Server) getTicket(w http.ResponseWriter, r *http.Request) {
	identityID, ok := middleware.GetIdentityID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	ticketID, ok := httputil.ParsePathInt64OrError(w, r, "ticket_id")
	if !ok {
		return
	}

	if !s.ticketScoper.CanAccessTicket(r.Context(), identityID, ticketID) {
		httputil.WriteNotFound(w, "ticket not found")
		return
	}

	ticket, err := s.ticketStore.GetTicket(r.Context(), ticketID)
	if err != nil {
		if errors.Is(err, tickets.ErrTicketNotFound) {
			httputil.WriteNotFound(w, "ticket not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, ticket)
}
