package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/deskforge/deskforge/pkg/access"
	"github.com/deskforge/deskforge/pkg/analytics"
	"github.com/deskforge/deskforge/pkg/assignment"
	"github.com/deskforge/deskforge/pkg/audit"
	"github.com/deskforge/deskforge/pkg/httputil"
	"github.com/deskforge/deskforge/pkg/identity"
	"github.com/deskforge/deskforge/pkg/middleware"
	"github.com/deskforge/deskforge/pkg/observability"
	"github.com/deskforge/deskforge/pkg/tickets"
)

// AuditSearcher searches recorded audit events. Satisfied by
// audit.DBLogger; deployments without a database sink register no
// audit routes.
type AuditSearcher interface {
	Search(ctx context.Context, filter audit.SearchFilter) ([]*audit.Event, error)
}

// Server represents the deskforge API server
type Server struct {
	router *mux.Router

	engine        *access.Engine
	identityStore identity.Store
	ticketStore   *tickets.Store
	ticketScoper  *tickets.Scoper
	analytics     *analytics.Service
	assignments   *assignment.Service
	auditSearch   AuditSearcher

	logger *observability.Logger
}

// Deps bundles the server's collaborators
type Deps struct {
	Engine        *access.Engine
	IdentityStore identity.Store
	TicketStore   *tickets.Store
	TicketScoper  *tickets.Scoper
	Analytics     *analytics.Service
	Assignments   *assignment.Service
	AuditSearch   AuditSearcher
	Logger        *observability.Logger
	RateLimiter   func(http.Handler) http.Handler
}

// NewServer creates the API server and registers all routes
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		router:        mux.NewRouter(),
		engine:        deps.Engine,
		identityStore: deps.IdentityStore,
		ticketStore:   deps.TicketStore,
		ticketScoper:  deps.TicketScoper,
		analytics:     deps.Analytics,
		assignments:   deps.Assignments,
		auditSearch:   deps.AuditSearch,
		logger:        logger,
	}

	s.setupRoutes(deps.RateLimiter)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(rateLimiter func(http.Handler) http.Handler) {
	s.router.HandleFunc("/health", s.healthCheck).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequestIDMiddleware)
	api.Use(middleware.NewIdentityMiddleware(s.identityStore, s.logger, false).Handler)
	if rateLimiter != nil {
		api.Use(rateLimiter)
	}
	api.Use(httputil.LoggingMiddleware(s.logger))
	api.Use(httputil.RecoveryMiddleware(s.logger))

	// Access checks
	api.HandleFunc("/access/check", s.checkAccess).Methods("POST")
	api.HandleFunc("/access/validate", s.validateAccess).Methods("POST")
	api.HandleFunc("/access/scope", s.getOwnScope).Methods("GET")
	api.Handle("/access/identities/{identity_id}/permissions",
		s.require(access.ActionRead, access.ResourceUsers, http.HandlerFunc(s.getIdentityPermissions))).Methods("GET")

	// Tickets. The list route is scoped by the caller's compiled
	// visibility predicate rather than a grant guard: a team-tier grant
	// has no single target team to check at the route level.
	api.HandleFunc("/tickets", s.listTickets).Methods("GET")
	api.HandleFunc("/tickets/{ticket_id}", s.getTicket).Methods("GET")

	// Analytics
	api.HandleFunc("/analytics/overview", s.getAnalyticsOverview).Methods("GET")
	api.HandleFunc("/analytics/teams", s.listTeamAnalytics).Methods("GET")
	api.HandleFunc("/analytics/teams/{team_id}", s.getTeamAnalytics).Methods("GET")

	// Teams. Member lists are read through the resolution cache; the
	// guard resolves {team_id} as the target of the team-tier grant.
	api.Handle("/teams/{team_id}/members",
		s.require(access.ActionRead, access.ResourceUsers, http.HandlerFunc(s.listTeamMembers))).Methods("GET")

	// Assignments
	api.HandleFunc("/identities/{identity_id}/role", s.assignRole).Methods("PUT")
	api.HandleFunc("/identities/{identity_id}/team", s.assignTeam).Methods("PUT")
	api.HandleFunc("/identities/{identity_id}/team", s.removeFromTeam).Methods("DELETE")
	api.HandleFunc("/teams/{team_id}/leaders/{identity_id}", s.assignLeadership).Methods("PUT")
	api.HandleFunc("/teams/{team_id}/leaders/{identity_id}", s.removeLeadership).Methods("DELETE")

	// Audit trail, admin only
	if s.auditSearch != nil {
		api.Handle("/audit/events",
			s.require(access.ActionManage, access.ResourceUsers, http.HandlerFunc(s.searchAuditEvents))).Methods("GET")
	}
}

// require wraps a handler with a permission guard for the route
func (s *Server) require(action access.Action, resource access.Resource, next http.Handler) http.Handler {
	return middleware.RequirePermission(s.engine, action, resource)(next)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// healthCheck handles GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
