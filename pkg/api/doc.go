// Package api provides the HTTP surface over the access control engine.
//
// # Overview
//
// Routes under /api/v1 require an authenticated identity, resolved by
// the identity middleware from the gateway-set header. Authorization is
// enforced in two places: route guards (middleware.RequirePermission)
// for coarse action/resource checks, and the handlers themselves where
// scoping happens at query time (tickets, analytics).
//
// # Routes
//
//   - POST /api/v1/access/check: evaluate an action/resource check
//   - POST /api/v1/access/validate: total data-reach validation
//   - GET  /api/v1/access/scope: the caller's resolved scope
//   - GET  /api/v1/access/identities/{identity_id}/permissions
//   - GET  /api/v1/tickets, GET /api/v1/tickets/{ticket_id}
//   - GET  /api/v1/analytics/overview, /teams, /teams/{team_id}
//   - PUT/DELETE /api/v1/identities/{identity_id}/role|team
//   - PUT/DELETE /api/v1/teams/{team_id}/leaders/{identity_id}
//   - GET  /api/v1/audit/events (admin only)
package api
