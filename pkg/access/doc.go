// Package access implements the role-scoped authorization engine for the
// deskforge helpdesk.
//
// # Overview
//
// Every request is decided here: what a given identity may do, and which
// records it may see, across the fixed three-role hierarchy and an
// arbitrary team-membership/leadership graph. The engine reads the
// identity store, consults a compiled-in permission matrix, resolves the
// caller's visibility into an AccessScope, and answers point-in-time
// allow/deny checks without re-deriving scope from the database on every
// request.
//
// # Components
//
//  1. Matrix: static role -> grant-set table, validated at startup
//  2. Resolver: identity -> AccessScope, a total function with a
//     fail-closed zero scope for inactive or roleless identities
//  3. Engine: CheckPermission / RequirePermission / GetUserPermissions /
//     ValidateAccess plus the CanAccess* convenience wrappers
//
// # Scope tiers
//
// A grant extends to one of three tiers:
//
//	TierOwn          - only the caller's own records
//	TierTeam         - records in the caller's visible teams
//	TierOrganization - every record in the organization
//
// Team visibility is tri-state (AllTeams, SpecificTeams, NoTeams) so the
// admin's unlimited reach can never be confused with an empty team list.
//
// # Fail-closed policy
//
// Denial is a normal false result. Missing identities, unknown roles,
// store outages and cache outages all deny; nothing in this package
// default-allows, and no infrastructure failure propagates as a crash
// out of the boolean check surface.
package access
